package assistant

import (
	"context"
	"errors"

	"github.com/vango-go/nova-live/pkg/core/live"
)

// Teardown ends the current session generation. It is safe to call
// concurrently and from any goroutine; only the first call for a generation
// does anything.
func (a *Assistant) Teardown(reason string) {
	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()
	a.teardown(gen, reason, nil)
}

// teardown releases everything owned by generation gen. A non-nil cause
// leaves the assistant in the error status.
func (a *Assistant) teardown(gen uint64, reason string, cause error) {
	a.mu.Lock()
	if !a.active || a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.active = false
	capture, sched, engine := a.capture, a.sched, a.engine
	sess, cancel := a.sess, a.cancel
	a.capture, a.sched, a.engine = nil, nil, nil
	a.sess, a.disp, a.cancel, a.sessCtx = nil, nil, nil, nil
	clear(a.sent)

	next := live.StatusDisconnected
	var errText string
	if cause != nil {
		next = live.StatusError
		errText = cause.Error()
		a.lastErr = errText
	} else if a.status == live.StatusError {
		next = live.StatusError
		errText = a.lastErr
	}
	changed := a.status != next
	a.status = next
	a.mu.Unlock()

	if capture != nil {
		capture.Stop()
	}
	if sched != nil {
		sched.Clear()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			a.logger.Warn("close audio engine", "error", err)
		}
	}
	if sess != nil {
		_ = sess.Close()
	}
	if cancel != nil {
		cancel()
	}
	a.rec.AbandonTurn()

	if cause != nil {
		a.logger.Error("live session ended", "reason", reason, "error", cause, "generation", gen)
		a.log.Add(live.SeverityError, "Session error: "+errText, map[string]any{"reason": reason})
	} else {
		a.logger.Info("live session ended", "reason", reason, "generation", gen)
		a.log.Add(live.SeverityInfo, "Session closed", map[string]any{"reason": reason})
	}
	if changed {
		a.emit(&live.StatusChangedEvent{Status: next, Error: errText})
	}
}

// SyncHardware reconciles the audio devices with the session state: capture
// and output run only while connected and not hard muted.
func (a *Assistant) SyncHardware() error {
	a.mu.Lock()
	if !a.wantHardwareLocked() {
		capture, sched, engine := a.capture, a.sched, a.engine
		a.capture, a.sched, a.engine = nil, nil, nil
		a.mu.Unlock()
		a.releaseHardware(capture, sched, engine)
		return nil
	}
	if a.engine != nil || a.audio == nil {
		a.mu.Unlock()
		return nil
	}
	gen, ctx := a.gen, a.sessCtx
	a.mu.Unlock()

	engine, err := a.audio(ctx)
	if err != nil {
		a.logger.Warn("open audio engine", "error", err)
		return err
	}

	a.mu.Lock()
	if a.gen != gen || !a.wantHardwareLocked() || a.engine != nil {
		a.mu.Unlock()
		_ = engine.Close()
		return nil
	}
	sess := a.sess
	sched := live.NewScheduler(engine.Output(), live.PlaybackConfig{
		SampleRate:      live.OutputSampleRate,
		Channels:        1,
		Margin:          a.cfg.PlaybackMargin,
		OnSpeakingEnded: a.rec.SpeakingEnded,
		Logger:          a.logger,
	})
	capture := live.NewCapture(engine.Microphone(), live.CaptureConfig{
		SampleRate:   live.InputSampleRate,
		Channels:     1,
		FrameSamples: live.CaptureFrameSamples,
		OnFrame: func(b64 string) {
			if err := sess.SendAudioFrame(b64); err != nil {
				a.logger.Debug("drop audio frame", "error", err)
			}
		},
		OnError: a.captureFailed,
		Logger:  a.logger,
	})
	capture.SetMuted(a.micMuted)
	a.engine, a.sched, a.capture = engine, sched, capture
	a.mu.Unlock()

	capture.Start(ctx)
	a.log.Add(live.SeverityInfo, "Audio hardware active", nil)
	return nil
}

func (a *Assistant) wantHardwareLocked() bool {
	return a.active && a.status == live.StatusConnected && !a.hardMuted && a.sess != nil
}

func (a *Assistant) releaseHardware(capture *live.Capture, sched *live.Scheduler, engine AudioEngine) {
	if capture == nil && sched == nil && engine == nil {
		return
	}
	if capture != nil {
		capture.Stop()
	}
	if sched != nil {
		sched.Clear()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			a.logger.Warn("close audio engine", "error", err)
		}
	}
	a.log.Add(live.SeverityInfo, "Audio hardware released", nil)
}

func (a *Assistant) captureFailed(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.logger.Warn("microphone failed", "error", err)
	a.log.Add(live.SeverityError, "Microphone unavailable", map[string]any{"error": err.Error()})
}

// HardwareActive reports whether the audio devices are held.
func (a *Assistant) HardwareActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil
}

// InputLevel returns the RMS level of the last microphone frame, or zero
// while capture is not running.
func (a *Assistant) InputLevel() float64 {
	a.mu.Lock()
	capture := a.capture
	a.mu.Unlock()
	if capture == nil {
		return 0
	}
	return capture.Level()
}

// OutputLevel returns the loudness of the assistant audio being played.
func (a *Assistant) OutputLevel() live.Level {
	a.mu.Lock()
	sched := a.sched
	a.mu.Unlock()
	if sched == nil {
		return live.Level{}
	}
	return sched.Level()
}
