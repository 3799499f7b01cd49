// Package live implements the realtime audio engine behind the Nova assistant.
//
// A Gemini Live session multiplexes several logical channels onto one ordered
// stream of server messages: assistant audio, input and output transcripts,
// thought narration, interruption signals and tool calls. The types in this
// package turn that stream into consistent client state.
//
// # Components
//
//   - Audio codec: PCM16 base64 frames to and from normalized float samples
//   - Capture: microphone stream to fixed 512-sample, 16 kHz mono frames with soft mute
//   - Scheduler: gapless back-to-back playback on an Output clock with barge-in Clear
//   - Reconciler: per-turn buffers committed to message history at turnComplete
//   - SystemLog: bounded user-facing log ring
//
// # Turn phases
//
//	IDLE → LISTENING → THINKING → RESPONDING → COMMITTING → IDLE
//	  ↑                                                    │
//	  └──────────────── interrupted ───────────────────────┘
//
// # Usage
//
//	sched := live.NewScheduler(output, live.PlaybackConfig{})
//	rec := live.NewReconciler(live.ReconcilerConfig{
//	    Player:   sched,
//	    Dispatch: dispatcher.Dispatch,
//	    Emit:     publish,
//	})
//	for msg := range session.Events() {
//	    rec.Apply(msg)
//	}
package live
