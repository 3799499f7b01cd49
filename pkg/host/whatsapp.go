package host

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Messenger delivers a chat message through a desktop messaging app.
type Messenger interface {
	SendWhatsApp(ctx context.Context, contactName, phone, message string) (method string, err error)
}

// Send methods reported back to the model.
const (
	MethodDeepLink = "deeplink"
	MethodKeyboard = "keyboard"
)

// WhatsAppDesktop drives the WhatsApp desktop app. With a phone number it
// uses the whatsapp://send deep link; otherwise it searches for the contact
// by name with keyboard automation.
type WhatsAppDesktop struct {
	Host Host
	// LoadDelay is how long the app gets to come to the foreground. Default: 8s.
	LoadDelay time.Duration
	// StepDelay separates keystrokes. Default: 500ms.
	StepDelay time.Duration
}

func (w *WhatsAppDesktop) SendWhatsApp(ctx context.Context, contactName, phone, message string) (string, error) {
	if digits := phoneDigits(phone); digits != "" {
		q := url.Values{"phone": {digits}, "text": {message}}
		if err := w.Host.Open(ctx, "whatsapp://send?"+q.Encode()); err != nil {
			return MethodDeepLink, err
		}
		if err := w.wait(ctx, w.loadDelay()); err != nil {
			return MethodDeepLink, err
		}
		return MethodDeepLink, w.Host.PressKey(ctx, "enter")
	}

	if err := w.Host.Open(ctx, "whatsapp:"); err != nil {
		return MethodKeyboard, err
	}
	if err := w.wait(ctx, w.loadDelay()); err != nil {
		return MethodKeyboard, err
	}
	steps := []func() error{
		w.press(ctx, "escape"), w.press(ctx, "escape"), w.press(ctx, "escape"),
		w.press(ctx, "ctrl+f"), w.press(ctx, "ctrl+a"), w.press(ctx, "backspace"),
		w.paste(ctx, contactName),
		w.press(ctx, "down"), w.press(ctx, "enter"),
		w.press(ctx, "escape"),
		w.paste(ctx, message),
		w.press(ctx, "enter"),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return MethodKeyboard, err
		}
		if err := w.wait(ctx, w.stepDelay()); err != nil {
			return MethodKeyboard, err
		}
	}
	return MethodKeyboard, nil
}

func (w *WhatsAppDesktop) press(ctx context.Context, key string) func() error {
	return func() error { return w.Host.PressKey(ctx, key) }
}

func (w *WhatsAppDesktop) paste(ctx context.Context, text string) func() error {
	return func() error {
		if err := w.Host.WriteClipboard(text); err != nil {
			return w.Host.TypeText(ctx, text)
		}
		return w.Host.PressKey(ctx, "ctrl+v")
	}
}

func (w *WhatsAppDesktop) loadDelay() time.Duration {
	if w.LoadDelay > 0 {
		return w.LoadDelay
	}
	if w.LoadDelay < 0 {
		return 0
	}
	return 8 * time.Second
}

func (w *WhatsAppDesktop) stepDelay() time.Duration {
	if w.StepDelay > 0 {
		return w.StepDelay
	}
	if w.StepDelay < 0 {
		return 0
	}
	return 500 * time.Millisecond
}

func (w *WhatsAppDesktop) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
