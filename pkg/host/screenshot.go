package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ScreenshotQuality is the JPEG quality of captured screens.
const ScreenshotQuality = 80

type screenshotTool struct {
	bin  string
	args func(path string) []string
}

var linuxScreenshotTools = []screenshotTool{
	{"gnome-screenshot", func(p string) []string { return []string{"-f", p} }},
	{"grim", func(p string) []string { return []string{p} }},
	{"spectacle", func(p string) []string { return []string{"-b", "-n", "-o", p} }},
	{"scrot", func(p string) []string { return []string{"-o", p} }},
	{"import", func(p string) []string { return []string{"-window", "root", p} }},
}

// Screenshot captures the primary screen and returns it as JPEG.
func (s *System) Screenshot(ctx context.Context) ([]byte, error) {
	dir := s.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, "nova-screen-"+uuid.NewString())

	var path string
	switch s.goos {
	case "darwin":
		path = base + ".jpg"
		if err := s.runQuiet(ctx, "screencapture", "-x", "-t", "jpg", path); err != nil {
			return nil, err
		}
	case "windows":
		path = base + ".png"
		ps := `Add-Type -AssemblyName System.Windows.Forms,System.Drawing; ` +
			`$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds; ` +
			`$bmp = New-Object System.Drawing.Bitmap $b.Width, $b.Height; ` +
			`$g = [System.Drawing.Graphics]::FromImage($bmp); ` +
			`$g.CopyFromScreen($b.Location, [System.Drawing.Point]::Empty, $b.Size); ` +
			`$bmp.Save('` + psEscape(path) + `')`
		if err := s.runQuiet(ctx, "powershell", "-NoProfile", "-Command", ps); err != nil {
			return nil, err
		}
	default:
		path = base + ".png"
		if err := s.linuxScreenshot(ctx, path); err != nil {
			return nil, err
		}
	}
	defer os.Remove(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return ToJPEG(raw)
}

func (s *System) linuxScreenshot(ctx context.Context, path string) error {
	var errs []error
	for _, tool := range linuxScreenshotTools {
		if _, err := s.run.LookPath(tool.bin); err != nil {
			continue
		}
		err := s.runQuiet(ctx, tool.bin, tool.args(path)...)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return fmt.Errorf("no screenshot tool found (tried gnome-screenshot, grim, spectacle, scrot, import): %w", ErrUnsupported)
	}
	return errors.Join(errs...)
}

// ToJPEG re-encodes a PNG or JPEG image as JPEG. JPEG input is returned unchanged.
func ToJPEG(raw []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if format == "jpeg" {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ScreenshotQuality}); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
