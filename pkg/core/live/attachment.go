package live

import (
	"encoding/base64"
	"strings"
)

// Attachment is a file the user attached to the conversation.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	// Data is base64, optionally as a data URL ("data:image/png;base64,....").
	Data string `json:"data"`
}

// RawBase64 returns Data without any data URL prefix.
func (a Attachment) RawBase64() string {
	if i := strings.IndexByte(a.Data, ','); i >= 0 {
		return a.Data[i+1:]
	}
	return a.Data
}

// Bytes decodes the attachment payload.
func (a Attachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.RawBase64())
}

// IsText reports whether the attachment can be read back as text.
func (a Attachment) IsText() bool {
	mt := strings.ToLower(a.MIMEType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/xml", mt == "application/javascript", mt == "application/x-yaml":
		return true
	}
	return false
}
