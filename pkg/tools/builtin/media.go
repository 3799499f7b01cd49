package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/tools"
)

const (
	// MaxAttachmentChars bounds the text returned per attached file.
	MaxAttachmentChars = 30000
	truncatedMarker    = "...[TRUNCATED]"
	binaryAttachment   = "[Binary/Image File - Content not available via text tool. Please analyze the visual attachment directly.]"
)

func mediaTools(d *Deps) []tools.Handler {
	hs := []tools.Handler{renderDiagram(d), readAttachedFiles(d)}
	if d.Images != nil {
		hs = append(hs, generateImage(d))
	}
	if d.Messenger != nil {
		hs = append(hs, sendWhatsApp(d))
	}
	return hs
}

func renderDiagram(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "render_diagram",
		Description: "Renders a visual diagram (flowchart, mindmap, sequence) using Mermaid.js syntax to explain complex concepts.",
		Parameters: object([]string{"code", "type"}, map[string]*genai.Schema{
			"code": str(`The Mermaid.js code structure (e.g., "graph TD; A-->B;").`),
			"type": str(`The type of diagram (e.g., "flowchart", "mindmap", "sequenceDiagram").`),
		}),
	}, func(_ context.Context, call tools.Call) (tools.Result, error) {
		code, err := tools.String(call.Args, "code", true)
		if err != nil {
			return tools.Result{}, err
		}
		kind, err := tools.String(call.Args, "type", false)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "diagram", map[string]any{"code": code, "type": kind})
		return tools.Reply("Diagram rendered successfully in the Visual Intelligence Hub."), nil
	})
}

func generateImage(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "generate_image",
		Description: "Generates a high-quality image based on a descriptive prompt. Use this when the user wants to see a visualization or a creative image.",
		Parameters: object([]string{"prompt"}, map[string]*genai.Schema{
			"prompt": str("A detailed description of the image to generate."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		prompt, err := tools.String(call.Args, "prompt", true)
		if err != nil {
			return tools.Result{}, err
		}
		data, mimeType, err := d.Images.GenerateImage(ctx, prompt)
		if err != nil {
			return tools.Result{}, err
		}
		path, err := saveImage(d, data)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "image", map[string]any{
			"prompt":   prompt,
			"mimeType": mimeType,
			"path":     path,
			"dataUrl":  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		})
		return tools.Reply("Image generated and auto-saved to Downloads folder."), nil
	})
}

func saveImage(d *Deps, data []byte) (string, error) {
	if d.DownloadsDir == "" {
		return "", fmt.Errorf("no downloads directory configured")
	}
	if err := os.MkdirAll(d.DownloadsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(d.DownloadsDir, fmt.Sprintf("nova_ai_%d.png", d.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	d.Logger.Info("image saved", "path", path, "bytes", len(data))
	return path, nil
}

func readAttachedFiles(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "read_attached_files",
		Description: `Reads and accesses the files that user has attached using the "Add Files" button. Use this tool when user asks questions about attached files, wants analysis of PDFs, images, or documents. Returns the list of attached files with their content and metadata.`,
		Parameters:  object(nil, nil),
	}, func(context.Context, tools.Call) (tools.Result, error) {
		var files []live.Attachment
		if d.Attachments != nil {
			files = d.Attachments.Attachments()
		}
		if len(files) == 0 {
			return tools.Payload(map[string]any{
				"result":    `No files are currently attached. User needs to click "Add Files" button to attach files first.`,
				"fileCount": 0,
			}), nil
		}
		out := make([]map[string]any, 0, len(files))
		for i, f := range files {
			out = append(out, map[string]any{
				"index":   i + 1,
				"name":    f.Name,
				"type":    f.MIMEType,
				"content": AttachmentText(f),
			})
		}
		return tools.Payload(map[string]any{
			"result": fmt.Sprintf("Successfully read %d attached file(s). Use this content to answer the user's request.", len(files)),
			"files":  out,
		}), nil
	})
}

// AttachmentText returns the readable text of an attachment, truncated to
// MaxAttachmentChars characters.
func AttachmentText(a live.Attachment) string {
	if !a.IsText() {
		return binaryAttachment
	}
	b, err := a.Bytes()
	if err != nil {
		return "Unable to decode text content from memory."
	}
	r := []rune(string(b))
	if len(r) > MaxAttachmentChars {
		return string(r[:MaxAttachmentChars]) + truncatedMarker
	}
	return string(r)
}

func sendWhatsApp(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "send_whatsapp",
		Description: "Sends a WhatsApp message using the Desktop App. It opens the app, finds the contact and sends the message.",
		Parameters: object([]string{"contactName", "message"}, map[string]*genai.Schema{
			"contactName": str(`The EXACT name of the contact as saved in WhatsApp (e.g., "Usman Ahmed", "Mom").`),
			"message":     str("The message content to send."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		name, err := tools.String(call.Args, "contactName", true)
		if err != nil {
			return tools.Result{}, err
		}
		message, err := tools.String(call.Args, "message", true)
		if err != nil {
			return tools.Result{}, err
		}
		var phone string
		if d.Store != nil {
			c, ok, err := d.Store.FindContact(ctx, name)
			if err != nil {
				d.Logger.Warn("contact lookup failed", "contact", name, "error", err)
			} else if ok {
				phone = c.Phone
			}
		}
		method, err := d.Messenger.SendWhatsApp(ctx, name, phone, message)
		if err != nil {
			return tools.Result{}, fmt.Errorf("failed to send message to %s: %w. Please make sure WhatsApp Desktop is installed and the contact name matches exactly", name, err)
		}
		return tools.Payload(map[string]any{
			"result": fmt.Sprintf("The WhatsApp message automation for %s has been executed successfully.", name),
			"status": "success",
			"method": method,
		}), nil
	})
}
