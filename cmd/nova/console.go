package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/tools"
)

// console multiplexes stdin between the chat loop and confirmation prompts.
type console struct {
	out io.Writer

	mu      sync.Mutex
	pending chan string
	lines   chan string
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{out: out, lines: make(chan string)}
	go c.read(in)
	return c
}

func (c *console) read(in io.Reader) {
	defer close(c.lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		c.mu.Lock()
		p := c.pending
		c.pending = nil
		c.mu.Unlock()
		if p != nil {
			p <- line
			continue
		}
		c.lines <- line
	}
}

// Lines yields user input. It closes at end of input.
func (c *console) Lines() <-chan string { return c.lines }

// Confirm asks on the terminal whether a flagged tool call may run.
func (c *console) Confirm(ctx context.Context, call tools.Call, reason string) (bool, error) {
	answer := make(chan string, 1)
	c.mu.Lock()
	c.pending = answer
	c.mu.Unlock()

	fmt.Fprintf(c.out, "\n? Allow %s (%s)? [y/N] ", call.Name, reason)
	select {
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == answer {
			c.pending = nil
		}
		c.mu.Unlock()
		return false, ctx.Err()
	}
}

// renderer prints assistant events as a plain transcript.
type renderer struct {
	out     io.Writer
	verbose bool
	printed map[string]struct{}
}

func newRenderer(out io.Writer, verbose bool) *renderer {
	return &renderer{out: out, verbose: verbose, printed: make(map[string]struct{})}
}

func (r *renderer) render(ev live.Event) {
	switch e := ev.(type) {
	case *live.StatusChangedEvent:
		if e.Error != "" {
			fmt.Fprintf(r.out, "[status] %s: %s\n", e.Status, e.Error)
		} else {
			fmt.Fprintf(r.out, "[status] %s\n", e.Status)
		}
	case *live.MessagesChangedEvent:
		for _, m := range e.Messages {
			if m.IsStreaming {
				continue
			}
			if _, ok := r.printed[m.ID]; ok {
				continue
			}
			r.printed[m.ID] = struct{}{}
			if m.Thought != "" && r.verbose {
				fmt.Fprintf(r.out, "  (thought) %s\n", m.Thought)
			}
			fmt.Fprintf(r.out, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Text)
		}
	case *live.ToolCallEvent:
		fmt.Fprintf(r.out, "[tool] %s\n", e.Name)
	case *live.ToolResultEvent:
		if e.Error != "" {
			fmt.Fprintf(r.out, "[tool] %s failed: %s\n", e.Name, e.Error)
		}
	case *live.ArtifactEvent:
		fmt.Fprintf(r.out, "[%s] %s\n", e.Kind, describeArtifact(e.Payload))
	case *live.LogEvent:
		if r.verbose || e.Entry.Severity == live.SeverityError {
			fmt.Fprintf(r.out, "[%s] %s\n", e.Entry.Severity, e.Entry.Message)
		}
	}
}

func describeArtifact(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if len(v) > 80 {
				parts = append(parts, fmt.Sprintf("%s=<%s>", k, humanize.Bytes(uint64(len(v)))))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}
