package tools

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
)

// Registry maps tool names to handlers.
type Registry struct {
	byName map[string]Handler
}

// NewRegistry builds a registry. Later handlers replace earlier ones with the same name.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{byName: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		r.byName[h.Name()] = h
	}
	return r
}

// Register adds handlers after construction.
func (r *Registry) Register(handlers ...Handler) {
	for _, h := range handlers {
		if h == nil {
			continue
		}
		r.byName[h.Name()] = h
	}
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Get(name string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.byName[name]
	return h, ok
}

// Declarations returns every function declaration sorted by name.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	names := r.Names()
	out := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].Definition())
	}
	return out
}

// Tools returns the catalog in wire form. Google Search is listed first when enabled.
func (r *Registry) Tools(googleSearch bool) []*genai.Tool {
	var out []*genai.Tool
	if googleSearch {
		out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if decls := r.Declarations(); len(decls) > 0 {
		out = append(out, &genai.Tool{FunctionDeclarations: decls})
	}
	return out
}

// Validate checks that every declaration is well formed and names are unique
// after trimming.
func (r *Registry) Validate() error {
	if r == nil {
		return core.NewValidationError("tool registry is not configured", "registry")
	}
	seen := make(map[string]struct{}, len(r.byName))
	for name, h := range r.byName {
		decl := h.Definition()
		if decl == nil {
			return core.NewValidationError(fmt.Sprintf("tool %q has no declaration", name), "tools")
		}
		trimmed := strings.TrimSpace(decl.Name)
		if trimmed == "" || trimmed != name {
			return core.NewValidationError(fmt.Sprintf("tool %q declaration name mismatch", name), "tools")
		}
		if _, dup := seen[trimmed]; dup {
			return core.NewValidationError(fmt.Sprintf("duplicate tool name %q", trimmed), "tools")
		}
		seen[trimmed] = struct{}{}
	}
	return nil
}
