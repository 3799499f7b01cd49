package tools

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// Call is one function call requested by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// CallFromGenAI converts a wire function call.
func CallFromGenAI(fc *genai.FunctionCall) Call {
	if fc == nil {
		return Call{}
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return Call{ID: fc.ID, Name: fc.Name, Args: args}
}

// Result is what a handler produced for one call.
type Result struct {
	// Response is the payload sent back to the model.
	Response map[string]any

	// FollowUp runs After the response has been sent. It is used for actions
	// that must not delay the response, such as session shutdown.
	FollowUp func()
	After    time.Duration
}

// Reply builds a Result with a single "result" field.
func Reply(text string) Result {
	return Result{Response: map[string]any{"result": text}}
}

// Payload builds a Result from an arbitrary response map.
func Payload(resp map[string]any) Result {
	return Result{Response: resp}
}

// Handler executes one named tool.
type Handler interface {
	Name() string
	Definition() *genai.FunctionDeclaration
	Execute(ctx context.Context, call Call) (Result, error)
}

// Func adapts a declaration and a function into a Handler.
type Func struct {
	Decl *genai.FunctionDeclaration
	Fn   func(ctx context.Context, call Call) (Result, error)
}

func (f Func) Name() string { return f.Decl.Name }

func (f Func) Definition() *genai.FunctionDeclaration { return f.Decl }

func (f Func) Execute(ctx context.Context, call Call) (Result, error) {
	return f.Fn(ctx, call)
}
