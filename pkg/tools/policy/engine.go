// Package policy gates model-initiated tool calls with a Rego policy.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/vango-go/nova-live/pkg/tools"
)

// Query is evaluated against the policy. It must yield an object with
// optional "deny" and "confirm" sets of reason strings.
const Query = "data.nova.tools"

// DefaultPolicy blocks obviously destructive shell commands and asks before
// killing processes, deleting files or sending messages on the user's behalf.
const DefaultPolicy = `
package nova.tools

destructive_patterns := ["rm -rf /", "rm -rf ~", "mkfs", "format c:", ":(){", "dd if=/dev/zero of=/dev/"]

deny[reason] {
	input.name == "execute_shell_command"
	input.settings.allow_shell == false
	reason := "shell commands are disabled"
}

deny[reason] {
	input.name == "execute_shell_command"
	cmd := lower(input.args.command)
	pattern := destructive_patterns[_]
	contains(cmd, pattern)
	reason := sprintf("command matches destructive pattern %q", [pattern])
}

confirm[reason] {
	input.name == "kill_process"
	reason := "terminate a running process"
}

confirm[reason] {
	input.name == "manage_files"
	input.args.operation == "delete"
	reason := sprintf("delete %s", [input.args.path])
}

confirm[reason] {
	input.name == "send_whatsapp"
	input.settings.confirm_messages == true
	reason := sprintf("send a message to %s", [input.args.contactName])
}
`

// Settings are exposed to the policy as input.settings.
type Settings struct {
	AllowShell      bool `json:"allow_shell"`
	ConfirmMessages bool `json:"confirm_messages"`
}

// Engine is a tools.Gate backed by a prepared Rego query.
type Engine struct {
	query    rego.PreparedEvalQuery
	settings Settings
}

// NewEngine prepares policyContent. An empty policy uses DefaultPolicy.
func NewEngine(ctx context.Context, policyContent string, settings Settings) (*Engine, error) {
	if policyContent == "" {
		policyContent = DefaultPolicy
	}
	r := rego.New(
		rego.Query(Query),
		rego.Module("nova_tools.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query, settings: settings}, nil
}

// LoadFile prepares the policy stored at path.
func LoadFile(ctx context.Context, path string, settings Settings) (*Engine, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(b), settings)
}

// Decide evaluates the policy for one call. Deny wins over confirm.
func (e *Engine) Decide(ctx context.Context, call tools.Call) (tools.Decision, error) {
	input := map[string]any{
		"name": call.Name,
		"args": call.Args,
		"settings": map[string]any{
			"allow_shell":      e.settings.AllowShell,
			"confirm_messages": e.settings.ConfirmMessages,
		},
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return tools.Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return tools.Decision{Verdict: tools.VerdictAllow}, nil
	}
	doc, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return tools.Decision{}, fmt.Errorf("policy returned %T, want object", results[0].Expressions[0].Value)
	}
	if reasons := stringSet(doc["deny"]); len(reasons) > 0 {
		return tools.Decision{Verdict: tools.VerdictDeny, Reason: reasons[0]}, nil
	}
	if reasons := stringSet(doc["confirm"]); len(reasons) > 0 {
		return tools.Decision{Verdict: tools.VerdictConfirm, Reason: reasons[0]}, nil
	}
	return tools.Decision{Verdict: tools.VerdictAllow}, nil
}

func stringSet(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
