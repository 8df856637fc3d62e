// Package flow defines the scripted conversations the voice workers run: the
// greeting spoken at connect, the model instructions, and the function tools
// that capture a record field by field.
package flow

import (
	"strings"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
)

// Flow is one scripted conversation. A Flow instance carries per-call record
// state inside its tool closures, so build a fresh one for every session.
type Flow struct {
	Name         string
	Greeting     string
	Instructions string
	Tools        []agent.Tool
}

// Script adapts the flow for the session orchestrator.
func (f *Flow) Script() agent.Script {
	return agent.Script{Instructions: f.Instructions, Tools: f.Tools}
}

// stringArg returns the named tool argument trimmed of surrounding space.
// Missing and non-string arguments come back empty.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func stringParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
