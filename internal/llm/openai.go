// Package llm adapts OpenAI-compatible chat completion backends (OpenAI,
// Gemini's compatibility endpoint, Cerebras) to the agent interfaces.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
)

// Client calls a chat completions endpoint with function tool support.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client for the given backend. An empty baseURL targets
// api.openai.com; Gemini and Cerebras are reached through their
// OpenAI-compatible base URLs.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// Respond sends the conversation and returns the model's reply, including any
// requested tool calls.
//
// Gemini's compatibility layer rejects requests whose message list does not
// end with a user turn, which happens on the kickoff turn right after the
// greeting. Those rejections are retried exactly once with an empty user
// turn appended.
func (c *Client) Respond(ctx context.Context, msgs []agent.Message, tools []agent.Tool) (agent.Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(msgs),
	}
	if len(tools) > 0 {
		req.Tools = toChatTools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil && needsTrailingUserTurn(err) {
		log.Printf("llm: backend wants a trailing user turn, retrying once: %v", err)
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ""})
		resp, err = c.api.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		return agent.Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Reply{}, fmt.Errorf("chat completion: empty choices")
	}

	msg := resp.Choices[0].Message
	reply := agent.Reply{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		reply.ToolCalls = append(reply.ToolCalls, agent.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: parseArgs(tc.Function.Arguments),
		})
	}
	return reply, nil
}

func needsTrailingUserTurn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "end with a user role") || strings.Contains(msg, "INVALID_ARGUMENT")
}

// parseArgs decodes a tool call's JSON arguments, tolerating empty and
// malformed payloads so a bad model emission never kills the call.
func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		log.Printf("llm: unparsable tool arguments %q: %v", raw, err)
	}
	return args
}

func toChatMessages(msgs []agent.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			argsJSON, err := json.Marshal(tc.Args)
			if err != nil {
				argsJSON = []byte("{}")
			}
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(argsJSON)},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(tools []agent.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
