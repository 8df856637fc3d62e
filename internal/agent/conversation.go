package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// maxToolRounds bounds how many tool batches a single utterance may trigger
// before the conversation returns whatever text it has.
const maxToolRounds = 6

const llmTimeout = 20 * time.Second

type convTurn struct {
	Role string // "user" or "assistant"
	Text string
}

// Conversation runs the text side of a call: it keeps the spoken history,
// builds the message list for the model and dispatches requested tool calls
// until the model settles on plain text. Transports without an audio path
// (e.g. phone webhooks) drive it directly; Session wraps it with speech.
//
// Turn records the user side of the exchange. The assistant side is
// committed by the caller through AddAssistant with whatever text actually
// reached the user, so an interrupted reply never inflates the history.
type Conversation struct {
	llm    LLM
	script Script

	mu      sync.Mutex
	history []convTurn
}

func NewConversation(l LLM, script Script) *Conversation {
	return &Conversation{llm: l, script: script}
}

// Turn submits one user utterance and returns the model's final text reply.
// An empty user string asks the model to continue from the history alone,
// which is how the opening turn right after the greeting works. On success
// the user turn is appended to the history; the reply is not, see above.
func (c *Conversation) Turn(ctx context.Context, user string) (string, error) {
	user = strings.TrimSpace(user)
	msgs := c.buildMessages(user)

	var reply Reply
	for round := 0; ; round++ {
		ctxLLM, cancel := context.WithTimeout(ctx, llmTimeout)
		r, err := c.llm.Respond(ctxLLM, msgs, c.script.Tools)
		cancel()
		if err != nil {
			return "", err
		}
		reply = r
		if len(reply.ToolCalls) == 0 || round >= maxToolRounds {
			break
		}
		msgs = append(msgs, Message{Role: "assistant", Content: reply.Text, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    c.invokeTool(ctx, call),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	text := strings.TrimSpace(reply.Text)
	if user != "" && text != "" {
		c.mu.Lock()
		c.history = append(c.history, convTurn{Role: "user", Text: user})
		c.mu.Unlock()
	}
	return text, nil
}

// AddAssistant records text the assistant delivered to the user, either the
// scripted greeting or the (possibly truncated) spoken part of a reply.
func (c *Conversation) AddAssistant(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	c.history = append(c.history, convTurn{Role: "assistant", Text: text})
	c.mu.Unlock()
}

func (c *Conversation) buildMessages(latestUser string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, 0, len(c.history)+2)
	if c.script.Instructions != "" {
		msgs = append(msgs, Message{Role: "system", Content: c.script.Instructions})
	}
	for _, t := range c.history {
		msgs = append(msgs, Message{Role: t.Role, Content: t.Text})
	}
	if latestUser != "" {
		msgs = append(msgs, Message{Role: "user", Content: latestUser})
	}
	return msgs
}

// invokeTool runs one requested tool and always returns a result string for
// the model. Handler failures are reported back as text rather than aborting
// the turn.
func (c *Conversation) invokeTool(ctx context.Context, call ToolCall) string {
	for i := range c.script.Tools {
		tool := &c.script.Tools[i]
		if tool.Name != call.Name {
			continue
		}
		if tool.Handler == nil {
			return fmt.Sprintf("tool %s is not available", call.Name)
		}
		out, err := tool.Handler(ctx, call.Args)
		if err != nil {
			log.Printf("tool %s failed: %v", call.Name, err)
			return fmt.Sprintf("tool %s failed: %v", call.Name, err)
		}
		log.Printf("tool %s -> %s", call.Name, out)
		return out
	}
	log.Printf("model requested unknown tool %q", call.Name)
	return fmt.Sprintf("unknown tool: %s", call.Name)
}
