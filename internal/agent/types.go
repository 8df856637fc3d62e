package agent

import (
	"context"
	"time"
)

// Transcriber is the minimal interface the session needs from a realtime
// speech-to-text service. Implementations accept PCM 16kHz little-endian
// mono audio and emit live text plus finalized utterances.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	// GetTranscripts streams live transcript updates as they arrive.
	GetTranscripts() <-chan string
	// Finalize streams utterances once the service decides they are complete.
	Finalize() <-chan string
	// RecentlyDetectedVoice reports whether voice energy was heard within window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// Message is one turn of the conversation as presented to the language model.
type Message struct {
	Role       string // "system", "user", "assistant" or "tool"
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that requested tools
	ToolCallID string     // set on tool messages, echoing the originating call id
	Name       string     // tool name on tool messages
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Reply is the model's answer to one request: text to speak, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Tool declares one function the model may call. Parameters holds a JSON
// schema object describing the arguments. The handler's return value is fed
// back to the model as the tool result.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Script bundles the instructions and tools that drive one conversation.
type Script struct {
	Instructions string
	Tools        []Tool
}

// LLM produces a reply for the conversation so far. Implementations must
// honor ctx cancellation.
type LLM interface {
	Respond(ctx context.Context, msgs []Message, tools []Tool) (Reply, error)
}

// TTS streams 48kHz 16-bit little-endian mono PCM for the given text.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// PCM48kSink consumes 48kHz PCM and performs delivery, e.g. Opus encoding
// into a WebRTC track. Implementations buffer internally and pace playback.
type PCM48kSink interface {
	WritePCM(pcm []byte)
	// FlushTail pushes out any partially filled frame at the end of speech.
	FlushTail()
	// Reset drops queued audio immediately. Used on barge-in.
	Reset()
}
