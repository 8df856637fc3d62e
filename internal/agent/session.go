package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// chunkReply splits an assistant reply into sentence-like chunks to allow
// committing transcript increments only after corresponding audio is emitted.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

const interruptMarker = "[INTERUPTED BY USER]"

// Session orchestrates STT -> LLM -> tools -> TTS for a single call.
type Session struct {
	transcriber  Transcriber
	conv         *Conversation
	tts          TTS
	sink         PCM48kSink
	onTranscript func(text string)
	// onTurn is invoked when a user utterance completes and the assistant has
	// spoken back some or all of its reply. The assistant text provided is
	// exactly what was actually spoken to the user, with an interruption
	// marker appended when barge-in truncated it.
	onTurn func(user string, assistantSpoken string)

	mu               sync.Mutex
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool
}

// NewSession constructs a new Session running the given script.
func NewSession(t Transcriber, llm LLM, tts TTS, sink PCM48kSink, script Script, onTranscript func(string), onTurn func(string, string)) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		transcriber:  t,
		conv:         NewConversation(llm, script),
		tts:          tts,
		sink:         sink,
		onTranscript: onTranscript,
		onTurn:       onTurn,
	}
}

// Start connects the transcriber and begins processing. It returns a stop function.
func (s *Session) Start(ctx context.Context) (func(), error) {
	if err := s.transcriber.Connect(); err != nil {
		return nil, err
	}

	// Stream live transcripts (optional UI)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-s.transcriber.GetTranscripts():
				if !ok {
					return
				}
				if s.onTranscript != nil && t != "" {
					s.onTranscript(t)
				}
			}
		}
	}()

	// On finalized utterance -> LLM -> tools -> TTS -> sink
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-s.transcriber.Finalize():
				if !ok {
					return
				}
				// Normalize whitespace only; do not truncate
				prompt := strings.TrimSpace(utterance)
				if prompt == "" {
					continue
				}
				log.Printf("heard(final): %s", prompt)
				// Before we let the assistant speak, ensure sustained silence from user
				// to avoid talking over them. Wait up to a bounded time for a silence window.
				waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
				for waitCtx.Err() == nil {
					// Require at least 500ms without detected voice energy before proceeding
					if !s.transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
						break
					}
					time.Sleep(50 * time.Millisecond)
				}
				waitCancel()

				if err := s.takeTurn(ctx, prompt); err != nil {
					log.Printf("llm error: %v", err)
				}
			}
		}
	}()

	stop := func() {
		_ = s.transcriber.Close()
	}
	return stop, nil
}

// Say speaks a scripted line outside the model loop, typically the opening
// greeting, and records whatever portion was actually delivered so the model
// knows the line was already spoken.
func (s *Session) Say(ctx context.Context, text string) {
	spoken, _ := s.speak(ctx, text)
	s.conv.AddAssistant(spoken)
}

// Kickoff asks the model for its first move after the greeting, without any
// user input yet. Some OpenAI-compatible backends reject a history that ends
// with an assistant turn; the LLM client retries those once with an empty
// user turn appended.
func (s *Session) Kickoff(ctx context.Context) error {
	return s.takeTurn(ctx, "")
}

// takeTurn runs one model turn (including tool dispatch) and speaks the
// reply. Only the text whose audio actually went out enters the history.
func (s *Session) takeTurn(ctx context.Context, user string) error {
	reply, err := s.conv.Turn(ctx, user)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	spokenText, wasBarged := s.speak(ctx, reply)
	s.conv.AddAssistant(spokenText)
	if wasBarged {
		if spokenText != "" {
			spokenText += " " + interruptMarker
		} else {
			spokenText = interruptMarker
		}
	}
	if s.onTurn != nil {
		// Provide exactly what was spoken to the user for this turn
		s.onTurn(user, spokenText)
	}
	return nil
}

// speak streams text through TTS in sentence chunks, honoring barge-in. It
// returns the text whose audio was fully emitted and whether the user cut
// the reply off.
func (s *Session) speak(ctx context.Context, text string) (string, bool) {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.ttsCancel = cancelTTS
	s.bargeInRequested = false
	s.mu.Unlock()

	var spokenBuilder strings.Builder
	chunks := chunkReply(text)
CHUNK_LOOP:
	for i, chunk := range chunks {
		s.mu.Lock()
		barged := s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}

		// Stream current chunk
		pcmCh, errCh := s.tts.StreamPCM48k(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 {
						s.mu.Lock()
						drop := s.bargeInRequested
						s.mu.Unlock()
						if !drop {
							s.sink.WritePCM(b)
						}
					}
				} else {
					openPCM = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Printf("tts stream error: %v", e)
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		// If not barged after finishing this chunk, commit chunk text to spoken builder
		s.mu.Lock()
		barged = s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}
		spokenBuilder.WriteString(strings.TrimSpace(chunk))
		// Add a single space between chunks when needed
		if i < len(chunks)-1 {
			spokenBuilder.WriteString(" ")
		}
	}

	// capture whether barge-in was requested; then clear speaking state
	s.mu.Lock()
	wasBarged := s.bargeInRequested
	s.speaking = false
	s.ttsCancel = nil
	s.bargeInRequested = false
	s.mu.Unlock()
	cancelTTS()
	if !wasBarged {
		s.sink.FlushTail()
	}
	return strings.TrimSpace(spokenBuilder.String()), wasBarged
}

// FeedPCM16KLE sends input audio to the transcriber.
func (s *Session) FeedPCM16KLE(pcm []byte) {
	_ = s.transcriber.SendPCM16KLE(pcm)
}

type nopSink struct{}

func (nopSink) WritePCM(_ []byte) {}
func (nopSink) FlushTail()        {}
func (nopSink) Reset()            {}

// IsSpeaking reports whether TTS is currently active for this session.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeIn cancels current TTS streaming and prevents further audio from being written to the sink.
func (s *Session) BargeIn() {
	s.mu.Lock()
	cancel := s.ttsCancel
	if s.speaking {
		s.bargeInRequested = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Drop any queued audio immediately to ensure interruption feels instant
	s.sink.Reset()
}
