// Package stt streams microphone audio to Deepgram's realtime listen API and
// segments the running transcript into finalized utterances.
package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/vad"
)

// SILENCE_THRESHOLD is the base inactivity window required before we consider an utterance complete.
// Keep conservative to avoid cutting user mid-sentence.
const SILENCE_THRESHOLD = 700 * time.Millisecond

// CONTINUATION_EXTENSION is added to the silence threshold when the last word
// suggests the user is likely to continue the sentence (e.g., "and", "or", "if").
const CONTINUATION_EXTENSION = 1200 * time.Millisecond

// STABILIZATION_GRACE waits a little after crossing the silence threshold to
// absorb any late transcript updates from the ASR before finalizing.
const STABILIZATION_GRACE = 250 * time.Millisecond

const defaultModel = "nova-3"

// DeepgramService is a streaming transcription client. Deepgram emits
// replacing interim results plus committed finals per segment; the service
// joins them into one running transcript and applies its own silence-based
// utterance segmentation on top.
type DeepgramService struct {
	apiKey      string
	model       string
	conn        *websocket.Conn
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}
	mu          sync.RWMutex
	connected   bool

	detector *vad.Detector

	// utterance accumulation
	accMu                   sync.Mutex
	finalSegments           []string
	currentInterim          string
	latestFullTranscript    string
	committedFullTranscript string
	lastUpdateTime          time.Time
	// resettable timer to detect end-of-utterance based on inactivity
	silenceTimer *time.Timer
}

// resultsMessage is Deepgram's incremental transcription event.
type resultsMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// metadataMessage arrives when Deepgram closes the stream.
type metadataMessage struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
}

type utteranceEndMessage struct {
	Type        string  `json:"type"`
	LastWordEnd float64 `json:"last_word_end"`
}

// NewDeepgramService creates a new transcription service. An empty model
// selects nova-3.
func NewDeepgramService(apiKey, model string) *DeepgramService {
	if model == "" {
		model = defaultModel
	}
	return &DeepgramService{
		apiKey:      apiKey,
		model:       model,
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
		detector:    vad.NewDetector(0),
	}
}

// Finalize returns a channel signaling end-of-utterance with the delta text
func (s *DeepgramService) Finalize() <-chan string { return s.finalizeCh }

// Connect establishes the WebSocket connection to Deepgram.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	if s.apiKey == "" {
		return fmt.Errorf("Deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", s.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("punctuate", "true")

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())

	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	log.Printf("Connecting to Deepgram at: %s", wsURL)

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.accMu.Lock()
	s.lastUpdateTime = time.Now()
	s.accMu.Unlock()
	// Measure silence from session start, not from the epoch.
	s.detector.MarkActive()

	// Start goroutines for handling messages and audio
	go s.handleMessages()
	go s.sendAudioData()

	log.Println("Successfully connected to Deepgram streaming service")
	return nil
}

// SendAudio queues audio data to be sent to Deepgram.
func (s *DeepgramService) SendAudio(audioData []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	// Track voice energy so silence-based finalization sees raw activity even
	// before the ASR produces text.
	s.detector.Observe(audioData)
	select {
	case s.audioData <- audioData:
		return nil
	default:
		log.Println("Audio buffer full, dropping packet")
		return nil
	}
}

// SendPCM16KLE implements the agent.Transcriber-friendly method name.
func (s *DeepgramService) SendPCM16KLE(pcm []byte) error { return s.SendAudio(pcm) }

// GetTranscripts returns the channel for receiving live transcripts
func (s *DeepgramService) GetTranscripts() <-chan string { return s.transcripts }

// RecentlyDetectedVoice reports whether non-silent voice energy was observed within the given window.
func (s *DeepgramService) RecentlyDetectedVoice(window time.Duration) bool {
	return s.detector.RecentlyActive(window)
}

// Close closes the connection and cleans up resources.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	// signal shutdown and stop any active timer
	close(s.stopCh)
	s.accMu.Lock()
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.accMu.Unlock()
	if s.conn != nil {
		closeMsg := map[string]string{"type": "CloseStream"}
		_ = s.conn.WriteJSON(closeMsg)
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	// Best-effort flush of any pending delta before closing channels
	s.flushPendingDelta()
	close(s.audioData)
	close(s.transcripts)
	close(s.finalizeCh)
	log.Println("Deepgram connection closed")
	return nil
}

// handleMessages processes incoming WebSocket messages
func (s *DeepgramService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Error reading message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

// processMessage handles the different message types Deepgram sends.
func (s *DeepgramService) processMessage(message []byte) {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		log.Printf("Message missing type field")
		return
	}
	switch msgType {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		// Deepgram keeps emitting empty interim results through silence;
		// those must not reset the inactivity timer.
		if text == "" && !msg.IsFinal {
			return
		}
		s.accMu.Lock()
		if msg.IsFinal {
			if text != "" {
				s.finalSegments = append(s.finalSegments, text)
			}
			s.currentInterim = ""
		} else {
			s.currentInterim = text
		}
		latest := strings.Join(s.finalSegments, " ")
		if s.currentInterim != "" {
			if latest != "" {
				latest += " "
			}
			latest += s.currentInterim
		}
		if text == "" {
			// empty final: nothing new was said
			s.accMu.Unlock()
			return
		}
		s.latestFullTranscript = latest
		s.lastUpdateTime = time.Now()
		// reset or start the silence timer; finalize will fire only after inactivity
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.accMu.Unlock()
		// stream the running transcript for UI
		select {
		case s.transcripts <- latest:
		default:
		}
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Metadata message: %v", err)
			return
		}
		log.Printf("Deepgram stream finished: RequestID=%s, Duration=%.2fs", msg.RequestID, msg.Duration)
		// Flush any pending delta so last words are not lost
		s.flushPendingDelta()
	case "UtteranceEnd":
		var msg utteranceEndMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling UtteranceEnd message: %v", err)
			return
		}
		log.Printf("Deepgram utterance end at %.2fs", msg.LastWordEnd)
	default:
		log.Printf("Unknown message type: %s", msgType)
	}
}

// finalizeDueToSilence is invoked after SILENCE_THRESHOLD of inactivity.
// It emits only the delta since the last committed transcript, if significant.
func (s *DeepgramService) finalizeDueToSilence() {
	// If we're shutting down, do nothing to avoid sends on closed channels
	select {
	case <-s.stopCh:
		return
	default:
	}

	// First pass check
	s.accMu.Lock()
	now := time.Now()
	// Dynamically extend threshold for continuation-like endings
	threshold := SILENCE_THRESHOLD
	if isContinuationLikely(s.latestFullTranscript) {
		threshold += CONTINUATION_EXTENSION
	}
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.detector.LastActive())
	if sinceText < threshold || sinceVoice < threshold {
		// Not enough inactivity; reschedule the timer for the remaining time window
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}

	// Snapshot last update time and release lock to wait for stabilization
	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	// Grace period to catch late transcript updates
	time.Sleep(STABILIZATION_GRACE)

	// Second pass validation after grace
	s.accMu.Lock()
	now2 := time.Now()
	// Recompute threshold as transcript may have changed
	threshold2 := SILENCE_THRESHOLD
	if isContinuationLikely(s.latestFullTranscript) {
		threshold2 += CONTINUATION_EXTENSION
	}
	if s.lastUpdateTime.After(lastUpdateAt) {
		// A late update arrived during grace; push the timer forward from now
		wait := threshold2
		if rem := threshold2 - now2.Sub(s.lastUpdateTime); rem > 10*time.Millisecond && rem < wait {
			wait = rem
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}

	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 && idx+len(base) <= len(latest) {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	s.accMu.Unlock()

	if strings.TrimSpace(delta) == "" {
		return
	}
	// Deliver without dropping to guarantee every word is sent downstream.
	select {
	case <-s.stopCh:
		return
	case s.finalizeCh <- delta:
	}
}

// flushPendingDelta sends any remaining uncommitted transcript delta.
// It is best-effort and will not block indefinitely on shutdown.
func (s *DeepgramService) flushPendingDelta() {
	s.accMu.Lock()
	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 && idx+len(base) <= len(latest) {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	s.accMu.Unlock()
	if strings.TrimSpace(delta) == "" {
		return
	}
	select {
	case s.finalizeCh <- delta:
	case <-time.After(200 * time.Millisecond):
		log.Printf("Deepgram flush: timed out delivering final delta")
	}
}

// isContinuationLikely returns true if the last meaningful word indicates the
// speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	// Split on non-letters to extract words
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// Coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// Subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// Discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// Common prepositions that are awkward sentence endings; extend to await continuation
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}

// sendAudioData sends queued audio data to Deepgram.
func (s *DeepgramService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audioData, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
