package stt

import (
	"encoding/json"
	"testing"
)

func resultsJSON(t *testing.T, transcript string, isFinal bool) []byte {
	t.Helper()
	msg := map[string]any{
		"type":     "Results",
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{
				{"transcript": transcript, "confidence": 0.99},
			},
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func latestTranscript(s *DeepgramService) string {
	s.accMu.Lock()
	defer s.accMu.Unlock()
	return s.latestFullTranscript
}

func TestProcessMessage_JoinsInterimAndFinalResults(t *testing.T) {
	s := NewDeepgramService("key", "")

	s.processMessage(resultsJSON(t, "hello", false))
	s.processMessage(resultsJSON(t, "hello there", false))
	s.processMessage(resultsJSON(t, "hello there", true))
	if got := latestTranscript(s); got != "hello there" {
		t.Fatalf("after final: latest = %q", got)
	}

	// the next segment's interim extends the running transcript
	s.processMessage(resultsJSON(t, "how are", false))
	if got := latestTranscript(s); got != "hello there how are" {
		t.Fatalf("with interim: latest = %q", got)
	}
	s.processMessage(resultsJSON(t, "how are you", true))
	if got := latestTranscript(s); got != "hello there how are you" {
		t.Fatalf("after second final: latest = %q", got)
	}
}

func TestProcessMessage_EmptyInterimDoesNotTouchState(t *testing.T) {
	s := NewDeepgramService("key", "")
	s.processMessage(resultsJSON(t, "keep this", true))
	s.processMessage(resultsJSON(t, "", false))
	if got := latestTranscript(s); got != "keep this" {
		t.Fatalf("latest = %q", got)
	}
	s.accMu.Lock()
	timerSet := s.silenceTimer != nil
	s.accMu.Unlock()
	if !timerSet {
		t.Fatal("silence timer should be running after real text")
	}
}

func TestFlushPendingDelta_EmitsOnlyNewText(t *testing.T) {
	s := NewDeepgramService("key", "")

	s.processMessage(resultsJSON(t, "i want a mug", true))
	s.flushPendingDelta()
	select {
	case got := <-s.finalizeCh:
		if got != "i want a mug" {
			t.Fatalf("first delta = %q", got)
		}
	default:
		t.Fatal("no delta emitted")
	}

	s.processMessage(resultsJSON(t, "with a handle", true))
	s.flushPendingDelta()
	select {
	case got := <-s.finalizeCh:
		if got != "with a handle" {
			t.Fatalf("second delta = %q", got)
		}
	default:
		t.Fatal("no second delta emitted")
	}

	// nothing new: flushing again must stay silent
	s.flushPendingDelta()
	select {
	case got := <-s.finalizeCh:
		t.Fatalf("unexpected delta %q", got)
	default:
	}
}

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if got := lastWord("I would like a coffee and"); got != "and" {
		t.Fatalf("lastWord = %q", got)
	}
	if got := lastWord("  "); got != "" {
		t.Fatalf("lastWord of blank = %q", got)
	}
	if got := lastWord("What's the price?"); got != "price" {
		t.Fatalf("lastWord with punctuation = %q", got)
	}
	if !isContinuationLikely("I want it in red and") {
		t.Fatal("trailing conjunction should suggest continuation")
	}
	if isContinuationLikely("That is everything.") {
		t.Fatal("complete sentence should not suggest continuation")
	}
	if isContinuationLikely("") {
		t.Fatal("empty text should not suggest continuation")
	}
}

func TestConnect_RequiresAPIKey(t *testing.T) {
	s := NewDeepgramService("", "")
	if err := s.Connect(); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
