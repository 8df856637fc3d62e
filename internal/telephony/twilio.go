// Package telephony runs the scripted flows over plain phone calls. Twilio
// posts caller speech as Gather webhooks; replies go back as TwiML Say verbs,
// so the conversation core is shared with the WebRTC sessions while speech
// recognition and synthesis stay on Twilio's side.
package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/flow"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

const twilioParamsKey = "twilioParams"

// staleCallAfter bounds how long an abandoned call keeps its conversation
// state before the next voice webhook prunes it.
const staleCallAfter = 30 * time.Minute

type call struct {
	flow     *flow.Flow
	conv     *agent.Conversation
	lastSeen time.Time
}

// Service answers Twilio voice webhooks. Each call gets its own flow
// instance and conversation, keyed by CallSid.
type Service struct {
	accountSID  string
	authToken   string
	baseURL     string
	llm         agent.LLM
	newFlow     func() *flow.Flow
	storage     store.Mirror
	recordCalls bool
	client      *twilio.RestClient
	httpClient  *http.Client

	mu    sync.Mutex
	calls map[string]*call
}

func New(accountSID, authToken, baseURL string, llm agent.LLM, newFlow func() *flow.Flow) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Service{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		llm:        llm,
		newFlow:    newFlow,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		calls:      map[string]*call{},
	}
}

// WithRecording records each call via Twilio's REST API and uploads the
// completed .wav through the mirror.
func (s *Service) WithRecording(m store.Mirror) *Service {
	s.storage = m
	s.recordCalls = true
	return s
}

func (s *Service) RegisterHandlers(e *echo.Echo) {
	e.POST("/twilio/voice", s.handleVoice, s.authMiddleware)
	e.POST("/twilio/gather", s.handleGather, s.authMiddleware)
	e.POST("/twilio/recording-status", s.handleRecordingStatus, s.authMiddleware)
}

func (s *Service) handleVoice(c echo.Context) error {
	params := c.Get(twilioParamsKey).(map[string]string)
	callSID := params["CallSid"]
	if callSID == "" {
		callSID = uuid.NewString()
	}
	log.Printf("Call from %s, CallSID: %s", params["From"], callSID)

	s.pruneStale()
	fl := s.newFlow()
	cl := &call{flow: fl, conv: agent.NewConversation(s.llm, fl.Script()), lastSeen: time.Now()}
	cl.conv.AddAssistant(fl.Greeting)
	s.mu.Lock()
	s.calls[callSID] = cl
	s.mu.Unlock()

	if s.recordCalls && s.storage != nil {
		callbackURL := s.BuildAbsoluteURL(c.Request(), "/twilio/recording-status")
		go func() {
			if err := s.startRecording(callSID, callbackURL); err != nil {
				log.Printf("start recording for %s failed: %v", callSID, err)
			}
		}()
	}

	return respondTwiML(c, sayAndGather(fl.Greeting, s.BuildAbsoluteURL(c.Request(), "/twilio/gather")))
}

func (s *Service) handleGather(c echo.Context) error {
	params := c.Get(twilioParamsKey).(map[string]string)
	callSID := params["CallSid"]
	speech := strings.TrimSpace(params["SpeechResult"])

	s.mu.Lock()
	cl := s.calls[callSID]
	if cl != nil {
		cl.lastSeen = time.Now()
	}
	s.mu.Unlock()
	if cl == nil {
		log.Printf("gather for unknown call %s", callSID)
		return respondTwiML(c, sayAndHangup("Sorry, something went wrong. Please call again."))
	}

	gatherURL := s.BuildAbsoluteURL(c.Request(), "/twilio/gather")
	if speech == "" {
		return respondTwiML(c, sayAndGather("Sorry, I did not catch that. Could you say it again?", gatherURL))
	}
	log.Printf("[%s] caller: %s", callSID, speech)

	if isGoodbye(speech) {
		s.endCall(callSID)
		return respondTwiML(c, sayAndHangup("Thanks for calling. Goodbye!"))
	}

	reply, err := cl.conv.Turn(c.Request().Context(), speech)
	if err != nil {
		log.Printf("[%s] llm error: %v", callSID, err)
		return respondTwiML(c, sayAndGather("Sorry, I am having trouble right now. Could you repeat that?", gatherURL))
	}
	if reply == "" {
		return respondTwiML(c, gatherOnly(gatherURL))
	}
	cl.conv.AddAssistant(reply)
	log.Printf("[%s] assistant: %s", callSID, reply)
	return respondTwiML(c, sayAndGather(reply, gatherURL))
}

func (s *Service) handleRecordingStatus(c echo.Context) error {
	params := c.Get(twilioParamsKey).(map[string]string)
	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	recordingSID := params["RecordingSid"]
	log.Printf("Recording status: %s, SID: %s", status, recordingSID)

	if status == "completed" && recordingURL != "" && s.storage != nil {
		filename := fmt.Sprintf("recordings/%s_%d.wav", recordingSID, time.Now().Unix())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.uploadRecording(ctx, recordingURL, filename); err != nil {
				log.Printf("Failed to upload recording: %v", err)
			} else {
				log.Printf("Recording uploaded: %s", filename)
			}
		}()
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.authToken == "" {
			return c.String(http.StatusInternalServerError, "Missing TWILIO_AUTH_TOKEN")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to read body")
		}
		formData, err := url.ParseQuery(string(body))
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to parse form")
		}
		params := make(map[string]string)
		for key, values := range formData {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		signature := c.Request().Header.Get("X-Twilio-Signature")
		requestURL := s.BuildAbsoluteURL(c.Request(), c.Request().URL.Path)
		if !validateSignature(s.authToken, signature, requestURL, params) {
			return c.String(http.StatusUnauthorized, "Invalid signature")
		}

		c.Set(twilioParamsKey, params)
		return next(c)
	}
}

// validateSignature checks an X-Twilio-Signature value: HMAC-SHA1 over the
// full URL followed by the sorted POST parameters, base64 encoded.
func validateSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// BuildAbsoluteURL forms the public URL Twilio sees for a path.
// Priority: configured base URL > X-Forwarded-* headers > request host.
func (s *Service) BuildAbsoluteURL(r *http.Request, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if s.baseURL != "" {
		return s.baseURL + path
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	if proto != "" && host != "" {
		return fmt.Sprintf("%s://%s%s", proto, host, path)
	}
	host = r.Host
	scheme := "https"
	if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

func (s *Service) startRecording(callSID, callbackURL string) error {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(callbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("dual")
	params.SetTrim("do-not-trim")

	if _, err := s.client.Api.CreateCallRecording(callSID, params); err != nil {
		return fmt.Errorf("create call recording: %w", err)
	}
	return nil
}

func (s *Service) uploadRecording(ctx context.Context, recordingURL, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download recording failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return s.storage.Upload(filename, "audio/wav", data)
}

func (s *Service) pruneStale() {
	cutoff := time.Now().Add(-staleCallAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, cl := range s.calls {
		if cl.lastSeen.Before(cutoff) {
			delete(s.calls, sid)
		}
	}
}

func (s *Service) endCall(callSID string) {
	s.mu.Lock()
	delete(s.calls, callSID)
	s.mu.Unlock()
}

func isGoodbye(speech string) bool {
	t := strings.ToLower(strings.TrimSpace(speech))
	return t == "bye" || strings.Contains(t, "goodbye") || strings.Contains(t, "hang up")
}

const twimlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

func respondTwiML(c echo.Context, body string) error {
	return c.Blob(http.StatusOK, "text/xml", []byte(twimlHeader+body))
}

// sayAndGather speaks one line and listens for the caller's answer. On
// silence Twilio falls through the Gather to the Redirect, which reprompts.
func sayAndGather(text, gatherURL string) string {
	return fmt.Sprintf(`<Response>
  <Say>%s</Say>
  <Gather input="speech" action="%s" method="POST" speechTimeout="auto"/>
  <Redirect method="POST">%s</Redirect>
</Response>`, xmlEscape(text), xmlEscape(gatherURL), xmlEscape(gatherURL))
}

func gatherOnly(gatherURL string) string {
	return fmt.Sprintf(`<Response>
  <Gather input="speech" action="%s" method="POST" speechTimeout="auto"/>
  <Redirect method="POST">%s</Redirect>
</Response>`, xmlEscape(gatherURL), xmlEscape(gatherURL))
}

func sayAndHangup(text string) string {
	return fmt.Sprintf(`<Response>
  <Say>%s</Say>
  <Hangup/>
</Response>`, xmlEscape(text))
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }
