package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/flow"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/stt"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Handler answers browser WebRTC offers and runs one voice session per peer
// connection: remote Opus in through the transcriber, agent speech out
// through an OpusPacedWriter.
type Handler struct {
	deepgramKey string
	sttModel    string
	llm         agent.LLM
	tts         agent.TTS
	newFlow     func() *flow.Flow
}

func NewHandler(deepgramKey, sttModel string) *Handler {
	return &Handler{deepgramKey: deepgramKey, sttModel: sttModel}
}

func (h *Handler) WithLLM(llm agent.LLM) *Handler {
	h.llm = llm
	return h
}

func (h *Handler) WithTTS(tts agent.TTS) *Handler {
	h.tts = tts
	return h
}

// WithFlow sets the factory invoked once per call, so every session gets a
// fresh record and fresh tool closures.
func (h *Handler) WithFlow(newFlow func() *flow.Flow) *Handler {
	h.newFlow = newFlow
	return h
}

// HandleOffer accepts an SDP offer and returns an SDP answer.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}
	if h.llm == nil || h.tts == nil || h.newFlow == nil {
		return SessionDescription{}, errors.New("rtc handler missing llm, tts or flow")
	}

	callID := generateCallID()

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "agent-audio", "agent")
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}

	fl := h.newFlow()
	transcriber := stt.NewDeepgramService(h.deepgramKey, h.sttModel)

	type convoTurn struct {
		Role, Text string
		At         time.Time
	}
	var (
		transcriptMu sync.Mutex
		turns        []convoTurn
	)

	// pion keeps a single connection-state handler, so collect teardown hooks
	// here instead of re-registering per stage.
	var (
		downMu  sync.Mutex
		downFns []func()
		downRan bool
	)
	addTeardown := func(fn func()) {
		downMu.Lock()
		downFns = append(downFns, fn)
		downMu.Unlock()
	}
	runTeardown := func() {
		downMu.Lock()
		if downRan {
			downMu.Unlock()
			return
		}
		downRan = true
		fns := downFns
		downMu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
	addTeardown(func() {
		transcriptMu.Lock()
		log.Printf("[%s] Conversation transcript (%d turns):", callID, len(turns))
		for i, t := range turns {
			log.Printf("[%s] %02d %s: %s", callID, i+1, strings.ToUpper(t.Role), t.Text)
		}
		transcriptMu.Unlock()
		_ = transcriber.Close()
		_ = peerConnection.Close()
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] PeerConnection state: %s", callID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			runTeardown()
		}
	})
	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) { log.Printf("[%s] ICE state: %s", callID, state.String()) })

	// Control channel: the client can force a barge-in without speaking.
	var sessPtr atomic.Pointer[agent.Session]
	var pacedPtr atomic.Pointer[OpusPacedWriter]
	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] Control channel opened", callID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "stop", "stop-speaking", "cancel", "barge-in":
				if s := sessPtr.Load(); s != nil {
					s.BargeIn()
				}
				if p := pacedPtr.Load(); p != nil {
					p.Reset()
				}
			}
		})
	})

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] Remote audio track received: codec=%s", callID, remote.Codec().MimeType)

		paced, err := NewOpusPacedWriter(outTrack)
		if err != nil {
			log.Printf("[%s] Opus encoder error: %v", callID, err)
			return
		}
		pacedPtr.Store(paced)

		const pcm16kChunkBytes = 3200
		pcm16kBuf := make([]byte, 0, pcm16kChunkBytes*4)

		// Short beep to verify the audio path end to end.
		go playBeep(paced)

		sess := agent.NewSession(
			transcriber,
			h.llm,
			h.tts,
			paced,
			fl.Script(),
			nil, // live partials not surfaced in the browser demo
			func(user, assistantSpoken string) {
				transcriptMu.Lock()
				turns = append(turns, convoTurn{Role: "user", Text: user, At: time.Now()})
				if assistantSpoken != "" {
					turns = append(turns, convoTurn{Role: "assistant", Text: assistantSpoken, At: time.Now()})
				}
				transcriptMu.Unlock()
				if assistantSpoken != "" {
					log.Printf("[%s] SPOKEN assistant: %s", callID, assistantSpoken)
				} else {
					log.Printf("[%s] SPOKEN assistant: (none)", callID)
				}
			},
		)
		sessPtr.Store(sess)

		startMicReader := func(dec *opus.Decoder) {
			go func() {
				pcmSamples := make([]int16, 1920)
				for {
					pkt, _, readErr := remote.ReadRTP()
					if readErr != nil {
						log.Printf("[%s] RTP read error: %v", callID, readErr)
						return
					}
					if len(pkt.Payload) == 0 {
						continue
					}
					n, decErr := dec.Decode(pkt.Payload, pcmSamples)
					if decErr != nil {
						log.Printf("[%s] Opus decode error: %v", callID, decErr)
						continue
					}
					startLen := len(pcm16kBuf)
					need := n * 2
					if cap(pcm16kBuf)-len(pcm16kBuf) < need {
						newCap := len(pcm16kBuf) + need + pcm16kChunkBytes
						tmp := make([]byte, len(pcm16kBuf), newCap)
						copy(tmp, pcm16kBuf)
						pcm16kBuf = tmp
					}
					pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)+need]
					o := pcm16kBuf[startLen:]
					for i := 0; i < n; i++ {
						binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(pcmSamples[i]))
					}
					for len(pcm16kBuf) >= pcm16kChunkBytes {
						chunk := pcm16kBuf[:pcm16kChunkBytes]
						if err := transcriber.SendPCM16KLE(chunk); err != nil {
							log.Printf("[%s] stt send error: %v", callID, err)
						}
						copy(pcm16kBuf, pcm16kBuf[pcm16kChunkBytes:])
						pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)-pcm16kChunkBytes]
					}
				}
			}()
		}

		// Barge-in detection from recent voice activity, not partial text.
		var speaking int32
		doneCh := make(chan struct{})
		addTeardown(func() { close(doneCh) })
		go func() {
			ticker := time.NewTicker(40 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if atomic.LoadInt32(&speaking) == 1 && sess.IsSpeaking() {
						if transcriber.RecentlyDetectedVoice(150 * time.Millisecond) {
							log.Printf("[%s] barge-in: canceling TTS (VAD)", callID)
							sess.BargeIn()
							paced.Reset()
							atomic.StoreInt32(&speaking, 0)
						}
					}
				case <-doneCh:
					return
				}
			}
		}()

		if err := transcriber.Connect(); err != nil {
			log.Printf("[%s] Failed to connect to Deepgram (assistant replies disabled): %v", callID, err)
			return
		}
		dec, derr := opus.NewDecoder(16000, 1)
		if derr != nil {
			log.Printf("[%s] Opus decoder error: %v", callID, derr)
			return
		}
		startMicReader(dec)
		ctxSess, cancelSess := context.WithCancel(context.Background())
		stop, err := sess.Start(ctxSess)
		if err != nil {
			log.Printf("[%s] session start error: %v", callID, err)
		}

		// Sample speaking state for the barge-in monitor.
		go func() {
			t := time.NewTicker(20 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-ctxSess.Done():
					return
				case <-t.C:
					if sess.IsSpeaking() {
						atomic.StoreInt32(&speaking, 1)
					} else {
						atomic.StoreInt32(&speaking, 0)
					}
				}
			}
		}()

		// Greet after a short pause for negotiation to settle, then hand the
		// first word to the model so it can pick the conversation up.
		go func() {
			select {
			case <-ctxSess.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			sess.Say(ctxSess, fl.Greeting)
			if err := sess.Kickoff(ctxSess); err != nil {
				log.Printf("[%s] kickoff error: %v", callID, err)
			}
		}()

		addTeardown(func() {
			cancelSess()
			if stop != nil {
				stop()
			}
			paced.FlushTail()
			time.AfterFunc(400*time.Millisecond, func() { paced.Close() })
		})
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// playBeep writes a 300ms 440Hz tone through the paced writer.
func playBeep(paced *OpusPacedWriter) {
	const frameSamples = 960
	samplesTotal := 48000 * 300 / 1000
	phase := 0.0
	phaseInc := 2 * math.Pi * 440.0 / 48000.0
	frame := make([]byte, frameSamples*2)
	for generated := 0; generated < samplesTotal; generated += frameSamples {
		for i := 0; i < frameSamples; i++ {
			var v float64
			if generated+i < samplesTotal {
				v = math.Sin(phase) * 6000.0
				phase += phaseInc
			}
			s := uint16(int16(v))
			frame[2*i] = byte(s)
			frame[2*i+1] = byte(s >> 8)
		}
		paced.WritePCM(frame)
	}
}

func generateCallID() string { return uuid.NewString()[:8] }
