// The coffeeorder server runs the coffee order voice agent: callers build up
// an order (drink, size, milk, extras, name) and it is saved as JSON under
// DATA_DIR/coffee_orders, one file per order.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/config"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/flow"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/httpserver"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/llm"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/rtc"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/storage"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/telephony"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	log.Printf("voice agent flow: coffee order")

	orders, err := store.NewOrderStore(filepath.Join(cfg.DataDir, "coffee_orders"))
	if err != nil {
		log.Fatalf("init order store: %v", err)
	}

	var mirror store.Mirror
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb, err := storage.NewSupabase(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("supabase mirror disabled: %v", err)
		} else {
			mirror = sb
			orders.WithMirror(mirror)
		}
	}

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)

	var ttsClient agent.TTS
	if cfg.TTSProvider == "elevenlabs" {
		ttsClient = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	} else {
		ttsClient = tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.TTSModel)
	}

	newFlow := func() *flow.Flow { return flow.NewCoffeeOrder(orders) }

	rtcHandler := rtc.NewHandler(cfg.DeepgramAPIKey, cfg.STTModel).
		WithLLM(llmClient).
		WithTTS(ttsClient).
		WithFlow(newFlow)

	var twilioSvc *telephony.Service
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioSvc = telephony.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.BaseURL, llmClient, newFlow)
		if cfg.RecordCalls && mirror != nil {
			twilioSvc = twilioSvc.WithRecording(mirror)
		}
	}

	srv := httpserver.New(httpserver.Options{
		RTC:          rtcHandler,
		Twilio:       twilioSvc,
		AuthPassword: cfg.AuthPassword,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
