// Package config loads runtime settings from the environment, with
// .env.local taking precedence over .env.
package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	DataDir     string `env:"DATA_DIR" envDefault:"shared-data"`

	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`
	STTModel       string `env:"STT_MODEL" envDefault:"nova-3"`

	TTSProvider       string `env:"TTS_PROVIDER" envDefault:"deepgram"`
	TTSModel          string `env:"TTS_MODEL" envDefault:"aura-2-thalia-en"`
	ElevenLabsKey     string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gemini-2.5-flash"`

	AuthPassword string `env:"CALL_AUTH_PASSWORD"`
	BaseURL      string `env:"BASE_URL"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	RecordCalls      bool   `env:"RECORD_CALLS"`

	SupabaseURL    string `env:"SUPABASE_URL"`
	SupabaseKey    string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket string `env:"SUPABASE_BUCKET" envDefault:"voice-recording"`
}

// Load reads .env.local then .env, parses the environment and warns about
// missing provider keys. Startup continues with the affected feature disabled.
func Load() Config {
	localErr := godotenv.Load(".env.local")
	dotErr := godotenv.Load()
	if localErr != nil && dotErr != nil {
		log.Println("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	if cfg.DeepgramAPIKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - LLM will not work")
	}
	if cfg.TTSProvider == "elevenlabs" && (cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "") {
		log.Println("Warning: TTS_PROVIDER=elevenlabs needs ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID")
	}

	log.Printf("config: HTTP_ADDRESS=%s DATA_DIR=%s", cfg.HTTPAddress, cfg.DataDir)
	return cfg
}
