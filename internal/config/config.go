package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the vesper voice client.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	RealtimeWSURL  string
	RealtimeAPIKey string
	RealtimeModel  string
	RealtimeVoice  string
	AgentName      string

	CaptureSampleRate  int
	PlaybackSampleRate int
	FrameSamples       int

	MemoryCoreURL      string
	MemoryCoreLogin    string
	MemoryCorePassword string
	MemoryPartition    string

	ClassifierURL     string
	ClassifierTimeout time.Duration

	DatabaseURL  string
	DebugDumpDir string
}

// WireSampleRate is the outbound microphone rate the remote channel expects.
const WireSampleRate = 16000

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", "127.0.0.1:8090"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "vesper"),
		ShutdownTimeout:  15 * time.Second,

		RealtimeWSURL:  envOrDefault("REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeAPIKey: stringsTrimSpace("REALTIME_API_KEY"),
		RealtimeModel:  envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice:  envOrDefault("REALTIME_VOICE", "ash"),
		AgentName:      envOrDefault("AGENT_NAME", "Vesper"),

		CaptureSampleRate:  48000,
		PlaybackSampleRate: 24000,
		FrameSamples:       1024,

		MemoryCoreURL:      stringsTrimSpace("MEMCORE_WS_URL"),
		MemoryCoreLogin:    stringsTrimSpace("MEMCORE_LOGIN"),
		MemoryCorePassword: stringsTrimSpace("MEMCORE_PASSWORD"),
		MemoryPartition:    envOrDefault("MEMCORE_PARTITION", "memory-core"),

		ClassifierURL:     stringsTrimSpace("CLASSIFIER_URL"),
		ClassifierTimeout: 8 * time.Second,

		DatabaseURL:  stringsTrimSpace("DATABASE_URL"),
		DebugDumpDir: stringsTrimSpace("APP_DEBUG_DUMP_DIR"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ClassifierTimeout, err = durationFromEnv("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("AUDIO_CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackSampleRate, err = intFromEnv("AUDIO_PLAYBACK_SAMPLE_RATE", cfg.PlaybackSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.FrameSamples, err = intFromEnv("AUDIO_FRAME_SAMPLES", cfg.FrameSamples)
	if err != nil {
		return Config{}, err
	}

	if cfg.CaptureSampleRate < WireSampleRate {
		return Config{}, fmt.Errorf("AUDIO_CAPTURE_SAMPLE_RATE must be at least %d (downsample only)", WireSampleRate)
	}
	if cfg.PlaybackSampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_PLAYBACK_SAMPLE_RATE must be positive")
	}
	if cfg.FrameSamples <= 0 {
		return Config{}, fmt.Errorf("AUDIO_FRAME_SAMPLES must be positive")
	}
	if cfg.ClassifierTimeout <= 0 {
		return Config{}, fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
