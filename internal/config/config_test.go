package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != "127.0.0.1:8090" {
		t.Fatalf("BindAddr = %q, want default", cfg.BindAddr)
	}
	if cfg.CaptureSampleRate != 48000 {
		t.Fatalf("CaptureSampleRate = %d, want 48000", cfg.CaptureSampleRate)
	}
	if cfg.MemoryPartition != "memory-core" {
		t.Fatalf("MemoryPartition = %q, want memory-core", cfg.MemoryPartition)
	}
}

func TestLoadRejectsUpsamplingCaptureRate(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUDIO_CAPTURE_SAMPLE_RATE", "8000")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want capture-rate validation error")
	}
}

func TestLoadParsesExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MEMCORE_WS_URL", "ws://localhost:7070/core")
	t.Setenv("CLASSIFIER_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MemoryCoreURL != "ws://localhost:7070/core" {
		t.Fatalf("MemoryCoreURL = %q, want explicit value", cfg.MemoryCoreURL)
	}
	if cfg.ClassifierTimeout.Seconds() != 2 {
		t.Fatalf("ClassifierTimeout = %v, want 2s", cfg.ClassifierTimeout)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_DEBUG_DUMP_DIR",
		"REALTIME_WS_URL",
		"REALTIME_API_KEY",
		"REALTIME_MODEL",
		"REALTIME_VOICE",
		"AGENT_NAME",
		"AUDIO_CAPTURE_SAMPLE_RATE",
		"AUDIO_PLAYBACK_SAMPLE_RATE",
		"AUDIO_FRAME_SAMPLES",
		"MEMCORE_WS_URL",
		"MEMCORE_LOGIN",
		"MEMCORE_PASSWORD",
		"MEMCORE_PARTITION",
		"CLASSIFIER_URL",
		"CLASSIFIER_TIMEOUT",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
