// Package app assembles the runtime: configuration in, a fully wired voice
// session plus its control API out.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vesper-voice/vesper/internal/archive"
	"github.com/vesper-voice/vesper/internal/audio"
	"github.com/vesper-voice/vesper/internal/augment"
	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/httpapi"
	"github.com/vesper-voice/vesper/internal/intent"
	"github.com/vesper-voice/vesper/internal/memcore"
	"github.com/vesper-voice/vesper/internal/observability"
	"github.com/vesper-voice/vesper/internal/realtime"
	"github.com/vesper-voice/vesper/internal/session"
	"github.com/vesper-voice/vesper/internal/voice"
)

// BuildResult bundles the wired components a command needs to run the app.
type BuildResult struct {
	Config  config.Config
	Log     *eventlog.Log
	Metrics *observability.Metrics
	Tracker *session.Tracker
	Session *voice.Session
	API     *httpapi.Server

	// Cleanup should be called on shutdown to release external resources
	// (memory backend connection, transcript store).
	Cleanup func() error
}

// Build constructs the full dependency graph. Nothing dials out yet; the
// speech channel and memory backend connect lazily on first use.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	log := eventlog.New(256)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewLatencyWindow(128)
	tracker := session.NewTracker()
	meter := &audio.LevelMeter{}

	turns, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	mem := memcore.NewClient(memcore.Config{
		URL:       cfg.MemoryCoreURL,
		Login:     cfg.MemoryCoreLogin,
		Password:  cfg.MemoryCorePassword,
		Partition: cfg.MemoryPartition,
	}, log)

	classifier := intent.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout, log)
	engine := augment.NewEngine(classifier, mem, log)

	devices := audio.NewEngine(cfg.CaptureSampleRate, cfg.PlaybackSampleRate, cfg.FrameSamples)

	dial := func(ctx context.Context) (voice.Channel, error) {
		return realtime.Dial(ctx, realtime.Config{
			URL:          cfg.RealtimeWSURL,
			APIKey:       cfg.RealtimeAPIKey,
			Model:        cfg.RealtimeModel,
			Voice:        cfg.RealtimeVoice,
			Instructions: agentInstructions(cfg.AgentName),
		})
	}

	sess := voice.NewSession(voice.Deps{
		Config:  cfg,
		Dial:    dial,
		Devices: devices,
		Augment: engine,
		Store:   mem,
		Turns:   turns,
		Tracker: tracker,
		Log:     log,
		Metrics: metrics,
		Window:  window,
		Meter:   meter,
	})

	api := httpapi.New(cfg, sess, tracker, log, window, mem, meter)

	cleanup := func() error {
		sess.Disconnect()
		mem.Close()
		var errs []string
		if err := turns.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		Log:     log,
		Metrics: metrics,
		Tracker: tracker,
		Session: sess,
		API:     api,
		Cleanup: cleanup,
	}, nil
}

// agentInstructions is the standing system prompt for the speech session.
// Emotion prefixes drive the avatar state on the status surface.
func agentInstructions(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "Vesper"
	}
	return fmt.Sprintf(
		"You are %s, a warm and concise voice companion. "+
			"Begin every spoken reply with a single emotion word and a colon, "+
			"for example \"Happy:\" or \"Thinking:\", then continue naturally. "+
			"Use the commitToMemoryCore tool when the user asks you to remember something, "+
			"and the retrieveFromMemoryCore tool when they ask about something you may have stored. "+
			"Keep answers short; this is a spoken conversation.", name)
}
