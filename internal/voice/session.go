// Package voice is the realtime session orchestrator. It owns the lifecycle
// of the speech-channel connection, the turn and recording state machine,
// transcript accumulation, interruption handling, and the decision of when to
// hand a completed utterance to the augmentation engine without blocking the
// audio timeline.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vesper-voice/vesper/internal/archive"
	"github.com/vesper-voice/vesper/internal/audio"
	"github.com/vesper-voice/vesper/internal/augment"
	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/memcore"
	"github.com/vesper-voice/vesper/internal/observability"
	"github.com/vesper-voice/vesper/internal/policy"
	"github.com/vesper-voice/vesper/internal/protocol"
	"github.com/vesper-voice/vesper/internal/session"
)

const logSource = "session"

// Channel is the duplex speech-service connection the orchestrator drives.
type Channel interface {
	Events() <-chan protocol.Event
	SendAudio(pcm []byte) error
	SendInstruction(text string) error
	SendToolResult(callID string, result protocol.ToolResult) error
	Close() error
}

// Dialer opens a speech channel.
type Dialer func(ctx context.Context) (Channel, error)

// Devices is the audio hardware pair. Start failures are fatal to the session.
type Devices interface {
	Start(proc *audio.CaptureProcessor, sched *audio.Scheduler) error
	Stop()
}

// Augmenter classifies an utterance and performs the memory side effect.
type Augmenter interface {
	Augment(ctx context.Context, utterance string) augment.Result
}

// MemoryStore is the slice of the memcore client used for tool calls.
type MemoryStore interface {
	Insert(ctx context.Context, content, category string, tags []string) string
	Search(ctx context.Context, query string, tags []string) []memcore.Record
}

// Deps carries everything the orchestrator drives.
type Deps struct {
	Config  config.Config
	Dial    Dialer
	Devices Devices
	Augment Augmenter
	Store   MemoryStore
	Turns   archive.Store
	Tracker *session.Tracker
	Log     *eventlog.Log
	Metrics *observability.Metrics
	Window  *observability.LatencyWindow
	Meter   *audio.LevelMeter
}

// Session is the single live voice session. At most one connection runs at a
// time; Connect on a running session fails.
type Session struct {
	deps Deps

	mu         sync.Mutex
	running    bool
	generation int
	cancel     context.CancelFunc
	sched      *audio.Scheduler
}

var ErrAlreadyConnected = errors.New("session already connected")

func NewSession(deps Deps) *Session {
	return &Session{deps: deps}
}

// Connect dials the speech channel and acquires the audio devices. A
// microphone failure tears the session back down even though the channel
// opened. On success the event loop runs until disconnect, channel close, or
// an unrecoverable error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.running = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	id := s.deps.Tracker.Begin()
	s.deps.Log.Info(logSource, "connecting")

	ch, err := s.deps.Dial(ctx)
	if err != nil {
		s.deps.Tracker.SetStatus(session.StatusDisconnected)
		s.deps.Log.Error(logSource, "connect failed: "+err.Error())
		s.setStopped(gen)
		return err
	}

	sched := audio.NewScheduler(s.deps.Config.PlaybackSampleRate)
	proc := audio.NewCaptureProcessor(s.deps.Config.CaptureSampleRate, config.WireSampleRate, s.deps.Meter)
	if err := s.deps.Devices.Start(proc, sched); err != nil {
		_ = ch.Close()
		s.deps.Tracker.SetStatus(session.StatusDisconnected)
		s.deps.Log.Error(logSource, "audio device failed: "+err.Error())
		s.setStopped(gen)
		return fmt.Errorf("acquire audio devices: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.sched = sched
	s.mu.Unlock()

	s.deps.Tracker.SetStatus(session.StatusConnected)
	s.deps.Metrics.SessionActive.Set(1)
	s.deps.Metrics.SessionEvents.WithLabelValues("connect").Inc()
	s.deps.Window.Reset()
	s.deps.Log.Success(logSource, "connected")

	go s.run(runCtx, gen, id, ch, proc, sched)
	return nil
}

// Disconnect ends the running session, if any.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Connected reports whether the event loop is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Scheduler exposes the live playback scheduler for status reporting.
// Nil when disconnected.
func (s *Session) Scheduler() *audio.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

func (s *Session) setStopped(gen int) {
	s.mu.Lock()
	if s.generation == gen {
		s.running = false
		s.cancel = nil
		s.sched = nil
	}
	s.mu.Unlock()
}

type augmentDone struct {
	utterance string
	result    augment.Result
	elapsed   time.Duration
}

// run is the single-goroutine conversation loop: all turn state lives in its
// locals and is mutated only here, in strict event order.
func (s *Session) run(ctx context.Context, gen int, sessionID string, ch Channel, proc *audio.CaptureProcessor, sched *audio.Scheduler) {
	defer func() {
		s.deps.Devices.Stop()
		sched.Interrupt()
		_ = ch.Close()
		s.deps.Tracker.SetStatus(session.StatusDisconnected)
		s.deps.Metrics.SessionActive.Set(0)
		s.deps.Metrics.SessionEvents.WithLabelValues("disconnect").Inc()
		s.deps.Log.Info(logSource, "disconnected")
		s.setStopped(gen)
	}()

	var (
		userBuf        strings.Builder
		agentBuf       strings.Builder
		recordingBuf   strings.Builder
		recording      bool
		augmentBusy    bool
		agentAudioSeen bool
		lastUserSpeech time.Time
		droppedSeen    int64
		dumpBuf        []byte
	)
	results := make(chan augmentDone, 1)

	// Dump capped at ten minutes of outbound wire audio.
	const maxDumpBytes = config.WireSampleRate * 2 * 600
	dumpDir := s.deps.Config.DebugDumpDir
	defer func() {
		if dumpDir == "" || len(dumpBuf) == 0 {
			return
		}
		path, err := audio.DumpWAV(dumpDir, dumpBuf, config.WireSampleRate)
		if err != nil {
			s.deps.Log.Error(logSource, "write capture dump: "+err.Error())
			return
		}
		s.deps.Log.Info(logSource, "capture dump written to "+path)
	}()

	archiveTurn := func(speaker, content string) {
		content = strings.TrimSpace(content)
		if s.deps.Turns == nil || content == "" {
			return
		}
		redacted, changed := policy.RedactPII(content)
		rec := archive.TurnRecord{
			SessionID:   sessionID,
			Speaker:     speaker,
			Content:     redacted,
			PIIRedacted: changed,
		}
		go func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.deps.Turns.SaveTurn(saveCtx, rec); err != nil {
				s.deps.Log.Error(logSource, "archive turn: "+err.Error())
			}
		}()
	}

	// startAugment enforces the single in-flight slot: a trigger arriving
	// while one is busy is dropped, as a deliberate policy.
	startAugment := func(utterance string) {
		if augmentBusy {
			s.deps.Metrics.Augmentations.WithLabelValues("dropped").Inc()
			s.deps.Window.ObserveIndicator("augment_dropped")
			s.deps.Log.Info(logSource, "augmentation trigger dropped, one already in flight")
			return
		}
		augmentBusy = true

		filler := randomFiller()
		if err := ch.SendInstruction(fmt.Sprintf(
			"Say only this short filler for now, nothing else: %q", filler)); err != nil {
			s.deps.Log.Error(logSource, "send filler: "+err.Error())
		}

		started := time.Now()
		go func() {
			actx, cancel := context.WithTimeout(ctx, s.deps.Config.ClassifierTimeout)
			defer cancel()
			res := s.deps.Augment.Augment(actx, utterance)
			select {
			case results <- augmentDone{utterance: utterance, result: res, elapsed: time.Since(started)}:
			case <-ctx.Done():
			}
		}()
	}

	// extractAndAugment is the one idempotent "utterance complete" path,
	// reached from the early-commit heuristic and from the turn-complete
	// fallback. Extracting an empty buffer is a no-op.
	extractAndAugment := func() {
		utterance := strings.TrimSpace(userBuf.String())
		userBuf.Reset()
		if utterance == "" {
			return
		}
		archiveTurn(archive.SpeakerUser, utterance)
		startAugment(utterance)
	}

	handleToolCall := func(call *protocol.ToolCall) {
		if call == nil {
			return
		}
		if recording {
			s.deps.Log.Info(logSource, "tool call suppressed while recording: "+call.Name)
			return
		}
		var result string
		switch call.Name {
		case protocol.ToolCommitToMemoryCore:
			args, err := protocol.ParseCommitArgs(call.Arguments)
			if err != nil {
				result = "error: " + err.Error()
				break
			}
			started := time.Now()
			id := s.deps.Store.Insert(ctx, args.Content, args.Category, args.Tags)
			s.deps.Window.Observe(observability.StageMemcoreInsert, time.Since(started))
			outcome := "ok"
			if strings.HasPrefix(id, "offline-id-") {
				outcome = "degraded"
			}
			s.deps.Metrics.MemcoreOps.WithLabelValues("insert", outcome).Inc()
			result = "archived as " + id
		case protocol.ToolRetrieveFromMemoryCore:
			args, err := protocol.ParseRetrieveArgs(call.Arguments)
			if err != nil {
				result = "error: " + err.Error()
				break
			}
			started := time.Now()
			records := s.deps.Store.Search(ctx, args.Query, nil)
			s.deps.Window.Observe(observability.StageMemcoreFetch, time.Since(started))
			s.deps.Metrics.MemcoreOps.WithLabelValues("search", "ok").Inc()
			result = memcore.FormatForInjection(records)
		default:
			result = "error: unknown tool " + call.Name
		}
		if err := ch.SendToolResult(call.CallID, protocol.ToolResult{Result: result}); err != nil {
			s.deps.Log.Error(logSource, "send tool result: "+err.Error())
		}
	}

	handleUserDelta := func(text string) {
		s.deps.Tracker.Touch()
		userBuf.WriteString(text)
		lastUserSpeech = time.Now()

		if recording {
			if before, _, ok := matchTrigger(userBuf.String(), stopPhrases); ok {
				recordingBuf.WriteString(" " + before)
				utterance := collapseSpaces(recordingBuf.String())
				recordingBuf.Reset()
				userBuf.Reset()
				recording = false
				s.deps.Tracker.SetRecording(false)
				s.deps.Log.Info(logSource, "recording stopped, flushing dictation")
				if utterance != "" {
					archiveTurn(archive.SpeakerUser, utterance)
					startAugment(utterance)
				}
			}
			return
		}

		if _, after, ok := matchTrigger(userBuf.String(), startPhrases); ok {
			recording = true
			recordingBuf.Reset()
			recordingBuf.WriteString(after)
			userBuf.Reset()
			s.deps.Tracker.SetRecording(true)
			s.deps.Log.Info(logSource, "recording started")
		}
	}

	handleAudioDelta := func(pcm []byte) {
		if _, err := sched.Schedule(pcm); err != nil {
			s.deps.Metrics.PlaybackDecodeErrors.Inc()
			s.deps.Log.Error(logSource, "dropped malformed audio chunk: "+err.Error())
			return
		}
		s.deps.Metrics.PlaybackChunks.Inc()

		if !agentAudioSeen {
			agentAudioSeen = true
			if !lastUserSpeech.IsZero() {
				d := time.Since(lastUserSpeech)
				s.deps.Metrics.ObserveFirstAudioLatency(d)
				s.deps.Window.Observe(observability.StageFirstAudio, d)
			}
			// Early-commit heuristic: the agent has started answering, so
			// the user's utterance is complete. Do not wait for the formal
			// turn-complete event.
			if !recording && !augmentBusy && userBuf.Len() > 0 {
				extractAndAugment()
			}
		}
	}

	handleTurnComplete := func() {
		s.deps.Tracker.Touch()
		s.deps.Metrics.SessionEvents.WithLabelValues("turn_complete").Inc()
		if recording {
			turnText := userBuf.String()
			userBuf.Reset()
			recordingBuf.WriteString(" " + turnText)
			archiveTurn(archive.SpeakerUser, turnText)
		} else {
			// Fallback for turns where no agent audio preceded the event.
			extractAndAugment()
		}
		archiveTurn(archive.SpeakerAgent, agentBuf.String())
		agentBuf.Reset()
		agentAudioSeen = false
	}

	handleInterrupted := func() {
		sched.Interrupt()
		agentBuf.Reset() // discarded, not archived
		agentAudioSeen = false
		s.deps.Tracker.Interrupted()
		s.deps.Metrics.SessionEvents.WithLabelValues("interrupted").Inc()
		s.deps.Log.Info(logSource, "agent interrupted, playback cleared")
	}

	handleAugmentDone := func(done augmentDone) {
		augmentBusy = false
		s.deps.Window.Observe(observability.StageAugmentTotal, done.elapsed)
		s.deps.Metrics.Augmentations.WithLabelValues(string(done.result.Outcome)).Inc()

		// The filler instruction told the agent to stall, so every outcome
		// must send a follow-up to release it, including no-op augmentations.
		var followUp string
		switch done.result.Outcome {
		case augment.OutcomeSaved:
			followUp = fmt.Sprintf(
				"%s Briefly confirm this to the user. They said: %q",
				done.result.Text, done.utterance)
		case augment.OutcomeInjected:
			followUp = fmt.Sprintf(
				"Context from the memory archive:\n%s\n\nThe user asked: %q\nAnswer the question now using this context.",
				done.result.Text, done.utterance)
		default:
			followUp = fmt.Sprintf(
				"Context from the memory archive:\n%s\n\nThe user said: %q\nAnswer them now.",
				memcore.NoData, done.utterance)
		}
		if err := ch.SendInstruction(followUp); err != nil {
			s.deps.Log.Error(logSource, "send follow-up: "+err.Error())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-proc.Frames():
			if !ok {
				return
			}
			if dropped := proc.Dropped(); dropped > droppedSeen {
				s.deps.Metrics.CaptureFramesDropped.Add(float64(dropped - droppedSeen))
				droppedSeen = dropped
			}
			if err := ch.SendAudio(frame); err != nil {
				s.deps.Log.Error(logSource, "send audio: "+err.Error())
				return
			}
			if dumpDir != "" && len(dumpBuf) < maxDumpBytes {
				dumpBuf = append(dumpBuf, frame...)
			}

		case done := <-results:
			handleAugmentDone(done)

		case evt, ok := <-ch.Events():
			if !ok {
				return
			}
			switch evt.Type {
			case protocol.EventTranscriptDelta:
				if evt.Source == protocol.SourceUser {
					handleUserDelta(evt.Text)
				} else {
					agentBuf.WriteString(evt.Text)
					s.deps.Tracker.SetEmotion(detectEmotion(agentBuf.String()))
				}
			case protocol.EventAudioDelta:
				handleAudioDelta(evt.PCM)
			case protocol.EventToolCall:
				handleToolCall(evt.Call)
			case protocol.EventTurnComplete:
				handleTurnComplete()
			case protocol.EventInterrupted:
				handleInterrupted()
			case protocol.EventError:
				s.deps.Log.Error(logSource, fmt.Sprintf("channel error %s: %s", evt.Code, evt.Detail))
				return
			case protocol.EventClosed:
				s.deps.Log.Info(logSource, "channel closed")
				return
			}
		}
	}
}
