package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vesper-voice/vesper/internal/archive"
	"github.com/vesper-voice/vesper/internal/audio"
	"github.com/vesper-voice/vesper/internal/augment"
	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/memcore"
	"github.com/vesper-voice/vesper/internal/observability"
	"github.com/vesper-voice/vesper/internal/protocol"
	"github.com/vesper-voice/vesper/internal/session"
)

type fakeChannel struct {
	events       chan protocol.Event
	instructions chan string
	toolResults  chan toolReply
	audio        chan []byte
	closeOnce    sync.Once
}

type toolReply struct {
	callID string
	result protocol.ToolResult
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events:       make(chan protocol.Event, 64),
		instructions: make(chan string, 16),
		toolResults:  make(chan toolReply, 16),
		audio:        make(chan []byte, 256),
	}
}

func (c *fakeChannel) Events() <-chan protocol.Event { return c.events }

func (c *fakeChannel) SendAudio(pcm []byte) error {
	c.audio <- pcm
	return nil
}

func (c *fakeChannel) SendInstruction(text string) error {
	c.instructions <- text
	return nil
}

func (c *fakeChannel) SendToolResult(callID string, result protocol.ToolResult) error {
	c.toolResults <- toolReply{callID: callID, result: result}
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

type fakeDevices struct {
	proc  *audio.CaptureProcessor
	sched *audio.Scheduler
	fail  bool
}

func (d *fakeDevices) Start(proc *audio.CaptureProcessor, sched *audio.Scheduler) error {
	if d.fail {
		return errors.New("microphone permission denied")
	}
	d.proc = proc
	d.sched = sched
	return nil
}

func (d *fakeDevices) Stop() {}

type fakeAugmenter struct {
	result augment.Result
	block  chan struct{} // when non-nil, Augment waits on it
	calls  chan string
}

func newFakeAugmenter(result augment.Result) *fakeAugmenter {
	return &fakeAugmenter{result: result, calls: make(chan string, 8)}
}

func (a *fakeAugmenter) Augment(ctx context.Context, utterance string) augment.Result {
	a.calls <- utterance
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
		}
	}
	return a.result
}

type fakeMemStore struct {
	mu       sync.Mutex
	inserted []string
}

func (s *fakeMemStore) Insert(_ context.Context, content, _ string, _ []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, content)
	return "rec-1"
}

func (s *fakeMemStore) Search(context.Context, string, []string) []memcore.Record {
	return []memcore.Record{{ID: "rec-2", Content: "likes tea", Category: "preferences", CreatedAt: time.Now()}}
}

type harness struct {
	sess    *Session
	ch      *fakeChannel
	devices *fakeDevices
	aug     *fakeAugmenter
	store   *fakeMemStore
	turns   *archive.InMemoryStore
	tracker *session.Tracker
}

func newHarness(t *testing.T, aug *fakeAugmenter) *harness {
	t.Helper()
	h := &harness{
		ch:      newFakeChannel(),
		devices: &fakeDevices{},
		aug:     aug,
		store:   &fakeMemStore{},
		turns:   archive.NewInMemoryStore(),
		tracker: session.NewTracker(),
	}
	cfg := config.Config{
		CaptureSampleRate:  config.WireSampleRate,
		PlaybackSampleRate: 1000,
		FrameSamples:       64,
		ClassifierTimeout:  2 * time.Second,
	}
	h.sess = NewSession(Deps{
		Config:  cfg,
		Dial:    func(context.Context) (Channel, error) { return h.ch, nil },
		Devices: h.devices,
		Augment: aug,
		Store:   h.store,
		Turns:   h.turns,
		Tracker: h.tracker,
		Log:     eventlog.New(64),
		Metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
		Window:  observability.NewLatencyWindow(16),
		Meter:   &audio.LevelMeter{},
	})
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		h.sess.Disconnect()
		waitFor(t, func() bool { return !h.sess.Connected() })
	})
}

func (h *harness) userSays(text string) {
	h.ch.events <- protocol.Event{Type: protocol.EventTranscriptDelta, Source: protocol.SourceUser, Text: text}
}

func (h *harness) agentAudio() {
	h.ch.events <- protocol.Event{Type: protocol.EventAudioDelta, PCM: make([]byte, 200)}
}

func (h *harness) turnComplete() {
	h.ch.events <- protocol.Event{Type: protocol.EventTurnComplete}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func expectCall(t *testing.T, a *fakeAugmenter) string {
	t.Helper()
	select {
	case got := <-a.calls:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("augmenter was not invoked")
		return ""
	}
}

func expectInstruction(t *testing.T, ch *fakeChannel) string {
	t.Helper()
	select {
	case got := <-ch.instructions:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("no instruction sent")
		return ""
	}
}

func expectNoCall(t *testing.T, a *fakeAugmenter) {
	t.Helper()
	select {
	case got := <-a.calls:
		t.Fatalf("unexpected augmenter call %q", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMicFailureTearsDown(t *testing.T) {
	h := newHarness(t, newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone}))
	h.devices.fail = true

	if err := h.sess.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded despite microphone failure")
	}
	if h.sess.Connected() {
		t.Fatal("session still running after device failure")
	}
	if got := h.tracker.Snapshot().Status; got != session.StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", got)
	}
}

func TestEarlyCommitTriggersAugmentation(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeInjected, Text: "[ARCHIVE:rec-2 | preferences] likes tea"})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("what do I like to drink?")
	h.agentAudio()

	if got := expectCall(t, aug); got != "what do I like to drink?" {
		t.Fatalf("augmented utterance = %q", got)
	}
	if filler := expectInstruction(t, h.ch); !strings.Contains(filler, "filler") {
		t.Fatalf("first instruction = %q, want thinking filler", filler)
	}
	followUp := expectInstruction(t, h.ch)
	if !strings.Contains(followUp, "likes tea") || !strings.Contains(followUp, "what do I like to drink?") {
		t.Fatalf("follow-up = %q", followUp)
	}

	// The buffer was cleared at the early commit, so the formal turn-complete
	// event must not trigger a second augmentation.
	h.turnComplete()
	expectNoCall(t, aug)
}

func TestNoneOutcomeStillReleasesAgent(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("what is the weather like today?")
	h.agentAudio()

	if got := expectCall(t, aug); got != "what is the weather like today?" {
		t.Fatalf("augmented utterance = %q", got)
	}
	if filler := expectInstruction(t, h.ch); !strings.Contains(filler, "filler") {
		t.Fatalf("first instruction = %q, want thinking filler", filler)
	}

	// The filler told the agent to stall, so a no-op augmentation must still
	// send the release follow-up with the no-data marker and the question.
	followUp := expectInstruction(t, h.ch)
	if !strings.Contains(followUp, memcore.NoData) || !strings.Contains(followUp, "what is the weather like today?") {
		t.Fatalf("follow-up = %q", followUp)
	}
}

func TestSavedFollowUpRestatesUtterance(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeSaved, Text: `Archived under rec-1 in category "general".`})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("remember that my cat is named Luna")
	h.agentAudio()

	_ = expectCall(t, aug)
	_ = expectInstruction(t, h.ch) // filler
	followUp := expectInstruction(t, h.ch)
	if !strings.Contains(followUp, "Archived under rec-1") ||
		!strings.Contains(followUp, "remember that my cat is named Luna") {
		t.Fatalf("follow-up = %q", followUp)
	}
}

func TestTurnCompleteFallbackWithoutAudio(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("note that my cat is named Luna")
	h.turnComplete()

	if got := expectCall(t, aug); got != "note that my cat is named Luna" {
		t.Fatalf("augmented utterance = %q", got)
	}
}

func TestSingleSlotDropsSecondTrigger(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	aug.block = make(chan struct{})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("first question")
	h.agentAudio()
	if got := expectCall(t, aug); got != "first question" {
		t.Fatalf("first utterance = %q", got)
	}
	_ = expectInstruction(t, h.ch) // filler for the first trigger

	// A second utterance completes while the first augmentation is still in
	// flight: the trigger is dropped, not queued.
	h.userSays("second question")
	h.turnComplete()
	expectNoCall(t, aug)

	close(aug.block)
	expectNoCall(t, aug) // the dropped utterance is not replayed
}

func TestRecordingAccumulation(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeSaved, Text: "Archived under rec-1."})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("begin recording")
	waitFor(t, func() bool { return h.tracker.Snapshot().Recording })
	h.userSays(" fact A")
	h.turnComplete()
	h.userSays("fact B")
	h.turnComplete()
	h.userSays("fact C end recording")

	if got := expectCall(t, aug); got != "fact A fact B fact C" {
		t.Fatalf("flushed dictation = %q, want %q", got, "fact A fact B fact C")
	}
	expectNoCall(t, aug)
	waitFor(t, func() bool { return !h.tracker.Snapshot().Recording })
}

func TestRecordingSuppressesToolCalls(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.userSays("start recording")
	waitFor(t, func() bool { return h.tracker.Snapshot().Recording })

	h.ch.events <- protocol.Event{Type: protocol.EventToolCall, Call: &protocol.ToolCall{
		Name:      protocol.ToolCommitToMemoryCore,
		CallID:    "c1",
		Arguments: `{"content":"should not land"}`,
	}}
	h.turnComplete()

	select {
	case reply := <-h.ch.toolResults:
		t.Fatalf("tool call honored during recording: %+v", reply)
	case <-time.After(150 * time.Millisecond):
	}
	h.store.mu.Lock()
	inserted := len(h.store.inserted)
	h.store.mu.Unlock()
	if inserted != 0 {
		t.Fatalf("insert count = %d, want 0 while recording", inserted)
	}
}

func TestToolCalls(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.ch.events <- protocol.Event{Type: protocol.EventToolCall, Call: &protocol.ToolCall{
		Name:      protocol.ToolCommitToMemoryCore,
		CallID:    "c1",
		Arguments: `{"content":"likes tea","category":"preferences"}`,
	}}
	reply := <-h.ch.toolResults
	if reply.callID != "c1" || !strings.Contains(reply.result.Result, "rec-1") {
		t.Fatalf("commit reply = %+v", reply)
	}

	h.ch.events <- protocol.Event{Type: protocol.EventToolCall, Call: &protocol.ToolCall{
		Name:      protocol.ToolRetrieveFromMemoryCore,
		CallID:    "c2",
		Arguments: `{"query":"tea"}`,
	}}
	reply = <-h.ch.toolResults
	if !strings.Contains(reply.result.Result, "[ARCHIVE:rec-2 | preferences] likes tea") {
		t.Fatalf("retrieve reply = %+v", reply)
	}

	h.ch.events <- protocol.Event{Type: protocol.EventToolCall, Call: &protocol.ToolCall{
		Name:      "launchMissiles",
		CallID:    "c3",
		Arguments: `{}`,
	}}
	reply = <-h.ch.toolResults
	if !strings.Contains(reply.result.Result, "error") {
		t.Fatalf("unknown tool reply = %+v", reply)
	}
}

func TestInterruptionClearsPlaybackAndAgentBuffer(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.ch.events <- protocol.Event{Type: protocol.EventTranscriptDelta, Source: protocol.SourceAgent, Text: "Here is a very long answer"}
	h.agentAudio()
	waitFor(t, func() bool { return h.sess.Scheduler().ActiveCount() > 0 })

	h.ch.events <- protocol.Event{Type: protocol.EventInterrupted}
	waitFor(t, func() bool { return h.sess.Scheduler().ActiveCount() == 0 })
	if got := h.sess.Scheduler().Cursor(); got != 0 {
		t.Fatalf("cursor after interrupt = %v, want 0", got)
	}
	waitFor(t, func() bool { return h.tracker.Snapshot().InterruptionCount == 1 })

	// The discarded agent transcript must not reach the archive.
	h.turnComplete()
	time.Sleep(50 * time.Millisecond)
	sessionID := h.tracker.Snapshot().SessionID
	turns, _ := h.turns.RecentTurns(context.Background(), sessionID, 10)
	for _, turn := range turns {
		if turn.Speaker == archive.SpeakerAgent {
			t.Fatalf("interrupted agent turn was archived: %+v", turn)
		}
	}
}

func TestCaptureFramesForwarded(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	samples := make([]float32, 64)
	for i := range samples {
		samples[i] = 0.5
	}
	if err := h.devices.proc.ProcessFrame(samples); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}

	select {
	case frame := <-h.ch.audio:
		if len(frame) != len(samples)*2 {
			t.Fatalf("frame size = %d, want %d", len(frame), len(samples)*2)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("captured frame never reached the channel")
	}
}

func TestAgentEmotionAnnotation(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	h.ch.events <- protocol.Event{Type: protocol.EventTranscriptDelta, Source: protocol.SourceAgent, Text: "Happy: glad you asked!"}
	waitFor(t, func() bool { return h.tracker.Snapshot().Emotion == "happy" })
}

func TestConnectTwiceFails(t *testing.T) {
	aug := newFakeAugmenter(augment.Result{Outcome: augment.OutcomeNone})
	h := newHarness(t, aug)
	h.connect(t)

	if err := h.sess.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
}
