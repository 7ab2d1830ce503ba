package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/broadcast"
	"github.com/ternarybob/playforge/internal/services/llm"
)

const validResponse = `{"html":"<div id=\"game\"></div>","css":"#game{width:100%}","js":"start()"}`

type event struct {
	Type    string
	Payload map[string]interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []event
}

func (h *recordingHub) Broadcast(eventType string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	var decoded map[string]interface{}
	_ = json.Unmarshal(raw, &decoded)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{Type: eventType, Payload: decoded})
}

func (h *recordingHub) all() []event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]event, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHub) ofType(eventType string) []event {
	var out []event
	for _, e := range h.all() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (h *recordingHub) indexOf(eventType string) int {
	for i, e := range h.all() {
		if e.Type == eventType {
			return i
		}
	}
	return -1
}

type response struct {
	raw string
	err error
}

type fakeGenerator struct {
	responses   chan response
	calls       int32
	inflight    int32
	maxInflight int32
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{responses: make(chan response, 128)}
}

func (g *fakeGenerator) Generate(ctx context.Context, mode models.Mode, prompt string) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	n := atomic.AddInt32(&g.inflight, 1)
	defer atomic.AddInt32(&g.inflight, -1)
	for {
		peak := atomic.LoadInt32(&g.maxInflight)
		if n <= peak || atomic.CompareAndSwapInt32(&g.maxInflight, peak, n) {
			break
		}
	}

	select {
	case r := <-g.responses:
		return r.raw, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *fakeGenerator) respond(raw string, err error) {
	g.responses <- response{raw: raw, err: err}
}

func (g *fakeGenerator) Calls() int { return int(atomic.LoadInt32(&g.calls)) }
func (g *fakeGenerator) Model() string { return "fake-model" }
func (g *fakeGenerator) Close() error { return nil }

type fakeArtifacts struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (a *fakeArtifacts) Save(ctx context.Context, job models.Job, document string) (models.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return models.Artifact{}, a.err
	}
	if a.saved == nil {
		a.saved = make(map[string]string)
	}
	name := "generated-" + job.ID + ".html"
	a.saved[job.ID] = document
	return models.Artifact{Name: name, URL: "/generated/" + name, RequestID: job.ID}, nil
}

func (a *fakeArtifacts) List(ctx context.Context) ([]models.Artifact, error) { return nil, nil }
func (a *fakeArtifacts) Prune(ctx context.Context, keep int) (int, error) { return 0, nil }

func (a *fakeArtifacts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

type harness struct {
	scheduler *Scheduler
	hub       *recordingHub
	generator *fakeGenerator
	artifacts *fakeArtifacts
	clock     *ManualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := arbor.NewLogger()

	h := &harness{
		hub:       &recordingHub{},
		generator: newFakeGenerator(),
		artifacts: &fakeArtifacts{},
		clock:     NewManualClock(),
	}
	events := broadcast.NewBroadcaster(h.hub, broadcast.Settings{
		ModelName:      "LLM",
		CountdownTicks: 60,
		LogLineCap:     60,
	}, logger)

	h.scheduler = NewScheduler(h.generator, h.artifacts, events, h.clock, Options{
		PostCompleteTicks: 10,
		HistorySize:       50,
		CommandBuffer:     16,
	}, logger)
	h.scheduler.Run(context.Background())
	t.Cleanup(h.scheduler.Stop)
	return h
}

func (h *harness) submit(t *testing.T, mode models.Mode, prompt string) interfaces.SubmitReceipt {
	t.Helper()
	receipt, err := h.scheduler.Submit(context.Background(), models.Submission{Mode: mode, Prompt: prompt}, models.SourceWeb, nil)
	require.NoError(t, err)
	return receipt
}

// tick advances the clock and waits until the scheduler has processed every tick
func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	h.clock.Advance(n)
	_, err := h.scheduler.Snapshot(context.Background())
	require.NoError(t, err)
}

func (h *harness) waitFor(t *testing.T, eventType string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.hub.ofType(eventType)) >= count
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s events", count, eventType)
}

func TestScheduler_SingleJobLifecycle(t *testing.T) {
	h := newHarness(t)

	receipt := h.submit(t, models.ModePC, "make a shooter")
	assert.True(t, receipt.Started)
	assert.Equal(t, 0, receipt.Position)
	assert.Equal(t, models.JobStatusProcessing, receipt.Job.Status)

	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	started := h.hub.indexOf(interfaces.EventRequestStarted)
	responded := h.hub.indexOf(interfaces.EventModelResponse)
	fileURL := h.hub.indexOf(interfaces.EventGeneratedFileURL)
	completed := h.hub.indexOf(interfaces.EventRequestCompleted)
	require.GreaterOrEqual(t, started, 0)
	assert.Less(t, started, responded)
	assert.Less(t, responded, fileURL)
	assert.Less(t, fileURL, completed)

	done := h.hub.ofType(interfaces.EventRequestCompleted)[0].Payload
	assert.Equal(t, receipt.Job.ID, done["requestId"])
	_, numeric := done["duration"].(float64)
	assert.True(t, numeric, "duration should be numeric")

	resp := h.hub.ofType(interfaces.EventModelResponse)[0].Payload
	assert.Equal(t, "start()", resp["js"])
	assert.Equal(t, 1, h.artifacts.count())

	// Still tracked during the post-completion delay
	snap, err := h.scheduler.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tracked, 1)
	assert.Equal(t, models.JobStatusCompleted, snap.Tracked[0].Job.Status)
	assert.Equal(t, "/generated/generated-"+receipt.Job.ID+".html", snap.Tracked[0].ArtifactURL)

	idleBefore := len(h.hub.ofType(interfaces.EventQueueUpdate))
	h.tick(t, 9)
	assert.Len(t, h.hub.ofType(interfaces.EventQueueUpdate), idleBefore)

	h.tick(t, 1)
	updates := h.hub.ofType(interfaces.EventQueueUpdate)
	require.Len(t, updates, idleBefore+1)
	assert.Equal(t, float64(0), updates[len(updates)-1].Payload["queueLength"])

	all := h.hub.all()
	last := all[len(all)-1]
	assert.Equal(t, interfaces.EventCountdownUpdate, last.Type)
	assert.Nil(t, last.Payload["requestId"])
	assert.Nil(t, last.Payload["seconds"])

	snap, err = h.scheduler.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Tracked)
}

func TestScheduler_PostCountdownValues(t *testing.T) {
	h := newHarness(t)
	h.submit(t, models.ModeCreate, "bouncing balls")
	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)
	h.tick(t, 10)

	var seconds []float64
	for _, e := range h.hub.ofType(interfaces.EventCountdownUpdate) {
		if v, ok := e.Payload["seconds"].(float64); ok {
			seconds = append(seconds, v)
		}
	}
	assert.Equal(t, []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, seconds)
}

func TestScheduler_BackToBackSubmissions(t *testing.T) {
	h := newHarness(t)

	first := h.submit(t, models.ModePC, "make a shooter")
	second := h.submit(t, models.ModeMobile, "make a runner")

	assert.True(t, first.Started)
	assert.False(t, second.Started)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, models.JobStatusQueued, second.Job.Status)

	queued := h.hub.ofType(interfaces.EventRequestQueued)
	require.Len(t, queued, 2)
	assert.Equal(t, float64(1), queued[1].Payload["queuePosition"])

	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	h.tick(t, 9)
	assert.Len(t, h.hub.ofType(interfaces.EventRequestStarted), 1)

	h.tick(t, 1)
	startedEvents := h.hub.ofType(interfaces.EventRequestStarted)
	require.Len(t, startedEvents, 2)
	assert.Equal(t, second.Job.ID, startedEvents[1].Payload["requestId"])

	require.Eventually(t, func() bool { return h.generator.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)
	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.generator.maxInflight))
}

func TestScheduler_SingleFlightUnderConcurrentSubmits(t *testing.T) {
	h := newHarness(t)

	const n = 20
	receipts := make([]interfaces.SubmitReceipt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.scheduler.Submit(context.Background(),
				models.Submission{Mode: models.ModeCreate, Prompt: fmt.Sprintf("game %d", i)},
				models.SourceChat, nil)
			assert.NoError(t, err)
			receipts[i] = r
		}(i)
	}
	wg.Wait()

	started := 0
	positions := make(map[int]bool)
	ids := make(map[string]bool)
	for _, r := range receipts {
		if r.Started {
			started++
		} else {
			positions[r.Position] = true
		}
		ids[r.Job.ID] = true
	}
	assert.Equal(t, 1, started)
	assert.Len(t, positions, n-1)
	for p := 1; p < n; p++ {
		assert.True(t, positions[p], "missing position %d", p)
	}
	assert.Len(t, ids, n)

	status, err := h.scheduler.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Processing)
	assert.Equal(t, n-1, status.QueueLength)

	require.Eventually(t, func() bool { return h.generator.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&h.generator.maxInflight), int32(1))
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	h := newHarness(t)

	var ids []string
	for i := 0; i < 60; i++ {
		r := h.submit(t, models.ModeCreate, fmt.Sprintf("game %d", i))
		ids = append(ids, r.Job.ID)
	}

	history, err := h.scheduler.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 50)
	assert.Equal(t, ids[10], history[0].RequestID)
	assert.Equal(t, ids[59], history[49].RequestID)
	assert.Equal(t, "game 59", history[49].Prompt)

	record, ok := h.scheduler.LookupHistory(context.Background(), ids[20])
	assert.True(t, ok)
	assert.Equal(t, "game 20", record.Prompt)

	_, ok = h.scheduler.LookupHistory(context.Background(), ids[0])
	assert.False(t, ok)
}

func TestScheduler_FailedGenerationStillAdvances(t *testing.T) {
	h := newHarness(t)

	h.submit(t, models.ModePC, "first")
	second := h.submit(t, models.ModePC, "second")

	h.generator.respond("", &llm.GenerationError{Provider: "openrouter", Model: "m", Err: errors.New("rate limited")})
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	modelErr := h.hub.ofType(interfaces.EventModelError)
	require.Len(t, modelErr, 1)
	assert.Equal(t, "rate limited", modelErr[0].Payload["error"])
	assert.Empty(t, h.hub.ofType(interfaces.EventModelResponse))
	assert.Less(t, h.hub.indexOf(interfaces.EventModelError), h.hub.indexOf(interfaces.EventRequestCompleted))

	snap, err := h.scheduler.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tracked, 1)
	assert.Equal(t, models.JobStatusFailed, snap.Tracked[0].Job.Status)

	h.tick(t, 10)
	startedEvents := h.hub.ofType(interfaces.EventRequestStarted)
	require.Len(t, startedEvents, 2)
	assert.Equal(t, second.Job.ID, startedEvents[1].Payload["requestId"])
}

func TestScheduler_ParseFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.submit(t, models.ModeCreate, "broken")

	h.generator.respond("this is not json at all", nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	require.Len(t, h.hub.ofType(interfaces.EventModelError), 1)
	assert.Equal(t, 0, h.artifacts.count())
	assert.Equal(t, 1, h.generator.Calls())
}

func TestScheduler_ArtifactFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t)
	h.artifacts.err = errors.New("disk full")

	h.submit(t, models.ModeCreate, "bouncing balls")
	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	assert.Len(t, h.hub.ofType(interfaces.EventModelResponse), 1)
	assert.Empty(t, h.hub.ofType(interfaces.EventGeneratedFileURL))

	found := false
	for _, e := range h.hub.ofType(interfaces.EventAILog) {
		if text, _ := e.Payload["text"].(string); text == "> Failed to save file: disk full\n" {
			found = true
		}
	}
	assert.True(t, found)

	snap, err := h.scheduler.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tracked, 1)
	assert.Equal(t, models.JobStatusCompleted, snap.Tracked[0].Job.Status)
}

func TestScheduler_NarrationTicksWhileProcessing(t *testing.T) {
	h := newHarness(t)
	h.submit(t, models.ModePC, "make a shooter")

	h.tick(t, 3)

	updates := h.hub.ofType(interfaces.EventAILogCountdownUpdate)
	require.Len(t, updates, 3)
	assert.Equal(t, float64(59), updates[0].Payload["seconds"])
	assert.Equal(t, float64(57), updates[2].Payload["seconds"])

	h.generator.respond(validResponse, nil)
	h.waitFor(t, interfaces.EventRequestCompleted, 1)

	// Narration is stopped once the job is terminal
	h.tick(t, 5)
	assert.Len(t, h.hub.ofType(interfaces.EventAILogCountdownUpdate), 3)
}

func TestScheduler_AttachSeesConsistentSnapshot(t *testing.T) {
	h := newHarness(t)
	first := h.submit(t, models.ModePC, "make a shooter")
	h.submit(t, models.ModePC, "make a runner")

	var snap models.ObserverSnapshot
	err := h.scheduler.Attach(context.Background(), func(s models.ObserverSnapshot) {
		snap = s
	})
	require.NoError(t, err)

	assert.Equal(t, 1, snap.QueueLength)
	assert.Len(t, snap.History, 2)
	require.Len(t, snap.Tracked, 1)
	assert.Equal(t, first.Job.ID, snap.Tracked[0].Job.ID)
	assert.Equal(t, models.JobStatusProcessing, snap.Tracked[0].Job.Status)
}

func TestScheduler_StoppedRejectsSubmit(t *testing.T) {
	h := newHarness(t)
	h.scheduler.Stop()

	_, err := h.scheduler.Submit(context.Background(), models.Submission{Mode: models.ModeCreate, Prompt: "x"}, models.SourceWeb, nil)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestScheduler_ContextCancelStops(t *testing.T) {
	logger := arbor.NewLogger()
	events := broadcast.NewBroadcaster(&recordingHub{}, broadcast.Settings{CountdownTicks: 60}, logger)
	s := NewScheduler(newFakeGenerator(), &fakeArtifacts{}, events, NewManualClock(), Options{PostCompleteTicks: 10, HistorySize: 50}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.Run(ctx)
	cancel()

	require.Eventually(t, func() bool {
		_, err := s.Snapshot(context.Background())
		return errors.Is(err, ErrStopped)
	}, time.Second, 5*time.Millisecond)
}
