package broadcast

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
)

type recorded struct {
	Type    string
	Payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
	failOn string
}

func (r *recorder) Broadcast(eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Type: eventType, Payload: payload})
}

func (r *recorder) Send(eventType string, payload interface{}) error {
	if eventType == r.failOn {
		return errors.New("connection closed")
	}
	r.Broadcast(eventType, payload)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) ofType(eventType string) []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recorded
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestBroadcaster(settings Settings) (*Broadcaster, *recorder) {
	rec := &recorder{}
	return NewBroadcaster(rec, settings, arbor.NewLogger()), rec
}

func testJob() models.Job {
	return models.Job{
		ID:     "1700000000000",
		Prompt: "make a shooter",
		Mode:   models.ModePC,
		Status: models.JobStatusProcessing,
	}
}

func TestJobStartedEventOrder(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{CountdownTicks: 60, LogLineCap: 60})

	n := b.JobStarted(testJob(), 2)
	require.NotNil(t, n)

	assert.Equal(t, []string{
		interfaces.EventRequestStarted,
		interfaces.EventQueueUpdate,
		interfaces.EventAILogCountdownStart,
		interfaces.EventAILog,
		interfaces.EventPromptAdded,
		interfaces.EventModelStart,
		interfaces.EventAILog,
	}, rec.types())

	started := rec.ofType(interfaces.EventRequestStarted)[0].Payload.(requestPayload)
	assert.Equal(t, "1700000000000", started.RequestID)
	assert.Equal(t, models.ModePC, started.CommandType)

	depth := rec.ofType(interfaces.EventQueueUpdate)[0].Payload.(queueUpdatePayload)
	assert.Equal(t, 2, depth.QueueLength)

	start := rec.ofType(interfaces.EventModelStart)[0].Payload.(modelStartPayload)
	assert.Equal(t, "LLM", start.Model)
	assert.Equal(t, 0, start.Index)
}

func TestNarrationCountdownAndLines(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{CountdownTicks: 3, LogLineCap: 2})
	n := b.JobStarted(testJob(), 0)
	rec.reset()

	for i := 0; i < 10; i++ {
		n.Tick()
	}

	updates := rec.ofType(interfaces.EventAILogCountdownUpdate)
	require.Len(t, updates, 3)
	for i, want := range []int{2, 1, 0} {
		assert.Equal(t, want, updates[i].Payload.(countdownPayload).Seconds)
	}

	logs := rec.ofType(interfaces.EventAILog)
	require.Len(t, logs, 2)
	assert.Equal(t, "> "+technicalLines[0]+"\n", logs[0].Payload.(logPayload).Text)
	assert.Equal(t, "> "+technicalLines[1]+"\n", logs[1].Payload.(logPayload).Text)

	assert.True(t, n.Done())
	assert.Equal(t, 0, n.Remaining())
	assert.Equal(t, 2, n.Lines())
}

func TestNarrationLineCapBoundedByMessages(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{CountdownTicks: 200, LogLineCap: 500})
	n := b.JobStarted(testJob(), 0)
	rec.reset()

	for i := 0; i < 300; i++ {
		n.Tick()
	}

	assert.Len(t, rec.ofType(interfaces.EventAILog), len(technicalLines))
	assert.Len(t, rec.ofType(interfaces.EventAILogCountdownUpdate), 200)
}

func TestNarrationStopHaltsEmission(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{CountdownTicks: 60, LogLineCap: 60})
	n := b.JobStarted(testJob(), 0)
	n.Tick()
	n.Stop()
	rec.reset()

	n.Tick()
	n.Tick()

	assert.Empty(t, rec.types())
	assert.True(t, n.Done())
}

func TestNilNarrationIsSafe(t *testing.T) {
	var n *Narration
	assert.NotPanics(t, func() {
		n.Tick()
		n.Stop()
	})
}

func TestGeneratedWithRecovery(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	result := models.GenerationResult{HTML: "<div>x</div>", CSS: "a{}", JS: "go()"}

	b.Generated(testJob(), result, 512, true, 12.5)

	logs := rec.ofType(interfaces.EventAILog)
	require.Len(t, logs, 1)
	text := logs[0].Payload.(logPayload).Text
	assert.Contains(t, text, "> Received 512 bytes")
	assert.Contains(t, text, "> Attempting recovery...")
	assert.Contains(t, text, "> Recovery successful")
	assert.Contains(t, text, "> HTML: 12 characters")
	assert.Contains(t, text, "> Total processing time: 12.50s")

	resp := rec.ofType(interfaces.EventModelResponse)[0].Payload.(modelResponsePayload)
	assert.Equal(t, result.HTML, resp.HTML)
	assert.Equal(t, result.CSS, resp.CSS)
	assert.Equal(t, result.JS, resp.JS)
	assert.Equal(t, 12.5, resp.Duration)
}

func TestGeneratedWithoutRecovery(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	b.Generated(testJob(), models.GenerationResult{}, 10, false, 1)

	text := rec.ofType(interfaces.EventAILog)[0].Payload.(logPayload).Text
	assert.NotContains(t, text, "recovery")
}

func TestGenerationFailed(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	b.GenerationFailed(testJob(), "Failed to generate code", "parse", 3.25)

	assert.Equal(t, []string{interfaces.EventAILog, interfaces.EventModelError}, rec.types())
	payload := rec.ofType(interfaces.EventModelError)[0].Payload.(modelErrorPayload)
	assert.Equal(t, "Failed to generate code", payload.Error)
	assert.Equal(t, 3.25, payload.Duration)
	assert.Contains(t, rec.ofType(interfaces.EventAILog)[0].Payload.(logPayload).Text, "Error type: parse")
}

func TestJobFinishedStartsPostCountdown(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	job := testJob()
	job.Status = models.JobStatusCompleted
	job.DurationSeconds = 42.17

	b.JobFinished(job, 10)

	assert.Equal(t, []string{
		interfaces.EventAILog,
		interfaces.EventRequestCompleted,
		interfaces.EventCountdownUpdate,
	}, rec.types())
	assert.Equal(t, 42.17, rec.ofType(interfaces.EventRequestCompleted)[0].Payload.(completedPayload).Duration)
	assert.Equal(t, 10, rec.ofType(interfaces.EventCountdownUpdate)[0].Payload.(countdownPayload).Seconds)
}

func TestIdleSendsNullCountdown(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	b.Idle()

	require.Equal(t, []string{interfaces.EventQueueUpdate, interfaces.EventCountdownUpdate}, rec.types())
	raw, err := json.Marshal(rec.ofType(interfaces.EventCountdownUpdate)[0].Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":null,"seconds":null}`, string(raw))
}

func TestBlocked(t *testing.T) {
	b, _ := newTestBroadcaster(Settings{})
	sink := &recorder{}

	b.Blocked(sink, "nope")
	require.Len(t, sink.events, 1)
	assert.Equal(t, interfaces.EventAIError, sink.events[0].Type)
	assert.Equal(t, errorPayload{Message: "nope"}, sink.events[0].Payload)

	assert.NotPanics(t, func() { b.Blocked(nil, "nope") })
}

func TestUpdateMarketThrottlesButCachesLatest(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{MarketThrottle: time.Hour})

	b.UpdateMarket(models.MarketSnapshot{MarketCap: 1000, Price: 0.000001})
	b.UpdateMarket(models.MarketSnapshot{MarketCap: 2000, Price: 0.000002})

	assert.Len(t, rec.ofType(interfaces.EventMarketCapUpdate), 1)
	market, ok := b.Market()
	require.True(t, ok)
	assert.Equal(t, float64(2000), market.MarketCap)
}

func TestUpdateMarketFlushesLatestThrottled(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{MarketThrottle: 50 * time.Millisecond})

	b.UpdateMarket(models.MarketSnapshot{MarketCap: 1000})
	b.UpdateMarket(models.MarketSnapshot{MarketCap: 2000})
	b.UpdateMarket(models.MarketSnapshot{MarketCap: 3000})
	assert.Len(t, rec.ofType(interfaces.EventMarketCapUpdate), 1)

	require.Eventually(t, func() bool {
		return len(rec.ofType(interfaces.EventMarketCapUpdate)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	updates := rec.ofType(interfaces.EventMarketCapUpdate)
	assert.Equal(t, float64(3000), updates[1].Payload.(models.MarketSnapshot).MarketCap)

	time.Sleep(120 * time.Millisecond)
	assert.Len(t, rec.ofType(interfaces.EventMarketCapUpdate), 2)
}

func TestUpdateMarketUnthrottled(t *testing.T) {
	b, rec := newTestBroadcaster(Settings{})
	_, ok := b.Market()
	assert.False(t, ok)

	b.UpdateMarket(models.MarketSnapshot{MarketCap: 1})
	b.UpdateMarket(models.MarketSnapshot{MarketCap: 2})
	assert.Len(t, rec.ofType(interfaces.EventMarketCapUpdate), 2)
}

func TestBootstrapOrder(t *testing.T) {
	b, _ := newTestBroadcaster(Settings{
		TestInput:       true,
		ContractAddress: "So1aNa",
		Description:     "Play **now**",
	})
	b.UpdateMarket(models.MarketSnapshot{MarketCap: 5})

	finished := testJob()
	finished.Status = models.JobStatusCompleted
	finished.DurationSeconds = 20

	snapshot := models.ObserverSnapshot{
		History:     []models.HistoryRecord{{Prompt: "make a shooter", RequestID: finished.ID, CommandType: models.ModePC}},
		QueueLength: 1,
		Tracked: []models.TrackedJob{{
			Job:         finished,
			Result:      &models.GenerationResult{HTML: "<p>hi</p>"},
			Duration:    19.5,
			ArtifactURL: "/generated/generated-1700000000000.html",
		}},
	}

	sink := &recorder{}
	require.NoError(t, b.Bootstrap(sink, snapshot))

	assert.Equal(t, []string{
		interfaces.EventTestInputMode,
		interfaces.EventPromptHistory,
		interfaces.EventQueueUpdate,
		interfaces.EventContractAddress,
		interfaces.EventProjectDescription,
		interfaces.EventMarketCapUpdate,
		interfaces.EventRequestStarted,
		interfaces.EventPromptAdded,
		interfaces.EventModelResponse,
		interfaces.EventGeneratedFileURL,
		interfaces.EventRequestCompleted,
	}, sink.types())

	desc := sink.ofType(interfaces.EventProjectDescription)[0].Payload.(descriptionPayload)
	assert.Contains(t, desc.HTML, "<strong>now</strong>")

	added := sink.ofType(interfaces.EventPromptAdded)[0].Payload.(promptAddedPayload)
	assert.Equal(t, models.JobStatusCompleted, added.Status)
}

func TestBootstrapReplaysFailureAndInFlight(t *testing.T) {
	b, _ := newTestBroadcaster(Settings{})

	failed := testJob()
	failed.Status = models.JobStatusFailed
	failed.Error = "Failed to generate code"

	snapshot := models.ObserverSnapshot{Tracked: []models.TrackedJob{{Job: failed, Duration: 2}}}
	sink := &recorder{}
	require.NoError(t, b.Bootstrap(sink, snapshot))

	types := sink.types()
	assert.Contains(t, types, interfaces.EventModelError)
	assert.NotContains(t, types, interfaces.EventGeneratedFileURL)
	assert.Equal(t, interfaces.EventRequestCompleted, types[len(types)-1])

	history := sink.ofType(interfaces.EventPromptHistory)[0].Payload.(historyPayload)
	assert.NotNil(t, history.History)

	inFlight := testJob()
	sink = &recorder{}
	require.NoError(t, b.Bootstrap(sink, models.ObserverSnapshot{Tracked: []models.TrackedJob{{Job: inFlight}}}))
	types = sink.types()
	assert.Equal(t, interfaces.EventPromptAdded, types[len(types)-1])
	assert.NotContains(t, types, interfaces.EventRequestCompleted)
}

func TestBootstrapReplaysFailedJobAsCompleted(t *testing.T) {
	b, _ := newTestBroadcaster(Settings{})

	failed := testJob()
	failed.Status = models.JobStatusFailed
	failed.Error = "Failed to generate code"
	failed.DurationSeconds = 3

	sink := &recorder{}
	require.NoError(t, b.Bootstrap(sink, models.ObserverSnapshot{Tracked: []models.TrackedJob{{Job: failed, Duration: 2}}}))

	added := sink.ofType(interfaces.EventPromptAdded)
	require.Len(t, added, 1)
	assert.Equal(t, models.JobStatusCompleted, added[0].Payload.(promptAddedPayload).Status)

	modelErr := sink.ofType(interfaces.EventModelError)
	require.Len(t, modelErr, 1)
	assert.Equal(t, "Failed to generate code", modelErr[0].Payload.(modelErrorPayload).Error)

	for _, e := range sink.events {
		raw, err := json.Marshal(e.Payload)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), `"failed"`, e.Type)
	}
}

func TestBootstrapStopsOnSendError(t *testing.T) {
	b, _ := newTestBroadcaster(Settings{})
	sink := &recorder{failOn: interfaces.EventQueueUpdate}

	err := b.Bootstrap(sink, models.ObserverSnapshot{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), interfaces.EventQueueUpdate))
	assert.Len(t, sink.events, 2)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1.23, Seconds(1234*time.Millisecond))
	assert.Equal(t, 0.0, Seconds(0))
}
