// Package broadcast turns scheduler and feed activity into observer events.
// It owns the narration text, the wire payload shapes and the replay sent to
// late joiners. Callers decide when events happen; this package decides what
// they look like.
package broadcast

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/yuin/goldmark"
	"golang.org/x/time/rate"
)

// Settings are the static values shared with every observer
type Settings struct {
	ModelName       string
	CountdownTicks  int
	LogLineCap      int
	TestInput       bool
	ContractAddress string
	Description     string // markdown
	MarketThrottle  time.Duration
}

// SettingsFromConfig collects broadcaster settings from application config
func SettingsFromConfig(cfg *common.Config) Settings {
	return Settings{
		ModelName:       cfg.Generation.ModelName,
		CountdownTicks:  cfg.Queue.CountdownTicks,
		LogLineCap:      cfg.Queue.LogLineCap,
		TestInput:       cfg.Ingestion.TestInput,
		ContractAddress: cfg.Ingestion.TokenAddress,
		Description:     cfg.Project.Description,
		MarketThrottle:  common.ParseDurationOr(cfg.WebSocket.MarketThrottle, time.Second),
	}
}

// Broadcaster formats events and hands them to the hub
type Broadcaster struct {
	hub      interfaces.EventBroadcaster
	logger   arbor.ILogger
	settings Settings

	descriptionHTML string

	mu            sync.RWMutex
	market        *models.MarketSnapshot
	marketLimiter *rate.Limiter
	marketPending bool // a throttled snapshot is waiting for the next limiter slot
}

// NewBroadcaster creates a broadcaster that publishes through hub
func NewBroadcaster(hub interfaces.EventBroadcaster, settings Settings, logger arbor.ILogger) *Broadcaster {
	if settings.ModelName == "" {
		settings.ModelName = "LLM"
	}

	b := &Broadcaster{
		hub:      hub,
		logger:   logger,
		settings: settings,
	}

	if settings.MarketThrottle > 0 {
		b.marketLimiter = rate.NewLimiter(rate.Every(settings.MarketThrottle), 1)
	}

	html, err := RenderMarkdown(settings.Description)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to render project description, sending plain text")
		html = settings.Description
	}
	b.descriptionHTML = html

	return b
}

// RenderMarkdown converts markdown to HTML
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

func (b *Broadcaster) emit(eventType string, payload interface{}) {
	b.hub.Broadcast(eventType, payload)
}

func (b *Broadcaster) log(text string) {
	b.emit(interfaces.EventAILog, logPayload{Text: text, Append: true})
}

// Seconds rounds a duration to hundredths of a second
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// JobQueued announces a submission. position is 0 when the job starts immediately.
func (b *Broadcaster) JobQueued(job models.Job, position int) {
	b.emit(interfaces.EventRequestQueued, queuedPayload{
		RequestID:     job.ID,
		Prompt:        job.Prompt,
		QueuePosition: position,
		CommandType:   job.Mode,
	})
}

// QueueDepth announces the number of pending jobs
func (b *Broadcaster) QueueDepth(n int) {
	b.emit(interfaces.EventQueueUpdate, queueUpdatePayload{QueueLength: n})
}

// JobStarted announces promotion of job and returns its narration
func (b *Broadcaster) JobStarted(job models.Job, queueLength int) *Narration {
	b.emit(interfaces.EventRequestStarted, requestPayload{
		RequestID:   job.ID,
		Prompt:      job.Prompt,
		CommandType: job.Mode,
	})
	b.QueueDepth(queueLength)

	b.emit(interfaces.EventAILogCountdownStart, countdownStartPayload{
		RequestID:    job.ID,
		Prompt:       job.Prompt,
		TotalSeconds: b.settings.CountdownTicks,
	})
	b.emit(interfaces.EventAILog, logPayload{Text: "> Analyzing prompt...\n"})

	b.emit(interfaces.EventPromptAdded, promptAddedPayload{
		Prompt:      job.Prompt,
		RequestID:   job.ID,
		Status:      models.JobStatusProcessing,
		CommandType: job.Mode,
	})
	b.emit(interfaces.EventModelStart, modelStartPayload{
		Model:     b.settings.ModelName,
		Index:     0,
		RequestID: job.ID,
	})

	b.log(fmt.Sprintf("> Initializing %s...\n> Loading %s model parameters...\n> Processing prompt (%d characters)...\n",
		b.settings.ModelName, strings.ToUpper(string(job.Mode)), len(job.Prompt)))

	return newNarration(b, job)
}

// Generated announces a successful generation
func (b *Broadcaster) Generated(job models.Job, result models.GenerationResult, received int, recovered bool, duration float64) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "> Stream transmission completed\n> Received %d bytes\n> Parsing JSON structure...\n", received)
	if recovered {
		sb.WriteString("> JSON parsing error detected\n> Attempting recovery...\n> Recovery successful\n")
	}
	fmt.Fprintf(&sb, "> HTML: %d characters\n> CSS: %d characters\n> JS: %d characters\n",
		len(result.HTML), len(result.CSS), len(result.JS))
	fmt.Fprintf(&sb, "> Code generation completed\n> Total processing time: %.2fs\n", duration)
	b.log(sb.String())

	b.emit(interfaces.EventModelResponse, modelResponsePayload{
		Model:     b.settings.ModelName,
		Index:     0,
		HTML:      result.HTML,
		CSS:       result.CSS,
		JS:        result.JS,
		Duration:  duration,
		RequestID: job.ID,
	})
}

// GenerationFailed announces a failed generation
func (b *Broadcaster) GenerationFailed(job models.Job, message string, errorType string, duration float64) {
	b.log(fmt.Sprintf("> Processing error detected\n> Error type: %s\n", errorType))
	b.emit(interfaces.EventModelError, modelErrorPayload{
		Model:     b.settings.ModelName,
		Index:     0,
		Error:     message,
		Duration:  duration,
		RequestID: job.ID,
	})
}

// ArtifactSaved announces the public URL of a persisted document
func (b *Broadcaster) ArtifactSaved(job models.Job, name, url string) {
	b.log(fmt.Sprintf("> File saved: %s\n> URL: %s\n", name, url))
	b.emit(interfaces.EventGeneratedFileURL, fileURLPayload{RequestID: job.ID, URL: url})
}

// ArtifactFailed reports a persistence failure without failing the job
func (b *Broadcaster) ArtifactFailed(job models.Job, err error) {
	b.log(fmt.Sprintf("> Failed to save file: %v\n", err))
}

// JobFinished announces that job reached a terminal state and the post-completion countdown begins
func (b *Broadcaster) JobFinished(job models.Job, postTicks int) {
	b.log(fmt.Sprintf("> Model completed in %.2fs. Starting %ds countdown...\n", job.DurationSeconds, postTicks))
	b.emit(interfaces.EventRequestCompleted, completedPayload{
		RequestID: job.ID,
		Duration:  job.DurationSeconds,
	})
	b.PostCountdown(job, postTicks)
}

// PostCountdown announces the remaining delay before the next job
func (b *Broadcaster) PostCountdown(job models.Job, seconds int) {
	b.emit(interfaces.EventCountdownUpdate, countdownPayload{
		RequestID: job.ID,
		Seconds:   seconds,
		Prompt:    job.Prompt,
	})
}

// Idle announces that nothing is processing or pending
func (b *Broadcaster) Idle() {
	b.QueueDepth(0)
	b.emit(interfaces.EventCountdownUpdate, idleCountdownPayload{})
}

// Blocked tells a single submitter that their prompt was refused
func (b *Broadcaster) Blocked(sink interfaces.ClientSink, message string) {
	if sink == nil {
		return
	}
	if err := sink.Send(interfaces.EventAIError, errorPayload{Message: message}); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to deliver blocked notice")
	}
}

// UpdateMarket caches the latest market snapshot and broadcasts it. Updates
// that arrive faster than the configured throttle are coalesced: the latest
// one is sent when the next limiter slot opens.
func (b *Broadcaster) UpdateMarket(snapshot models.MarketSnapshot) {
	b.mu.Lock()
	b.market = &snapshot
	if b.marketLimiter == nil || b.marketLimiter.Allow() {
		b.mu.Unlock()
		b.emit(interfaces.EventMarketCapUpdate, snapshot)
		return
	}
	if b.marketPending {
		b.mu.Unlock()
		return
	}
	b.marketPending = true
	delay := b.marketLimiter.Reserve().Delay()
	b.mu.Unlock()

	time.AfterFunc(delay, b.flushMarket)
}

// flushMarket broadcasts the latest cached snapshot held back by the throttle
func (b *Broadcaster) flushMarket() {
	b.mu.Lock()
	b.marketPending = false
	snapshot := *b.market
	b.mu.Unlock()

	b.emit(interfaces.EventMarketCapUpdate, snapshot)
}

// Market returns the cached market snapshot, if any
func (b *Broadcaster) Market() (models.MarketSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.market == nil {
		return models.MarketSnapshot{}, false
	}
	return *b.market, true
}

// Trade passes a token trade through to observers
func (b *Broadcaster) Trade(trade models.Trade) {
	b.emit(interfaces.EventNewTrade, trade)
}
