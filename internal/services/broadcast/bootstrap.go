package broadcast

import (
	"fmt"

	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
)

// Bootstrap replays current state to a newly connected observer.
// Tracked jobs are replayed in order, current job first, up to their latest
// state. Countdown and log ticks are not replayed.
func (b *Broadcaster) Bootstrap(sink interfaces.ClientSink, snapshot models.ObserverSnapshot) error {
	history := snapshot.History
	if history == nil {
		history = []models.HistoryRecord{}
	}

	messages := []struct {
		eventType string
		payload   interface{}
	}{
		{interfaces.EventTestInputMode, map[string]bool{"enabled": b.settings.TestInput}},
		{interfaces.EventPromptHistory, historyPayload{History: history}},
		{interfaces.EventQueueUpdate, queueUpdatePayload{QueueLength: snapshot.QueueLength}},
		{interfaces.EventContractAddress, map[string]string{"address": b.settings.ContractAddress}},
		{interfaces.EventProjectDescription, descriptionPayload{
			Description: b.settings.Description,
			HTML:        b.descriptionHTML,
		}},
	}

	for _, m := range messages {
		if err := sink.Send(m.eventType, m.payload); err != nil {
			return fmt.Errorf("failed to send %s: %w", m.eventType, err)
		}
	}

	if market, ok := b.Market(); ok {
		if err := sink.Send(interfaces.EventMarketCapUpdate, market); err != nil {
			return fmt.Errorf("failed to send %s: %w", interfaces.EventMarketCapUpdate, err)
		}
	}

	for i, tracked := range snapshot.Tracked {
		if err := b.replay(sink, tracked, i == 0); err != nil {
			return err
		}
	}

	return nil
}

func (b *Broadcaster) replay(sink interfaces.ClientSink, tracked models.TrackedJob, current bool) error {
	job := tracked.Job

	send := func(eventType string, payload interface{}) error {
		if err := sink.Send(eventType, payload); err != nil {
			return fmt.Errorf("failed to replay %s for job %s: %w", eventType, job.ID, err)
		}
		return nil
	}

	if current {
		if err := send(interfaces.EventRequestStarted, requestPayload{
			RequestID:   job.ID,
			Prompt:      job.Prompt,
			CommandType: job.Mode,
		}); err != nil {
			return err
		}
	}

	if err := send(interfaces.EventPromptAdded, promptAddedPayload{
		Prompt:      job.Prompt,
		RequestID:   job.ID,
		Status:      replayStatus(job.Status),
		CommandType: job.Mode,
	}); err != nil {
		return err
	}

	switch {
	case tracked.Result != nil:
		if err := send(interfaces.EventModelResponse, modelResponsePayload{
			Model:     b.settings.ModelName,
			Index:     0,
			HTML:      tracked.Result.HTML,
			CSS:       tracked.Result.CSS,
			JS:        tracked.Result.JS,
			Duration:  tracked.Duration,
			RequestID: job.ID,
		}); err != nil {
			return err
		}
	case job.Status == models.JobStatusFailed:
		if err := send(interfaces.EventModelError, modelErrorPayload{
			Model:     b.settings.ModelName,
			Index:     0,
			Error:     job.Error,
			Duration:  tracked.Duration,
			RequestID: job.ID,
		}); err != nil {
			return err
		}
	}

	if tracked.ArtifactURL != "" {
		if err := send(interfaces.EventGeneratedFileURL, fileURLPayload{
			RequestID: job.ID,
			URL:       tracked.ArtifactURL,
		}); err != nil {
			return err
		}
	}

	if job.Status.IsTerminal() {
		if err := send(interfaces.EventRequestCompleted, completedPayload{
			RequestID: job.ID,
			Duration:  job.DurationSeconds,
		}); err != nil {
			return err
		}
	}

	return nil
}

// replayStatus maps a job status onto what live observers saw. A failed job
// finished through model_error and request_completed, so it replays as completed.
func replayStatus(status models.JobStatus) models.JobStatus {
	if status.IsTerminal() {
		return models.JobStatusCompleted
	}
	return status
}
