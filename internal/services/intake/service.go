// Package intake funnels web and chat submissions through validation into the scheduler.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/validation"
)

// Notifier tells a single client that its submission was refused
type Notifier interface {
	Blocked(sink interfaces.ClientSink, message string)
}

// Service validates raw text and admits it as a job
type Service struct {
	scheduler interfaces.JobScheduler
	notifier  Notifier
	logger    arbor.ILogger
}

// NewService creates an intake service
func NewService(scheduler interfaces.JobScheduler, notifier Notifier, logger arbor.ILogger) *Service {
	return &Service{
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
	}
}

// Submit validates raw and hands it to the scheduler. Validation rejections
// are returned wrapped in validation.ErrRejected and never become jobs.
func (s *Service) Submit(ctx context.Context, raw string, source models.Source, origin interfaces.ClientSink) (interfaces.SubmitReceipt, error) {
	submission, err := validation.Validate(raw)
	if err != nil {
		s.reject(err, source, origin)
		return interfaces.SubmitReceipt{}, err
	}

	receipt, err := s.scheduler.Submit(ctx, submission, source, origin)
	if err != nil {
		return interfaces.SubmitReceipt{}, fmt.Errorf("failed to submit job: %w", err)
	}
	return receipt, nil
}

func (s *Service) reject(err error, source models.Source, origin interfaces.ClientSink) {
	if !validation.IsBlocked(err) {
		s.logger.Debug().Err(err).Str("source", string(source)).Msg("Submission dropped")
		return
	}

	if origin == nil {
		s.logger.Info().Str("source", string(source)).Msg("Blocked sensitive request")
		return
	}

	s.logger.Warn().Str("source", string(source)).Msg("Blocked sensitive request, notifying client")
	s.notifier.Blocked(origin, validation.BlockedMessage)
}

// HandleChat submits a live chat message
func (s *Service) HandleChat(ctx context.Context, msg models.ChatMessage) {
	receipt, err := s.Submit(ctx, msg.Text, models.SourceChat, nil)
	if err != nil {
		if !errors.Is(err, validation.ErrRejected) {
			s.logger.Error().Err(err).Str("username", msg.Username).Msg("Failed to submit chat message")
		}
		return
	}

	s.logger.Info().
		Str("username", msg.Username).
		Str("request_id", receipt.Job.ID).
		Int("position", receipt.Position).
		Msg("Chat command accepted")
}
