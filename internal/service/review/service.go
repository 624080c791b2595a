package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/model"
	"github.com/bookshelf-service/bookshelf/internal/repository"
	"github.com/bookshelf-service/bookshelf/pkg/kafka"
)

type Service struct {
	repo   repository.Repository
	events kafka.Publisher
	log    *zap.Logger
}

func NewService(repo repository.Repository, events kafka.Publisher, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		log:    log.Named("review"),
	}
}

// Create resolves the target book first, then rejects a second review by the
// same user for the same book before writing anything.
func (s *Service) Create(ctx context.Context, bookID, userID, score int, text string) error {
	if _, err := s.repo.GetBook(ctx, bookID); err != nil {
		return err
	}

	if err := s.repo.CreateReview(ctx, model.Review{
		BookID: bookID,
		UserID: userID,
		Score:  score,
		Text:   text,
	}); err != nil {
		return err
	}

	if s.events != nil {
		event := kafka.AuditEvent{
			ID:     uuid.NewString(),
			Action: kafka.ActionReviewCreated,
			BookID: bookID,
			UserID: userID,
			At:     time.Now().UTC(),
		}
		if err := s.events.Publish(kafka.AuditTopic, event); err != nil {
			s.log.Warn("audit publish", zap.Error(err))
		}
	}
	return nil
}
