package review_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
	repo_mocks "github.com/bookshelf-service/bookshelf/internal/repository/mocks"
	"github.com/bookshelf-service/bookshelf/internal/service/review"
	"github.com/bookshelf-service/bookshelf/pkg/kafka"
)

type publisherStub struct {
	events []kafka.AuditEvent
}

func (p *publisherStub) Publish(_ string, v any) error {
	if e, ok := v.(kafka.AuditEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		c := gomock.NewController(t)
		defer c.Finish()
		repo := repo_mocks.NewMockRepository(c)
		events := &publisherStub{}
		svc := review.NewService(repo, events, zap.NewNop())

		repo.EXPECT().GetBook(gomock.Any(), 5).Return(model.BookRow{ID: 5}, nil)
		repo.EXPECT().CreateReview(gomock.Any(), model.Review{
			BookID: 5, UserID: 9, Score: 4, Text: "good",
		}).Return(nil)

		require.NoError(t, svc.Create(context.Background(), 5, 9, 4, "good"))
		require.Len(t, events.events, 1)
		require.Equal(t, kafka.ActionReviewCreated, events.events[0].Action)
	})

	t.Run("duplicate is rejected without event", func(t *testing.T) {
		t.Parallel()
		c := gomock.NewController(t)
		defer c.Finish()
		repo := repo_mocks.NewMockRepository(c)
		events := &publisherStub{}
		svc := review.NewService(repo, events, zap.NewNop())

		repo.EXPECT().GetBook(gomock.Any(), 5).Return(model.BookRow{ID: 5}, nil)
		repo.EXPECT().CreateReview(gomock.Any(), gomock.Any()).Return(errs.ErrDuplicateReview)

		err := svc.Create(context.Background(), 5, 9, 4, "again")
		require.ErrorIs(t, err, errs.ErrDuplicateReview)
		require.Empty(t, events.events)
	})

	t.Run("missing book short-circuits", func(t *testing.T) {
		t.Parallel()
		c := gomock.NewController(t)
		defer c.Finish()
		repo := repo_mocks.NewMockRepository(c)
		svc := review.NewService(repo, nil, zap.NewNop())

		repo.EXPECT().GetBook(gomock.Any(), 404).Return(model.BookRow{}, errs.ErrNotFound)

		err := svc.Create(context.Background(), 404, 9, 4, "x")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}
