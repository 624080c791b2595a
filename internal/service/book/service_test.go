package book_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
	repo_mocks "github.com/bookshelf-service/bookshelf/internal/repository/mocks"
	"github.com/bookshelf-service/bookshelf/internal/service/book"
	"github.com/bookshelf-service/bookshelf/pkg/kafka"
)

type publisherStub struct {
	topics []string
	events []kafka.AuditEvent
	err    error
}

func (p *publisherStub) Publish(topic string, v any) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	if e, ok := v.(kafka.AuditEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

func TestService_Create_NoCover(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	events := &publisherStub{}
	svc := book.NewService(repo, events, zap.NewNop())

	_, err := svc.Create(context.Background(), model.BookInput{Name: "x"}, nil, 1)
	require.ErrorIs(t, err, errs.ErrNoCover)

	_, err = svc.Create(context.Background(), model.BookInput{Name: "x"}, &model.CoverUpload{Filename: "a.webp"}, 1)
	require.ErrorIs(t, err, errs.ErrNoCover)

	require.Empty(t, events.events)
}

func TestService_Create_HashesCover(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	events := &publisherStub{}
	svc := book.NewService(repo, events, zap.NewNop())

	content := []byte("fake image bytes")
	sum := md5.Sum(content)
	wantHash := hex.EncodeToString(sum[:])

	in := model.BookInput{Name: "Dune", Year: 1965, Genre: "Sci-Fi"}
	repo.EXPECT().
		CreateBook(gomock.Any(), in, model.BookImage{
			Filename: "dune.webp",
			MimeType: "image/webp",
			MD5Hash:  wantHash,
		}).
		Return(42, nil)

	id, err := svc.Create(context.Background(), in, &model.CoverUpload{
		Filename: "dune.webp",
		MimeType: "image/webp",
		Content:  content,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, 42, id)

	require.Equal(t, []string{kafka.AuditTopic}, events.topics)
	require.Len(t, events.events, 1)
	require.Equal(t, kafka.ActionBookCreated, events.events[0].Action)
	require.Equal(t, 42, events.events[0].BookID)
	require.Equal(t, 7, events.events[0].UserID)
}

func TestService_Delete_Confirmation(t *testing.T) {
	t.Parallel()

	t.Run("mismatched token is a silent no-op", func(t *testing.T) {
		t.Parallel()
		c := gomock.NewController(t)
		defer c.Finish()
		repo := repo_mocks.NewMockRepository(c)
		svc := book.NewService(repo, nil, zap.NewNop())

		for _, confirm := range []string{"", "yes", "CONFIRM"} {
			deleted, err := svc.Delete(context.Background(), 7, confirm, 1)
			require.NoError(t, err)
			require.False(t, deleted)
		}
	})

	t.Run("confirmed delete", func(t *testing.T) {
		t.Parallel()
		c := gomock.NewController(t)
		defer c.Finish()
		repo := repo_mocks.NewMockRepository(c)
		events := &publisherStub{}
		svc := book.NewService(repo, events, zap.NewNop())

		repo.EXPECT().DeleteBook(gomock.Any(), 7).Return(nil)

		deleted, err := svc.Delete(context.Background(), 7, book.DeleteConfirmToken, 1)
		require.NoError(t, err)
		require.True(t, deleted)
		require.Len(t, events.events, 1)
		require.Equal(t, kafka.ActionBookDeleted, events.events[0].Action)
	})
}

func TestService_Create_PublishFailureDoesNotFailOperation(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	events := &publisherStub{err: errs.ErrNotFound}
	svc := book.NewService(repo, events, zap.NewNop())

	repo.EXPECT().CreateBook(gomock.Any(), gomock.Any(), gomock.Any()).Return(1, nil)

	_, err := svc.Create(context.Background(), model.BookInput{}, &model.CoverUpload{
		Filename: "a.webp", Content: []byte{1},
	}, 1)
	require.NoError(t, err)
}
