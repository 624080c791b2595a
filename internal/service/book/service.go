package book

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a credential
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
	"github.com/bookshelf-service/bookshelf/internal/repository"
	"github.com/bookshelf-service/bookshelf/pkg/kafka"
)

// DeleteConfirmToken is the sentinel a delete request must carry verbatim.
const DeleteConfirmToken = "confirm"

type Service struct {
	repo   repository.Repository
	events kafka.Publisher
	log    *zap.Logger
}

// NewService wires the mutation service. events may be nil, in which case no
// audit messages are published.
func NewService(repo repository.Repository, events kafka.Publisher, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		log:    log.Named("book"),
	}
}

// Create inserts the cover image, resolves the genre and inserts the book in
// one transaction. A missing cover fails before anything is written.
func (s *Service) Create(ctx context.Context, in model.BookInput, cover *model.CoverUpload, userID int) (int, error) {
	if cover == nil || len(cover.Content) == 0 {
		return 0, errs.ErrNoCover
	}

	sum := md5.Sum(cover.Content) //nolint:gosec
	img := model.BookImage{
		Filename: cover.Filename,
		MimeType: cover.MimeType,
		MD5Hash:  hex.EncodeToString(sum[:]),
	}

	id, err := s.repo.CreateBook(ctx, in, img)
	if err != nil {
		return 0, err
	}
	s.audit(kafka.ActionBookCreated, id, userID)
	return id, nil
}

// Update never alters the image reference.
func (s *Service) Update(ctx context.Context, id int, in model.BookInput) error {
	return s.repo.UpdateBook(ctx, id, in)
}

// Delete is a silent no-op unless confirm equals DeleteConfirmToken. The
// returned bool reports whether a deletion was performed.
func (s *Service) Delete(ctx context.Context, id int, confirm string, userID int) (bool, error) {
	if confirm != DeleteConfirmToken {
		return false, nil
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return false, err
	}
	s.audit(kafka.ActionBookDeleted, id, userID)
	return true, nil
}

// audit publishes best-effort: a broker failure is logged and dropped, the
// user operation has already committed.
func (s *Service) audit(action string, bookID, userID int) {
	if s.events == nil {
		return
	}
	event := kafka.AuditEvent{
		ID:     uuid.NewString(),
		Action: action,
		BookID: bookID,
		UserID: userID,
		At:     time.Now().UTC(),
	}
	if err := s.events.Publish(kafka.AuditTopic, event); err != nil {
		s.log.Warn("audit publish", zap.String("action", action), zap.Error(err))
	}
}
