package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/model"
	"github.com/bookshelf-service/bookshelf/internal/repository"
)

type Service struct {
	repo repository.Repository
	log  *zap.Logger
}

func NewService(repo repository.Repository, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.Named("catalog"),
	}
}

func (s *Service) ListBooks(ctx context.Context, f model.BookFilter) ([]model.BookRow, error) {
	return s.repo.ListBooks(ctx, f)
}

func (s *Service) GetBook(ctx context.Context, id int) (model.BookRow, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) ListGenres(ctx context.Context) ([]model.Genre, error) {
	return s.repo.ListGenres(ctx)
}

func (s *Service) ListYears(ctx context.Context) ([]int, error) {
	return s.repo.ListYears(ctx)
}

func (s *Service) ListReviews(ctx context.Context, bookID int) ([]model.ReviewWithAuthor, error) {
	return s.repo.ListReviews(ctx, bookID)
}
