package handler

import (
	"context"
	"time"

	"github.com/bookshelf-service/bookshelf/internal/model"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go -package=service_mocks

type CatalogService interface {
	ListBooks(ctx context.Context, f model.BookFilter) ([]model.BookRow, error)
	GetBook(ctx context.Context, id int) (model.BookRow, error)
	ListGenres(ctx context.Context) ([]model.Genre, error)
	ListYears(ctx context.Context) ([]int, error)
	ListReviews(ctx context.Context, bookID int) ([]model.ReviewWithAuthor, error)
}

type AuthService interface {
	Authenticate(ctx context.Context, login, password string) (model.User, error)
	Register(ctx context.Context, in model.RegisterInput) error
	NewSessionToken(userID int, remember bool) (string, time.Time, error)
	UserFromToken(ctx context.Context, token string) (model.User, error)
}

type BookService interface {
	Create(ctx context.Context, in model.BookInput, cover *model.CoverUpload, userID int) (int, error)
	Update(ctx context.Context, id int, in model.BookInput) error
	Delete(ctx context.Context, id int, confirm string, userID int) (bool, error)
}

type ReviewService interface {
	Create(ctx context.Context, bookID, userID, score int, text string) error
}
