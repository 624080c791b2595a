package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock.go -package=repo_mocks

type Repository interface {
	ListBooks(ctx context.Context, f model.BookFilter) ([]model.BookRow, error)
	GetBook(ctx context.Context, id int) (model.BookRow, error)
	ListGenres(ctx context.Context) ([]model.Genre, error)
	ListYears(ctx context.Context) ([]int, error)

	CreateBook(ctx context.Context, in model.BookInput, img model.BookImage) (int, error)
	UpdateBook(ctx context.Context, id int, in model.BookInput) error
	DeleteBook(ctx context.Context, id int) error

	GetUser(ctx context.Context, id int) (model.User, error)
	AuthenticateUser(ctx context.Context, login, password string) (model.User, error)
	CreateUser(ctx context.Context, in model.RegisterInput) error

	ListReviews(ctx context.Context, bookID int) ([]model.ReviewWithAuthor, error)
	CreateReview(ctx context.Context, rev model.Review) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName  = `books`
	imagesTableName = `book_img`
	genresTableName = `genres`
	usersTableName  = `users`
	reviewTableName = `review`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// buildListBooksQuery conjoins one predicate per present criterion. Empty
// slices and nil bounds add nothing, so the unfiltered query has no WHERE
// clause at all.
func buildListBooksQuery(f model.BookFilter) (string, []interface{}, error) {
	q := qb.Select("b.book_id", "b.name", "b.description", "b.year", "b.publisher",
		"b.author", "b.length", "b.fk_imgid", "i.filename", "g.genre").
		From(booksTableName + " b").
		Join(imagesTableName + " i ON b.fk_imgid = i.id").
		LeftJoin(genresTableName + " g ON b.fk_genre = g.genre_id")

	if f.Name != "" {
		q = q.Where(sq.ILike{"b.name": "%" + f.Name + "%"})
	}
	if len(f.GenreIDs) > 0 {
		q = q.Where(sq.Eq{"b.fk_genre": f.GenreIDs})
	}
	if len(f.Years) > 0 {
		q = q.Where(sq.Eq{"b.year": f.Years})
	}
	if f.VolumeFrom != nil {
		q = q.Where(sq.GtOrEq{"b.length": *f.VolumeFrom})
	}
	if f.VolumeTo != nil {
		q = q.Where(sq.LtOrEq{"b.length": *f.VolumeTo})
	}
	if f.Author != "" {
		q = q.Where(sq.ILike{"b.author": "%" + f.Author + "%"})
	}

	return q.OrderBy("b.year DESC").ToSql()
}

func (r *repository) ListBooks(ctx context.Context, f model.BookFilter) ([]model.BookRow, error) {
	query, args, err := buildListBooksQuery(f)
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.BookRow
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetBook(ctx context.Context, id int) (model.BookRow, error) {
	query, args, err := qb.Select("b.book_id", "b.name", "b.description", "b.year", "b.publisher",
		"b.author", "b.length", "b.fk_imgid", "i.filename", "g.genre").
		From(booksTableName + " b").
		Join(imagesTableName + " i ON b.fk_imgid = i.id").
		LeftJoin(genresTableName + " g ON b.fk_genre = g.genre_id").
		Where(sq.Eq{"b.book_id": id}).
		ToSql()
	if err != nil {
		return model.BookRow{}, err
	}

	var book model.BookRow
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BookRow{}, errs.ErrNotFound
		}
		return model.BookRow{}, err
	}
	return book, nil
}

func (r *repository) ListGenres(ctx context.Context) ([]model.Genre, error) {
	query, _, err := qb.Select("genre_id", "genre").
		From(genresTableName).
		OrderBy("genre").
		ToSql()
	if err != nil {
		return nil, err
	}
	var genres []model.Genre
	if err := r.db.SelectContext(ctx, &genres, query); err != nil {
		return nil, err
	}
	return genres, nil
}

func (r *repository) ListYears(ctx context.Context) ([]int, error) {
	q := `SELECT DISTINCT year FROM books ORDER BY year`
	var years []int
	if err := r.db.SelectContext(ctx, &years, q); err != nil {
		return nil, err
	}
	return years, nil
}

func (r *repository) CreateBook(ctx context.Context, in model.BookInput, img model.BookImage) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := qb.Insert(imagesTableName).
		Columns("filename", "mime_type", "md5_hash").
		Values(img.Filename, img.MimeType, img.MD5Hash).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var imgID int
	if err := tx.GetContext(ctx, &imgID, query, args...); err != nil {
		return 0, errors.Wrap(err, "insert image")
	}

	genreID, err := resolveGenre(ctx, tx, in.Genre)
	if err != nil {
		return 0, err
	}

	query, args, err = qb.Insert(booksTableName).
		Columns("name", "description", "year", "publisher", "author", "length", "fk_imgid", "fk_genre").
		Values(in.Name, in.Description, in.Year, in.Publisher, in.Author, in.Length, imgID, genreID).
		Suffix("RETURNING book_id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var bookID int
	if err := tx.GetContext(ctx, &bookID, query, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", query), zap.Any("args", args))
		return 0, errors.Wrap(err, "insert book")
	}

	return bookID, tx.Commit()
}

func (r *repository) UpdateBook(ctx context.Context, id int, in model.BookInput) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	genreID, err := resolveGenre(ctx, tx, in.Genre)
	if err != nil {
		return err
	}

	query, args, err := qb.Update(booksTableName).
		Set("name", in.Name).
		Set("description", in.Description).
		Set("year", in.Year).
		Set("publisher", in.Publisher).
		Set("author", in.Author).
		Set("length", in.Length).
		Set("fk_genre", genreID).
		Where(sq.Eq{"book_id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "update book")
	}

	return tx.Commit()
}

// resolveGenre looks a genre up by its exact name walking the same tx as the
// dependent write, inserting it on first use. The upsert keeps concurrent
// first-use inserts of the same name from failing.
func resolveGenre(ctx context.Context, tx *sqlx.Tx, name string) (int, error) {
	query, args, err := qb.Select("genre_id").
		From(genresTableName).
		Where(sq.Eq{"genre": name}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int
	err = tx.GetContext(ctx, &id, query, args...)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	query, args, err = qb.Insert(genresTableName).
		Columns("genre").
		Values(name).
		Suffix("ON CONFLICT (genre) DO UPDATE SET genre = EXCLUDED.genre RETURNING genre_id").
		ToSql()
	if err != nil {
		return 0, err
	}
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		return 0, errors.Wrap(err, "insert genre")
	}
	return id, nil
}

func (r *repository) DeleteBook(ctx context.Context, id int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := qb.Delete(booksTableName).
		Where(sq.Eq{"book_id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "delete book")
	}

	// keep ids dense: the next assigned id restarts right after the remaining
	// max, or at 1 when the table is empty
	var next int
	if err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(book_id), 0) + 1 FROM books`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('books', 'book_id'), $1, false)`, next); err != nil {
		return errors.Wrap(err, "reset book id sequence")
	}

	return tx.Commit()
}

func (r *repository) GetUser(ctx context.Context, id int) (model.User, error) {
	query, args, err := qb.Select("user_id", "login", "role_id", "first_name", "last_name").
		From(usersTableName).
		Where(sq.Eq{"user_id": id}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := r.db.GetContext(ctx, &u, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

// AuthenticateUser compares the digest of the supplied password against the
// stored hash inside the query itself. An unknown login and a wrong password
// are indistinguishable to the caller.
func (r *repository) AuthenticateUser(ctx context.Context, login, password string) (model.User, error) {
	q := `
SELECT user_id, login, role_id, first_name, last_name
FROM users
WHERE login = $1 AND password_hash = encode(digest($2, 'sha256'), 'hex')`

	var u model.User
	if err := r.db.GetContext(ctx, &u, q, login, password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrInvalidCredentials
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *repository) CreateUser(ctx context.Context, in model.RegisterInput) error {
	q := `
INSERT INTO users (login, password_hash, role_id, first_name, last_name)
VALUES ($1, encode(digest($2, 'sha256'), 'hex'), $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, q, in.Login, in.Password, model.RoleRegular, in.FirstName, in.LastName)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return errs.ErrLoginTaken
		}
		return err
	}
	return nil
}

func (r *repository) ListReviews(ctx context.Context, bookID int) ([]model.ReviewWithAuthor, error) {
	query, args, err := qb.Select("r.id", "r.book_id", "r.user_id", "r.score", "r.text",
		"u.first_name", "u.last_name").
		From(reviewTableName + " r").
		Join(usersTableName + " u ON u.user_id = r.user_id").
		Where(sq.Eq{"r.book_id": bookID}).
		OrderBy("r.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var reviews []model.ReviewWithAuthor
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview checks-then-inserts within one tx. Two concurrent submissions
// for the same (book, user) pair may still both pass the check; sequential
// duplicates are rejected.
func (r *repository) CreateReview(ctx context.Context, rev model.Review) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := qb.Select("id").
		From(reviewTableName).
		Where(sq.Eq{"book_id": rev.BookID, "user_id": rev.UserID}).
		ToSql()
	if err != nil {
		return err
	}
	var existing int
	err = tx.GetContext(ctx, &existing, query, args...)
	if err == nil {
		return errs.ErrDuplicateReview
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	query, args, err = qb.Insert(reviewTableName).
		Columns("book_id", "user_id", "score", "text").
		Values(rev.BookID, rev.UserID, rev.Score, rev.Text).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "insert review")
	}

	return tx.Commit()
}
