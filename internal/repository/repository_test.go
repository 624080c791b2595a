package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
)

func intPtr(v int) *int { return &v }

func placeholderCount(query string) int {
	return len(regexp.MustCompile(`\$\d+`).FindAllString(query, -1))
}

func TestBuildListBooksQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		filter           model.BookFilter
		wantPlaceholders int
		wantArgs         []interface{}
		wantContains     []string
		wantNotContains  []string
	}{
		{
			name:             "no filters",
			filter:           model.BookFilter{},
			wantPlaceholders: 0,
			wantArgs:         nil,
			wantNotContains:  []string{"WHERE"},
		},
		{
			name: "all filters",
			filter: model.BookFilter{
				Name:       "dune",
				GenreIDs:   []int{1, 2},
				Years:      []int{2001, 2020},
				VolumeFrom: intPtr(100),
				VolumeTo:   intPtr(900),
				Author:     "herbert",
			},
			wantPlaceholders: 8,
			wantArgs:         []interface{}{"%dune%", 1, 2, 2001, 2020, 100, 900, "%herbert%"},
			wantContains: []string{
				"b.name ILIKE",
				"b.fk_genre IN ($2,$3)",
				"b.year IN ($4,$5)",
				"b.length >= $6",
				"b.length <= $7",
				"b.author ILIKE",
			},
		},
		{
			name: "empty sets are treated as absent",
			filter: model.BookFilter{
				GenreIDs: []int{},
				Years:    nil,
			},
			wantPlaceholders: 0,
			wantArgs:         nil,
			wantNotContains:  []string{"WHERE", "IN ("},
		},
		{
			name:             "lower bound only",
			filter:           model.BookFilter{VolumeFrom: intPtr(300)},
			wantPlaceholders: 1,
			wantArgs:         []interface{}{300},
			wantContains:     []string{"b.length >= $1"},
			wantNotContains:  []string{"<="},
		},
		{
			name:             "upper bound only",
			filter:           model.BookFilter{VolumeTo: intPtr(300)},
			wantPlaceholders: 1,
			wantArgs:         []interface{}{300},
			wantContains:     []string{"b.length <= $1"},
			wantNotContains:  []string{">="},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			query, args, err := buildListBooksQuery(tt.filter)
			require.NoError(t, err)

			require.Equal(t, tt.wantPlaceholders, placeholderCount(query))
			require.Len(t, args, len(tt.wantArgs))
			for i, want := range tt.wantArgs {
				require.EqualValues(t, want, args[i])
			}
			for _, fragment := range tt.wantContains {
				require.Contains(t, query, fragment)
			}
			for _, fragment := range tt.wantNotContains {
				require.NotContains(t, query, fragment)
			}
			require.True(t, strings.HasSuffix(query, "ORDER BY b.year DESC"))
			require.Contains(t, query, "JOIN book_img i ON b.fk_imgid = i.id")
			require.Contains(t, query, "LEFT JOIN genres g ON b.fk_genre = g.genre_id")
		})
	}
}

func TestBuildListBooksQuery_EmptySetEqualsOmission(t *testing.T) {
	t.Parallel()

	base, _, err := buildListBooksQuery(model.BookFilter{})
	require.NoError(t, err)

	withEmpty, args, err := buildListBooksQuery(model.BookFilter{GenreIDs: []int{}, Years: []int{}})
	require.NoError(t, err)

	require.Equal(t, base, withEmpty)
	require.Empty(t, args)
}

func newMockRepo(t *testing.T) (*repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	require.NoError(t, err)
	return repo, mock
}

func TestRepository_AuthenticateUser(t *testing.T) {
	t.Parallel()

	userColumns := []string{"user_id", "login", "role_id", "first_name", "last_name"}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("password_hash = encode(digest($2, 'sha256'), 'hex')")).
			WithArgs("reader", "secret").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(9, "reader", model.RoleRegular, "Jo", "Reader"))

		u, err := repo.AuthenticateUser(context.Background(), "reader", "secret")
		require.NoError(t, err)
		require.Equal(t, 9, u.ID)
		require.Equal(t, model.RoleRegular, u.RoleID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown login and wrong password are indistinguishable", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("password_hash = encode(digest($2, 'sha256'), 'hex')")).
			WithArgs("ghost", "whatever").
			WillReturnRows(sqlmock.NewRows(userColumns))
		mock.ExpectQuery(regexp.QuoteMeta("password_hash = encode(digest($2, 'sha256'), 'hex')")).
			WithArgs("reader", "wrong").
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, errUnknown := repo.AuthenticateUser(context.Background(), "ghost", "whatever")
		_, errWrongPass := repo.AuthenticateUser(context.Background(), "reader", "wrong")

		require.ErrorIs(t, errUnknown, errs.ErrInvalidCredentials)
		require.Equal(t, errUnknown, errWrongPass)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_CreateReview(t *testing.T) {
	t.Parallel()

	checkQuery := regexp.QuoteMeta("SELECT id FROM review WHERE book_id = $1 AND user_id = $2")

	t.Run("duplicate rejected without insert", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(checkQuery).
			WithArgs(5, 9).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectRollback()

		err := repo.CreateReview(context.Background(), model.Review{BookID: 5, UserID: 9, Score: 4, Text: "again"})
		require.ErrorIs(t, err, errs.ErrDuplicateReview)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first review inserted", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(checkQuery).
			WithArgs(5, 9).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review (book_id,user_id,score,text) VALUES ($1,$2,$3,$4)")).
			WithArgs(5, 9, 4, "great").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.CreateReview(context.Background(), model.Review{BookID: 5, UserID: 9, Score: 4, Text: "great"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_DeleteBook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		nextID int
	}{
		{name: "restarts after remaining max", nextID: 7},
		{name: "restarts at one when table is empty", nextID: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo, mock := newMockRepo(t)
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM books WHERE book_id = $1")).
				WithArgs(7).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(book_id), 0) + 1 FROM books")).
				WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(tt.nextID))
			mock.ExpectExec(regexp.QuoteMeta("SELECT setval(pg_get_serial_sequence('books', 'book_id'), $1, false)")).
				WithArgs(tt.nextID).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectCommit()

			require.NoError(t, repo.DeleteBook(context.Background(), 7))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_CreateBook(t *testing.T) {
	t.Parallel()

	imgInsert := regexp.QuoteMeta("INSERT INTO book_img (filename,mime_type,md5_hash) VALUES ($1,$2,$3) RETURNING id")
	genreSelect := regexp.QuoteMeta("SELECT genre_id FROM genres WHERE genre = $1")
	genreInsert := regexp.QuoteMeta("INSERT INTO genres (genre) VALUES ($1) ON CONFLICT (genre) DO UPDATE SET genre = EXCLUDED.genre RETURNING genre_id")
	bookInsert := regexp.QuoteMeta("INSERT INTO books (name,description,year,publisher,author,length,fk_imgid,fk_genre) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING book_id")

	input := model.BookInput{
		Name: "Dune", Description: "desert planet", Year: 1965,
		Publisher: "Chilton", Author: "Frank Herbert", Length: 412, Genre: "Sci-Fi",
	}
	img := model.BookImage{Filename: "dune.webp", MimeType: "image/webp", MD5Hash: "d41d8cd98f00b204e9800998ecf8427e"}

	t.Run("new genre created in same tx", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(imgInsert).
			WithArgs(img.Filename, img.MimeType, img.MD5Hash).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectQuery(genreSelect).
			WithArgs("Sci-Fi").
			WillReturnRows(sqlmock.NewRows([]string{"genre_id"}))
		mock.ExpectQuery(genreInsert).
			WithArgs("Sci-Fi").
			WillReturnRows(sqlmock.NewRows([]string{"genre_id"}).AddRow(4))
		mock.ExpectQuery(bookInsert).
			WithArgs(input.Name, input.Description, input.Year, input.Publisher, input.Author, input.Length, 12, 4).
			WillReturnRows(sqlmock.NewRows([]string{"book_id"}).AddRow(1))
		mock.ExpectCommit()

		id, err := repo.CreateBook(context.Background(), input, img)
		require.NoError(t, err)
		require.Equal(t, 1, id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing genre reused", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(imgInsert).
			WithArgs(img.Filename, img.MimeType, img.MD5Hash).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectQuery(genreSelect).
			WithArgs("Sci-Fi").
			WillReturnRows(sqlmock.NewRows([]string{"genre_id"}).AddRow(4))
		mock.ExpectQuery(bookInsert).
			WithArgs(input.Name, input.Description, input.Year, input.Publisher, input.Author, input.Length, 12, 4).
			WillReturnRows(sqlmock.NewRows([]string{"book_id"}).AddRow(2))
		mock.ExpectCommit()

		id, err := repo.CreateBook(context.Background(), input, img)
		require.NoError(t, err)
		require.Equal(t, 2, id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed book insert rolls everything back", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(imgInsert).
			WithArgs(img.Filename, img.MimeType, img.MD5Hash).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectQuery(genreSelect).
			WithArgs("Sci-Fi").
			WillReturnRows(sqlmock.NewRows([]string{"genre_id"}).AddRow(4))
		mock.ExpectQuery(bookInsert).
			WillReturnError(errs.ErrNotFound)
		mock.ExpectRollback()

		_, err := repo.CreateBook(context.Background(), input, img)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateBook_ReusesGenre(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT genre_id FROM genres WHERE genre = $1")).
		WithArgs("Fantasy").
		WillReturnRows(sqlmock.NewRows([]string{"genre_id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET name = $1, description = $2, year = $3, publisher = $4, author = $5, length = $6, fk_genre = $7 WHERE book_id = $8")).
		WithArgs("Hobbit", "", 1937, "", "Tolkien", 310, 3, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateBook(context.Background(), 5, model.BookInput{
		Name: "Hobbit", Year: 1937, Author: "Tolkien", Length: 310, Genre: "Fantasy",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListBooks_Ordering(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepo(t)

	columns := []string{"book_id", "name", "description", "year", "publisher", "author", "length", "fk_imgid", "filename", "genre"}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY b.year DESC")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, "Newer", "", 2020, "", "", 100, 2, "2.webp", nil).
			AddRow(1, "Older", "", 2001, "", "", 100, 1, "1.webp", nil))

	books, err := repo.ListBooks(context.Background(), model.BookFilter{})
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Equal(t, 2020, books[0].Year)
	require.Equal(t, 2001, books[1].Year)
	require.Nil(t, books[0].Genre)
	require.NoError(t, mock.ExpectationsWereMet())
}
