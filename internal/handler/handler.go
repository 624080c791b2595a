package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/errs"
	"github.com/bookshelf-service/bookshelf/internal/model"
	md "github.com/bookshelf-service/bookshelf/pkg/middleware"
	"github.com/bookshelf-service/bookshelf/pkg/validate"
)

type Services struct {
	Catalog CatalogService
	Auth    AuthService
	Book    BookService
	Review  ReviewService
}

type Handler struct {
	catalogSvc CatalogService
	authSvc    AuthService
	bookSvc    BookService
	reviewSvc  ReviewService
	log        *zap.Logger
}

func New(svc Services, log *zap.Logger) *Handler {
	return &Handler{
		catalogSvc: svc.Catalog,
		authSvc:    svc.Auth,
		bookSvc:    svc.Book,
		reviewSvc:  svc.Review,
		log:        log.Named("handler"),
	}
}

func (h *Handler) NewRouter(renderer *Renderer) *echo.Echo {
	e := echo.New()
	const pageRPS = 100

	e.Renderer = renderer
	e.Validator = validate.NewCustomValidator()

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)))
	e.Use(middleware.RequestID())
	e.Use(md.NewRateLimiter(pageRPS))
	e.Use(h.resolveSession)

	e.Static("/static", "static")
	e.GET("/manage/health", h.Health)

	e.GET("/", h.Index)
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login)
	e.GET("/logout", h.Logout)
	e.GET("/register", h.RegisterForm)
	e.POST("/register", h.Register)

	e.GET("/book/:id", h.BookDetails, h.requireAuth)
	e.GET("/book/add", h.BookAddForm, h.requireRoles(model.RoleAdmin))
	e.POST("/book/add", h.BookAdd, h.requireRoles(model.RoleAdmin))
	e.GET("/book/edit/:id", h.BookEditForm, h.requireRoles(model.RoleAdmin, model.RoleEditor))
	e.POST("/book/edit/:id", h.BookEdit, h.requireRoles(model.RoleAdmin, model.RoleEditor))
	e.POST("/book/delete/:id", h.BookDelete, h.requireRoles(model.RoleAdmin))
	e.GET("/book/:id/review", h.ReviewForm, h.requireAuth)
	e.POST("/book/:id/review", h.ReviewCreate, h.requireAuth)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Index renders the catalog. A failed listing degrades to filter controls
// plus a warning; the filter sources are fetched regardless.
func (h *Handler) Index(c echo.Context) error {
	ctx := c.Request().Context()
	f := bookFilterFromQuery(c)

	books, err := h.catalogSvc.ListBooks(ctx, f)
	if err != nil {
		h.log.Error("list books", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please try again later.")
		books = nil
	}

	genres, err := h.catalogSvc.ListGenres(ctx)
	if err != nil {
		h.log.Error("list genres", zap.Error(err))
	}
	years, err := h.catalogSvc.ListYears(ctx)
	if err != nil {
		h.log.Error("list years", zap.Error(err))
	}

	return h.render(c, http.StatusOK, "index", map[string]any{
		"Books":          books,
		"Genres":         genres,
		"Years":          years,
		"SelectedGenres": f.GenreIDs,
		"SelectedYears":  f.Years,
		"NameFilter":     f.Name,
		"AuthorFilter":   f.Author,
		"VolumeFrom":     c.QueryParam("volume_from"),
		"VolumeTo":       c.QueryParam("volume_to"),
	})
}

func bookFilterFromQuery(c echo.Context) model.BookFilter {
	return model.BookFilter{
		Name:       c.QueryParam("name"),
		GenreIDs:   atoiList(c.QueryParams()["genre"]),
		Years:      atoiList(c.QueryParams()["year"]),
		VolumeFrom: atoiPtr(c.QueryParam("volume_from")),
		VolumeTo:   atoiPtr(c.QueryParam("volume_to")),
		Author:     c.QueryParam("author"),
	}
}

func atoiPtr(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func atoiList(values []string) []int {
	out := make([]int, 0, len(values))
	for _, s := range values {
		if v, err := strconv.Atoi(s); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (h *Handler) LoginForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "login", nil)
}

type loginForm struct {
	Login    string `form:"login" validate:"required"`
	Password string `form:"password" validate:"required"`
	Remember string `form:"remember"`
}

func (h *Handler) Login(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&form); err != nil {
		addFlash(c, flashDanger, "Login and password are required.")
		return h.render(c, http.StatusOK, "login", nil)
	}
	remember := form.Remember == "on"

	user, err := h.authSvc.Authenticate(c.Request().Context(), form.Login, form.Password)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) {
			addFlash(c, flashDanger, "Invalid credentials.")
			return h.render(c, http.StatusOK, "login", nil)
		}
		h.log.Error("authenticate", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please contact the administrator.")
		return h.render(c, http.StatusOK, "login", nil)
	}

	token, expires, err := h.authSvc.NewSessionToken(user.ID, remember)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	setSessionCookie(c, token, expires, remember)
	addFlash(c, flashSuccess, "You have signed in.")
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) Logout(c echo.Context) error {
	clearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) RegisterForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "register", nil)
}

type registerForm struct {
	Login     string `form:"login" validate:"required"`
	Password  string `form:"password" validate:"required,min=6"`
	FirstName string `form:"first_name" validate:"required"`
	LastName  string `form:"last_name"`
}

func (h *Handler) Register(c echo.Context) error {
	var form registerForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&form); err != nil {
		addFlash(c, flashDanger, "Login, password (6+ characters) and first name are required.")
		return h.render(c, http.StatusOK, "register", nil)
	}

	err := h.authSvc.Register(c.Request().Context(), model.RegisterInput{
		Login:     form.Login,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		if errors.Is(err, errs.ErrLoginTaken) {
			addFlash(c, flashWarning, "This login is already taken.")
			return h.render(c, http.StatusOK, "register", nil)
		}
		h.log.Error("register", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please contact the administrator.")
		return h.render(c, http.StatusOK, "register", nil)
	}

	addFlash(c, flashSuccess, "Account created, you can sign in now.")
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) BookDetails(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	ctx := c.Request().Context()

	book, err := h.catalogSvc.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			addFlash(c, flashDanger, "Book not found.")
			return c.Redirect(http.StatusSeeOther, "/")
		}
		h.log.Error("get book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please contact the administrator.")
		return c.Redirect(http.StatusSeeOther, "/")
	}

	reviews, err := h.catalogSvc.ListReviews(ctx, id)
	if err != nil {
		h.log.Error("list reviews", zap.Error(err))
		addFlash(c, flashWarning, "Reviews are temporarily unavailable.")
	}

	return h.render(c, http.StatusOK, "book_details", map[string]any{
		"Book":    book,
		"ImgName": fmt.Sprintf("%d.webp", book.ImageID),
		"Reviews": reviews,
	})
}

type bookForm struct {
	Name        string `form:"book_name" validate:"required"`
	Description string `form:"description"`
	Year        int    `form:"year" validate:"required"`
	Publisher   string `form:"publisher"`
	Author      string `form:"author"`
	Length      int    `form:"length" validate:"gte=0"`
	Genre       string `form:"genre" validate:"required"`
}

func (f bookForm) input() model.BookInput {
	return model.BookInput{
		Name:        f.Name,
		Description: f.Description,
		Year:        f.Year,
		Publisher:   f.Publisher,
		Author:      f.Author,
		Length:      f.Length,
		Genre:       f.Genre,
	}
}

func (h *Handler) BookAddForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "book_add", nil)
}

func (h *Handler) BookAdd(c echo.Context) error {
	var form bookForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&form); err != nil {
		addFlash(c, flashDanger, "Name, year and genre are required.")
		return h.render(c, http.StatusOK, "book_add", nil)
	}

	cover, err := coverFromRequest(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, _ := principal(c)

	if _, err := h.bookSvc.Create(c.Request().Context(), form.input(), cover, user.ID); err != nil {
		if errors.Is(err, errs.ErrNoCover) {
			addFlash(c, flashDanger, "Cover image is missing.")
			return h.render(c, http.StatusOK, "book_add", nil)
		}
		h.log.Error("create book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, the book was not added.")
		return h.render(c, http.StatusOK, "book_add", nil)
	}

	addFlash(c, flashSuccess, "Book added.")
	return c.Redirect(http.StatusSeeOther, "/")
}

// coverFromRequest returns nil when the upload field is absent; a missing
// cover is a validation failure decided by the mutation service, not an
// http-level error.
func coverFromRequest(c echo.Context) (*model.CoverUpload, error) {
	fh, err := c.FormFile("cover")
	if err != nil {
		return nil, nil
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return &model.CoverUpload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Content:  content,
	}, nil
}

func (h *Handler) BookEditForm(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	book, err := h.catalogSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			addFlash(c, flashDanger, "Book not found.")
			return c.Redirect(http.StatusSeeOther, "/")
		}
		h.log.Error("get book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please contact the administrator.")
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return h.render(c, http.StatusOK, "book_edit", map[string]any{"Book": book})
}

func (h *Handler) BookEdit(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	var form bookForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&form); err != nil {
		addFlash(c, flashDanger, "Name, year and genre are required.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/edit/%d", id))
	}

	if err := h.bookSvc.Update(c.Request().Context(), id, form.input()); err != nil {
		h.log.Error("update book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, the book was not updated.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/edit/%d", id))
	}

	addFlash(c, flashSuccess, "Book updated.")
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) BookDelete(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	user, _ := principal(c)

	deleted, err := h.bookSvc.Delete(c.Request().Context(), id, c.FormValue("confirm"), user.ID)
	if err != nil {
		h.log.Error("delete book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, the book was not deleted.")
		return c.Redirect(http.StatusSeeOther, "/")
	}
	if deleted {
		addFlash(c, flashSuccess, "Book deleted.")
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) ReviewForm(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	book, err := h.catalogSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			addFlash(c, flashDanger, "Book not found.")
			return c.Redirect(http.StatusSeeOther, "/")
		}
		h.log.Error("get book", zap.Error(err))
		addFlash(c, flashDanger, "Database error, please contact the administrator.")
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return h.render(c, http.StatusOK, "review_write", map[string]any{
		"Book":    book,
		"ImgName": fmt.Sprintf("%d.webp", book.ImageID),
	})
}

type reviewForm struct {
	Score int    `form:"score" validate:"required,gte=1,lte=5"`
	Text  string `form:"text"`
}

func (h *Handler) ReviewCreate(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	var form reviewForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&form); err != nil {
		addFlash(c, flashDanger, "Score must be between 1 and 5.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/%d/review", id))
	}
	user, _ := principal(c)

	err = h.reviewSvc.Create(c.Request().Context(), id, user.ID, form.Score, form.Text)
	switch {
	case err == nil:
		addFlash(c, flashSuccess, "Review created.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/%d", id))
	case errors.Is(err, errs.ErrDuplicateReview):
		addFlash(c, flashWarning, "You have already reviewed this book.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/%d", id))
	case errors.Is(err, errs.ErrNotFound):
		addFlash(c, flashDanger, "Book not found.")
		return c.Redirect(http.StatusSeeOther, "/")
	default:
		h.log.Error("create review", zap.Error(err))
		addFlash(c, flashDanger, "Database error, the review was not saved.")
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/book/%d", id))
	}
}
