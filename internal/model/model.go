package model

// Role ids form a small closed set; users are created with RoleRegular.
const (
	RoleAdmin   = 1
	RoleEditor  = 2
	RoleRegular = 3
)

type User struct {
	ID        int    `db:"user_id"`
	Login     string `db:"login"`
	RoleID    int    `db:"role_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

type Genre struct {
	ID   int    `db:"genre_id"`
	Name string `db:"genre"`
}

// BookRow is a book joined to its image (always present) and genre (optional).
type BookRow struct {
	ID          int     `db:"book_id"`
	Name        string  `db:"name"`
	Description string  `db:"description"`
	Year        int     `db:"year"`
	Publisher   string  `db:"publisher"`
	Author      string  `db:"author"`
	Length      int     `db:"length"`
	ImageID     int     `db:"fk_imgid"`
	ImgFilename string  `db:"filename"`
	Genre       *string `db:"genre"`
}

// BookFilter carries the optional listing criteria. A zero value means
// "no filtering"; nil/empty slices and nil bounds contribute no predicate.
type BookFilter struct {
	Name       string
	GenreIDs   []int
	Years      []int
	VolumeFrom *int
	VolumeTo   *int
	Author     string
}

type BookInput struct {
	Name        string
	Description string
	Year        int
	Publisher   string
	Author      string
	Length      int
	Genre       string
}

// BookImage is the metadata row stored for an uploaded cover.
type BookImage struct {
	Filename string `db:"filename"`
	MimeType string `db:"mime_type"`
	MD5Hash  string `db:"md5_hash"`
}

// CoverUpload is the raw uploaded file as handed over by the multipart layer.
type CoverUpload struct {
	Filename string
	MimeType string
	Content  []byte
}

type Review struct {
	ID     int    `db:"id"`
	BookID int    `db:"book_id"`
	UserID int    `db:"user_id"`
	Score  int    `db:"score"`
	Text   string `db:"text"`
}

type ReviewWithAuthor struct {
	Review
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

type RegisterInput struct {
	Login     string
	Password  string
	FirstName string
	LastName  string
}
