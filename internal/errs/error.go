package errs

import (
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateReview    = errors.New("review already exists")
	ErrNoCover            = errors.New("cover image is required")
	ErrLoginTaken         = errors.New("login is already taken")
)
