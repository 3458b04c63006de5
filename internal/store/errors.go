package store

import (
	"errors"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
)

// Sentinels for errors.Is. ErrNotFound already carries a not-found code so
// it surfaces unchanged through the CLI and HTTP layers.
var (
	ErrNotFound          = clierr.New(clierr.CodeNotFound, "record not found")
	ErrOpenDatabase      = errors.New("open database")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
