package model

import "errors"

// Track is one uploaded audio item and its optional cover image.
// JSON keys are part of the public API and of the catalog document.
type Track struct {
	ID     string `json:"id"`
	Nome   string `json:"nome"`   // Display name supplied by the client
	Musica string `json:"musica"` // Public path of the stored audio file
	Capa   string `json:"capa"`   // Public path of the stored cover, empty if none
}

var (
	ErrMissingFile    = errors.New("missing music file")
	ErrMissingField   = errors.New("missing required field")
	ErrNotFound       = errors.New("not found")
	ErrMalformedStore = errors.New("malformed catalog document")
	ErrDuplicateID    = errors.New("track id already exists")
)
