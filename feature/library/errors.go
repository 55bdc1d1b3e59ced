package library

import "errors"

var (
	// ErrNotFound is returned when a photo is not part of the library.
	ErrNotFound = errors.New("photo not found")
	// ErrExists is returned when a move targets an existing photo.
	ErrExists = errors.New("photo already exists")
	// ErrNoStore is returned by operations that need the database.
	ErrNoStore = errors.New("library store not configured")
	// ErrSchema is returned when the photos table lacks required columns.
	ErrSchema = errors.New("photos table schema mismatch")
)
