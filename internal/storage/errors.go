package storage

import "errors"

// ErrNotFound is returned when a lookup by id finds no row. Grounded on
// _examples/ashita-ai-akashi/internal/storage/errors.go's sentinel-error
// pattern.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidQuality is returned when a Job is inserted with a Quality
// value outside the closed {high, medium, low} set (DESIGN.md Open
// Question: "job quality" resolution).
var ErrInvalidQuality = errors.New("storage: invalid job quality")
