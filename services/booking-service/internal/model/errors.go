package model

import "errors"

var ErrNotFound = errors.New("appointment not found")

// ErrStaleVersion is returned when a conditional update finds the row already
// moved on by another writer.
var ErrStaleVersion = errors.New("appointment was modified concurrently")

var ErrProviderNotFound = errors.New("provider not found")
