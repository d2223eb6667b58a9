package repository

import "errors"

// ErrNotFound is returned by every backend when the requested row does not
// exist. Callers translate it into their own sentinel (missing session,
// unknown tenant) rather than leaking storage details upward.
var ErrNotFound = errors.New("repository: not found")
