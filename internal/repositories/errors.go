package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist for the caller.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrFolderLimit indicates the owner already has the maximum number of folders.
	ErrFolderLimit = errors.New("folder limit reached")
)
