package models

import "errors"

// Storage lookups and inserts report these regardless of the backend.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)
