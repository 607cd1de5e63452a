package models

import "errors"

var (
	// ErrBlobNotFound is returned when a blob lookup matches no row.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrUserNotFound is returned when a user lookup matches no row.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose name is taken.
	ErrUserExists = errors.New("user already exists")
)
