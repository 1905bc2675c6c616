package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Attendance window violations.
	ErrNotYetJoinable = errors.New("meeting not yet joinable")
	ErrAlreadyEnded   = errors.New("meeting already ended")
)
