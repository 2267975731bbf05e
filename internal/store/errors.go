package store

import "errors"

var (
	ErrRecordNotFound     = errors.New("clock record not found")
	ErrRecordClosed       = errors.New("clock record already closed")
	ErrOpenSessionExists  = errors.New("open session already exists")
	ErrPerimeterNotFound  = errors.New("perimeter not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
