package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown connection
	ErrNotFound = errors.New("connection not found")

	// ErrAlreadyRegistered is returned when a connection ID is reused
	ErrAlreadyRegistered = errors.New("connection already registered")

	// ErrTransportFailure is returned when the underlying channel rejects a send
	ErrTransportFailure = errors.New("transport failure")

	// ErrChannelClosed is returned once a failed send has removed the connection
	ErrChannelClosed = fmt.Errorf("channel closed: %w", ErrTransportFailure)

	// ErrInvalidTopic is returned for a malformed subscription target
	ErrInvalidTopic = errors.New("invalid topic")
)
