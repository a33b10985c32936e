package cachestore

import "errors"

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("cachestore: key not found")

	// ErrAlreadySubscribed is returned by Subscribe when the channel already
	// has a live listener.
	ErrAlreadySubscribed = errors.New("cachestore: channel already subscribed")

	// ErrNotSubscribed is returned when the named channel has no registered
	// listener.
	ErrNotSubscribed = errors.New("cachestore: channel not subscribed")

	// ErrNilCallback is the terminal error of a listener that was subscribed
	// without a callback to deliver to.
	ErrNilCallback = errors.New("cachestore: nil subscription callback")
)

var errStreamClosed = errors.New("cachestore: message stream closed")
