package tp

import "errors"

// ErrUninitialized is returned when a ReaderInfo's shared generation header
// has not yet been constructed by its creating process.
var ErrUninitialized = errors.New("tp: shared state not yet initialized")
