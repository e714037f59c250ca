package ordidx

import (
	"errors"

	"github.com/haspelj/ordidx/internal/arena"
)

// ErrOutOfMemory is returned by Update and Compress when the configured
// Allocator cannot satisfy a request.
var ErrOutOfMemory = arena.ErrOutOfMemory

// ErrInvalidArgument is returned when a key violates the index's
// constraints: empty, too long, or containing an embedded NUL byte.
var ErrInvalidArgument = errors.New("ordidx: invalid argument")

// ErrInvalidState is returned when an operation is attempted in a lifecycle
// state that does not support it (currently: Update or Compress on an
// already Compressed index).
var ErrInvalidState = errors.New("ordidx: invalid state")
