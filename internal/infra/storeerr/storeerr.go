// Package storeerr maps driver failures onto domain error kinds.
package storeerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"quiz-session-service/internal/domain"
)

// Wrap annotates err with the backend operation. Connection and deadline
// failures become domain.ErrTransient; domain errors pass through unchanged.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomain(err) {
		return err
	}
	if IsTransient(err) {
		err = domain.Transient(err)
	}
	return fmt.Errorf("%s %s: %w", backend, op, err)
}

// IsTransient reports failures worth retrying at a higher level.
func IsTransient(err error) bool {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &netErr):
		return true
	}
	return false
}

func isDomain(err error) bool {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrVersionConflict,
		domain.ErrInvalidState,
		domain.ErrValidation,
		domain.ErrTransient,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
