package catalog

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotConfigured means the store lacks the file link or the endpoint an operation needs.
	ErrNotConfigured = errors.New("catalog store is not configured")
	// ErrUnreachable means every transport failed; it never means "no products".
	ErrUnreachable = errors.New("catalog store is unreachable")
	// ErrConflict means the document changed after it was read.
	ErrConflict = errors.New("catalog changed since it was read")
	// ErrInvalid wraps rejected input.
	ErrInvalid = errors.New("invalid product")
)

// NotFoundError is returned by Get, Update and Remove for an unknown id.
type NotFoundError struct {
	ID    string
	Known []string
}

func (e *NotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("product %q not found, catalog is empty", e.ID)
	}
	return fmt.Sprintf("product %q not found, known ids: %s", e.ID, strings.Join(e.Known, ", "))
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}
