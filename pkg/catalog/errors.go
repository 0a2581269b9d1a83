package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("character not found")

	// ErrInvalidPage reports limit/offset outside the accepted bounds.
	ErrInvalidPage = errors.New("invalid page request")
)

// NotFoundError reports a name search with no matches.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No character found with name %s", e.Name)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
