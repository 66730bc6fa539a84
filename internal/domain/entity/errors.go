package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("job not found")
	ErrForbidden        = errors.New("not authorized to access this job")
	ErrStoreUnavailable = errors.New("job store unavailable")
)

// ValidationError reports a missing or malformed payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func NotFoundError(id string) error {
	return fmt.Errorf("no job with id %s: %w", id, ErrNotFound)
}

// CheckPermission allows the actor to touch a record only when it owns it.
// The returned error never names either identity.
func CheckPermission(actor, owner string) error {
	if actor == "" || actor != owner {
		return ErrForbidden
	}
	return nil
}
