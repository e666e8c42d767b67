package access

import "errors"

var (
	// ErrForbidden is returned when a required permission is not granted.
	ErrForbidden = errors.New("access.forbidden")

	// ErrUnknownRole is returned by role sources that reference a role with
	// no permission mapping.
	ErrUnknownRole = errors.New("access.unknown_role")
)
