package configuration

import "errors"

var (
	ErrMissingRequiredSetting = errors.New("missing required setting")
	ErrInvalidEnumValue       = errors.New("invalid enum value")
	ErrInvalidSetting         = errors.New("invalid setting")

	// ErrPrincipalConflict is raised at apply time when a non-default user or
	// group does not exist on the host.
	ErrPrincipalConflict = errors.New("principal conflict")
)
