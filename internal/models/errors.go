package models

import "errors"

// ErrUnauthorized marks a collaborator that cannot authenticate at all.
// It is not retried: the caller has to fix credentials and start again.
var ErrUnauthorized = errors.New("collaborator is not authorized")
