package datastore

import (
	"fmt"

	"github.com/plenumhq/plenum/internal/domain"
)

// NotFoundError is returned by Get when the requested model does not exist
// or has been deleted.
type NotFoundError struct {
	FQID domain.FQID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("model %s does not exist", e.FQID)
}

// LockedError is returned by Write when the datastore's position check for
// one of the locked fields failed. The whole batch must be retried.
type LockedError struct {
	Keys []string
}

func (e LockedError) Error() string {
	return fmt.Sprintf("datastore locked: %v", e.Keys)
}

// InvalidFormatError is returned when the datastore rejects the shape of a
// request.
type InvalidFormatError struct {
	Msg string
}

func (e InvalidFormatError) Error() string {
	return "invalid format: " + e.Msg
}

// RequestError wraps any other error response from the datastore service.
type RequestError struct {
	Type string
	Msg  string
}

func (e RequestError) Error() string {
	return fmt.Sprintf("datastore error %s: %s", e.Type, e.Msg)
}
