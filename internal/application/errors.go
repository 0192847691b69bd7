// Package application contains the sync use cases: token lifecycle, activity
// fetching, reconciliation, and the batch sweep.
package application

import (
	"context"
	"errors"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

// Application-level sentinel errors. Provider errors live in the driven port.
var (
	// ErrNoCredential indicates the member has never connected Strava.
	ErrNoCredential = errors.New("no strava credential")

	// ErrPersistence indicates a storage read or write failed.
	ErrPersistence = errors.New("persistence error")

	// ErrPreconditionFailed indicates the sweep could not load its user list.
	ErrPreconditionFailed = errors.New("sweep precondition failed")

	// ErrInvalidPeriod indicates a month or year outside the accepted range.
	ErrInvalidPeriod = errors.New("invalid sync period")
)

// ErrorKindOf classifies err. The order matters: a second 401 after a forced
// refresh wraps both ErrRefreshFailed and ErrUnauthorized and must report the former.
func ErrorKindOf(err error) model.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPreconditionFailed):
		return model.ErrorKindPreconditionFailed
	case errors.Is(err, ErrNoCredential):
		return model.ErrorKindNoCredential
	case errors.Is(err, driven.ErrRefreshFailed):
		return model.ErrorKindRefreshFailed
	case errors.Is(err, driven.ErrExchangeFailed):
		return model.ErrorKindExchangeFailed
	case errors.Is(err, ErrPersistence):
		return model.ErrorKindPersistence
	case errors.Is(err, driven.ErrUnauthorized):
		return model.ErrorKindUnauthorized
	case errors.Is(err, driven.ErrRateLimited):
		return model.ErrorKindRateLimited
	case errors.Is(err, driven.ErrTransient):
		return model.ErrorKindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindCanceled
	default:
		return model.ErrorKindUnknown
	}
}
