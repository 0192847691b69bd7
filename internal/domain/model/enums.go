package model

// ProviderStrava is the only activity provider the sync core talks to.
const ProviderStrava = "strava"

// ErrorKind classifies a failed sync so callers can react without string
// matching on error text.
type ErrorKind string

const (
	ErrorKindNoCredential       ErrorKind = "NoCredential"
	ErrorKindExchangeFailed     ErrorKind = "ExchangeFailed"
	ErrorKindRefreshFailed      ErrorKind = "RefreshFailed"
	ErrorKindUnauthorized       ErrorKind = "Unauthorized"
	ErrorKindRateLimited        ErrorKind = "RateLimited"
	ErrorKindTransient          ErrorKind = "TransientNetworkError"
	ErrorKindPersistence        ErrorKind = "PersistenceError"
	ErrorKindPreconditionFailed ErrorKind = "PreconditionFailed"
	ErrorKindCanceled           ErrorKind = "Canceled"
	ErrorKindUnknown            ErrorKind = "Unknown"
)

// Retryable reports whether a sweep may retry a user pass that failed with
// this kind.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindRateLimited || k == ErrorKindTransient
}
