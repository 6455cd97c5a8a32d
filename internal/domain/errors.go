package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNetwork indicates the upstream could not be reached at all
	ErrNetwork = errors.New("network request failed")

	// ErrNotActive indicates a fetch was routed to a worker that does not control clients
	ErrNotActive = errors.New("worker is not active")

	// ErrInstallFailed indicates the application shell could not be cached
	ErrInstallFailed = errors.New("install failed")

	// ErrStoreNotFound indicates the named cache store does not exist
	ErrStoreNotFound = errors.New("cache store not found")

	// ErrInvalidStoreName indicates a store prefix or version cannot form a store name
	ErrInvalidStoreName = errors.New("invalid store name")
)
