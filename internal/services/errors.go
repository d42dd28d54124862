package services

import "errors"

var (
	// ErrStoreUnavailable tags a range query that failed. The range
	// contributes no candidates; the search carries on.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEncoding tags a stored document whose index key is missing or not a
	// valid geohash. The document is skipped.
	ErrEncoding = errors.New("malformed index key")
	// ErrMaintenanceSkipped tags a document whose location could not be
	// encoded during reindexing. The triggering write is not failed.
	ErrMaintenanceSkipped = errors.New("index maintenance skipped")
)
