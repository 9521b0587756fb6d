package cnst

import "errors"

var (
	// ErrUnsupportedStoreType is returned for an unknown storage.type
	ErrUnsupportedStoreType = errors.New("unsupported store type")
	// ErrInvalidDatabaseType is returned for an unknown storage.database.type
	ErrInvalidDatabaseType = errors.New("invalid database type")
	// ErrUnsupportedClusterType is returned for an unknown redis cluster type
	ErrUnsupportedClusterType = errors.New("unsupported redis cluster type")
)
