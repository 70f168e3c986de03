package catalog

import "errors"

var (
	// ErrRegistryUnavailable indicates the registry could not be reached and
	// no prior snapshot exists to serve.
	ErrRegistryUnavailable = errors.New("catalog: registry unavailable")

	// ErrSnapshotNotFound indicates the snapshot store holds no persisted
	// snapshot.
	ErrSnapshotNotFound = errors.New("catalog: no persisted snapshot")
)
