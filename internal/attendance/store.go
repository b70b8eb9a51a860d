package attendance

import "context"

// Store is the persistence boundary used by Service.
type Store interface {
	// Get returns the record for (userID, date), or nil if none exists.
	Get(ctx context.Context, userID, date string) (*Record, error)
	// Create inserts a new record. It returns ErrConflict when a record for
	// the same (user, date) already exists.
	Create(ctx context.Context, rec *Record) error
	// CloseOut stores rec.TimeOut only if the stored record has no time-out
	// yet. It returns ErrConflict otherwise.
	CloseOut(ctx context.Context, rec *Record) error
	// Replace overwrites the record with the same ID (administrative override).
	Replace(ctx context.Context, rec *Record) error
}
