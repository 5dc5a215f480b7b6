package audit

import (
	"context"
	"time"
)

// Journal persists sealed ledger entries, one JSON line per entry, one file
// per UTC calendar day. Interface owned by domain per hexagonal
// architecture; implementations must flush each append before returning so
// a successful Append means the line is on disk.
type Journal interface {
	// Append writes one sealed entry to the day file matching its
	// timestamp. Returns an error without partial state on failure.
	Append(ctx context.Context, e Entry) error

	// ReadDay returns the entries recorded on the given UTC date in
	// insertion order. A day with no journal file yields an empty slice.
	ReadDay(ctx context.Context, date time.Time) ([]Entry, error)

	// LastEntry returns the newest entry across all day files. ok is false
	// when the journal is empty. Used to recover the chain tip at boot.
	LastEntry(ctx context.Context) (e Entry, ok bool, err error)

	// Close releases resources.
	Close() error
}
