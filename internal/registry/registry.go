package registry

import (
	"sort"
	"sync"
	"time"
)

// Record represents one live, registered device connection.
type Record struct {
	// ID is the connection identity assigned by the transport layer.
	// It is unique per live connection and not device-persistent.
	ID string `json:"id"`

	// Name is the device display name reported at registration.
	Name string `json:"name"`

	// System is the operating-system family (e.g. "iOS", "Android").
	System string `json:"system"`

	// Version is the OS version string.
	Version string `json:"version"`

	// BatteryLevel is the reported battery charge in the range 0.0-1.0.
	BatteryLevel float64 `json:"battery_level"`

	// ConnectedAt is the registration timestamp.
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry is a concurrency-safe mapping from connection identity to Record.
//
// The Connection Lifecycle Manager is the only writer; the relay and
// dashboard-facing readers only read. Operations on different identities
// never interfere; operations on the same identity are linearized by the
// mutex.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]Record),
	}
}

// Put inserts or replaces the record for the given identity.
// Identities are assigned per connection, so no uniqueness conflict is
// possible; an upsert is always safe.
func (r *Registry) Put(record Record) {
	r.mu.Lock()
	r.records[record.ID] = record
	r.mu.Unlock()
}

// Get retrieves the record for an identity.
// Returns ErrNotFound if no record exists. The returned record is a copy;
// callers can safely hold it across registry mutations.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	record, ok := r.records[id]
	r.mu.RUnlock()

	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Remove deletes the record for an identity. Removal is idempotent:
// removing an absent identity is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
}

// List returns a point-in-time snapshot of all records, ordered by
// registration time (oldest first) for stable presentation.
func (r *Registry) List() []Record {
	r.mu.RLock()
	records := make([]Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].ConnectedAt.Equal(records[j].ConnectedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].ConnectedAt.Before(records[j].ConnectedAt)
	})
	return records
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
