package snapshot

import (
	"context"
	"sort"
	"time"
)

// Saver persists snapshots.
// PRINCIPLES:
// - ISP: four methods, nothing store specific
// - DIP: sessions depend on this interface, not on a database
type Saver interface {
	// Save persists a snapshot, replacing one with the same ID
	Save(ctx context.Context, s *Snapshot) error

	// Load retrieves a snapshot by ID
	Load(ctx context.Context, id string) (*Snapshot, error)

	// List returns snapshots matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Snapshot, error)

	// Delete removes a snapshot by ID
	Delete(ctx context.Context, id string) error
}

// Filter narrows List results.
type Filter struct {
	SessionID string     `json:"session_id,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	if f.Since != nil && f.Before != nil && f.Since.After(*f.Before) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches reports whether s passes every criterion except paging.
func (f *Filter) Matches(s *Snapshot) bool {
	if f.SessionID != "" && s.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && !s.Timestamp.After(*f.Since) {
		return false
	}
	if f.Before != nil && !s.Timestamp.Before(*f.Before) {
		return false
	}
	return s.HasTags(f.Tags)
}

// Apply filters, orders newest first and pages a slice of snapshots. Stores
// that cannot query natively use it.
func (f *Filter) Apply(all []*Snapshot) []*Snapshot {
	matched := make([]*Snapshot, 0, len(all))
	for _, s := range all {
		if f.Matches(s) {
			matched = append(matched, s)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Offset >= len(matched) {
		return []*Snapshot{}
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}
