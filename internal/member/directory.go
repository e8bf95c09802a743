// Package member exposes the read-side view of the member registry that the
// survey engine needs: profile lookups carrying welfare feature codes,
// capability codes, group memberships, and demography attributes.
package member

import (
	"context"
	"fmt"
	"sync"

	id "refahi/pkg/domain"
	"refahi/pkg/sentinel"
)

// Profile is the directory's view of one member. Feature and capability
// codes are normalized uppercase; Demography carries the whitelisted
// attribute keys captured into response snapshots.
type Profile struct {
	MemberID     id.MemberID       `json:"member_id"`
	FullName     string            `json:"full_name"`
	Features     []string          `json:"features"`
	Capabilities []string          `json:"capabilities"`
	Groups       []string          `json:"groups"`
	Demography   map[string]string `json:"demography,omitempty"`
}

// Directory resolves member profiles. The authoritative registry lives in
// another system; implementations here are a seeded in-memory directory and
// a Redis-backed read-through cache in front of any Directory.
type Directory interface {
	Profile(ctx context.Context, memberID id.MemberID) (*Profile, error)
}

// MemoryDirectory is a seeded in-process directory for tests and local
// development.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[id.MemberID]*Profile
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{profiles: make(map[id.MemberID]*Profile)}
}

// Seed registers or replaces a profile.
func (d *MemoryDirectory) Seed(p *Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.MemberID] = p
}

func (d *MemoryDirectory) Profile(_ context.Context, memberID id.MemberID) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[memberID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	clone := *p
	clone.Features = append([]string(nil), p.Features...)
	clone.Capabilities = append([]string(nil), p.Capabilities...)
	clone.Groups = append([]string(nil), p.Groups...)
	if p.Demography != nil {
		clone.Demography = make(map[string]string, len(p.Demography))
		for k, v := range p.Demography {
			clone.Demography[k] = v
		}
	}
	return &clone, nil
}
