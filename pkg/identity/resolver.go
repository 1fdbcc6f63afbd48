// Package identity classifies remote peers into upload scheduling groups.
//
// Classification is resolved at lookup time, so a peer promoted to the
// privileged list or newly detected as a leecher is rescheduled under its
// new group on the governor's next admission pass, without touching any
// queued state.
package identity

import (
	"sort"
	"sync"

	"github.com/droserasprout/slskd/pkg/upload"
)

// ShareStats is a peer's self-reported share inventory, learned from the
// peer's connection handshake or a browse response.
type ShareStats struct {
	Files       int
	Directories int
}

// GroupMembers is a user-defined group's name, dispatch priority, and
// member list. Priority only matters when a peer appears in several
// member lists: the group with the lowest (priority, name) wins, matching
// the governor's dispatch order.
type GroupMembers struct {
	Name     string
	Priority int
	Members  []string
}

// Resolver maps peer usernames to group names. It implements
// upload.UserService.
//
// Resolution order:
//  1. peers on the privileged list -> "privileged"
//  2. peers in a user-defined group's member list -> that group
//  3. peers reporting shares below the leecher thresholds -> "leechers"
//  4. everyone else -> "default"
//
// Peers with no recorded share stats are given the benefit of the doubt
// and fall through to the default group.
type Resolver struct {
	mu         sync.RWMutex
	privileged map[string]struct{}
	membership map[string]string // username -> user-defined group name
	stats      map[string]ShareStats

	minFiles       int
	minDirectories int
}

// NewResolver creates a resolver that classifies every peer into the
// default group until Configure is called.
func NewResolver() *Resolver {
	return &Resolver{
		privileged: make(map[string]struct{}),
		membership: make(map[string]string),
		stats:      make(map[string]ShareStats),
	}
}

// Configure replaces the privileged list, group memberships, and leecher
// thresholds. Recorded share stats survive reconfiguration.
func (r *Resolver) Configure(privileged []string, groups []GroupMembers, minFiles, minDirectories int) {
	privilegedSet := make(map[string]struct{}, len(privileged))
	for _, username := range privileged {
		privilegedSet[username] = struct{}{}
	}

	// Lowest (priority, name) wins for peers in multiple member lists.
	ordered := make([]GroupMembers, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	membership := make(map[string]string)
	for _, g := range ordered {
		for _, username := range g.Members {
			if _, taken := membership[username]; !taken {
				membership[username] = g.Name
			}
		}
	}

	r.mu.Lock()
	r.privileged = privilegedSet
	r.membership = membership
	r.minFiles = minFiles
	r.minDirectories = minDirectories
	r.mu.Unlock()
}

// RecordShareStats stores a peer's reported share counts for leecher
// detection.
func (r *Resolver) RecordShareStats(username string, stats ShareStats) {
	r.mu.Lock()
	r.stats[username] = stats
	r.mu.Unlock()
}

// GroupOf returns the peer's current group name.
func (r *Resolver) GroupOf(username string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.privileged[username]; ok {
		return upload.GroupPrivileged
	}
	if group, ok := r.membership[username]; ok {
		return group
	}
	if stats, ok := r.stats[username]; ok {
		if stats.Files < r.minFiles || stats.Directories < r.minDirectories {
			return upload.GroupLeechers
		}
	}
	return upload.GroupDefault
}

var _ upload.UserService = (*Resolver)(nil)
