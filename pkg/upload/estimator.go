package upload

import "sort"

// IsSlotAvailable reports whether the user's current group exists and has
// a free slot. It does not consider the global cap; it answers "would this
// user's group admit another upload".
func (g *Governor) IsSlotAvailable(username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slotAvailable(username)
}

func (g *Governor) slotAvailable(username string) bool {
	grp, ok := g.groups[g.users.GroupOf(username)]
	return ok && grp.UsedSlots < grp.Slots
}

// EstimatePosition estimates how many uploads precede the user's next
// upload. It returns 0 when the user's group has a free slot; otherwise it
// returns the size of the user's own queue as a proxy for the group's
// backlog. That proxy undercounts when other users in the group also have
// work queued; it is kept for compatibility with the observed behavior of
// the position endpoint.
func (g *Governor) EstimatePosition(username string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.slotAvailable(username) {
		return 0
	}
	return len(g.uploads[username])
}

// EstimatePositionOf estimates the 0-based queue position of a specific
// upload. Returns ErrNotEnqueued if no matching upload exists.
//
// For FIFO groups the position is the upload's index among all uploads of
// users currently in the same group, ordered by enqueue time. For
// round-robin groups the estimate assumes uniform progress: every other
// user in the group advances lock-step with this user until their queue
// drains, so the position is the upload's index in its own user's list
// plus min(that index, len(queue)) summed over the other users' queues.
//
// Estimates are snapshots, not guarantees of actual release time.
func (g *Governor) EstimatePositionOf(username, filename string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	target := g.find(username, filename)
	if target == nil {
		return 0, ErrNotEnqueued
	}

	groupName := g.users.GroupOf(username)
	grp, ok := g.groups[groupName]
	if !ok {
		// The user is currently unclassified; nothing precedes an upload
		// the admission loop cannot see.
		return 0, nil
	}

	// Users currently classified into the same group.
	members := make(map[string][]*Upload)
	for user, list := range g.uploads {
		if g.users.GroupOf(user) == groupName {
			members[user] = list
		}
	}

	if grp.Strategy == StrategyRoundRobin {
		local := 0
		for i, u := range members[username] {
			if u == target {
				local = i
				break
			}
		}

		position := local
		for user, list := range members {
			if user == username {
				continue
			}
			position += min(local, len(list))
		}
		return position, nil
	}

	var all []*Upload
	for _, list := range members {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EnqueuedAt.Before(all[j].EnqueuedAt)
	})

	for i, u := range all {
		if u == target {
			return i, nil
		}
	}

	// find succeeded above, so the target must be in its group's listing.
	panic("upload: enqueued upload missing from group listing")
}
