package upload

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/droserasprout/slskd/internal/logger"
)

// UserService maps a peer username to its current group name. The governor
// looks groups up lazily at the moment of selection, so users reclassified
// between enqueue and release are scheduled under their current group.
//
// GroupOf must be deterministic within a single call into the governor; it
// may change between calls.
type UserService interface {
	GroupOf(username string) string
}

// Governor is the upload admission scheduler. All public operations acquire
// a single mutex, mutate or inspect state, and release; the only point
// where a caller blocks indefinitely is the StartToken returned by
// AwaitStart, and that wait happens outside the lock.
type Governor struct {
	users   UserService
	metrics Metrics

	mu       sync.Mutex
	uploads  map[string][]*Upload // username -> uploads in enqueue order
	groups   map[string]*Group
	maxSlots int

	// Idempotence guards for Reconfigure.
	lastOptionsHash string
	lastGlobalSlots int

	// now is a test hook; defaults to time.Now.
	now func() time.Time
}

// New creates a governor with an empty group table. No upload is released
// until Reconfigure installs a configuration.
//
// metrics may be nil to disable metrics collection.
func New(users UserService, metrics Metrics) *Governor {
	return &Governor{
		users:   users,
		metrics: metrics,
		uploads: make(map[string][]*Upload),
		groups:  make(map[string]*Group),
		now:     time.Now,
	}
}

// Enqueue registers an upload for the given peer and runs the admission
// loop. Duplicate filenames are distinct queue entries.
func (g *Governor) Enqueue(username, filename string) {
	g.mu.Lock()

	u := &Upload{
		ID:         uuid.New(),
		Username:   username,
		Filename:   filename,
		EnqueuedAt: g.now(),
		done:       make(chan struct{}),
	}
	g.uploads[username] = append(g.uploads[username], u)

	if g.metrics != nil {
		g.metrics.RecordEnqueued()
		g.metrics.SetQueueDepth(g.queueDepth())
	}

	winner := g.promote()
	g.mu.Unlock()

	logger.Debug("upload enqueued",
		"upload_id", u.ID,
		"username", username,
		"filename", filename,
	)

	g.release(winner)
}

// AwaitStart marks the upload as ready and returns its start token. The
// token resolves when the admission loop releases the upload.
//
// Returns ErrNotEnqueued if no matching upload exists. Calling AwaitStart
// again for the same upload returns the same token and does not reset the
// ready timestamp.
func (g *Governor) AwaitStart(username, filename string) (*StartToken, error) {
	g.mu.Lock()

	u := g.find(username, filename)
	if u == nil {
		g.mu.Unlock()
		return nil, ErrNotEnqueued
	}

	if u.ReadyAt.IsZero() {
		u.ReadyAt = g.now()
	}
	token := &StartToken{done: u.done}

	winner := g.promote()
	g.mu.Unlock()

	g.release(winner)
	return token, nil
}

// Complete removes the upload and returns its slot to the pinned group.
// It must be called whether the transfer succeeded, failed, or was
// cancelled; the governor does not distinguish.
//
// If the pinned group was removed by a reconfiguration the slot is simply
// discarded - the rebuild already reclaimed it.
func (g *Governor) Complete(username, filename string) error {
	g.mu.Lock()

	u := g.find(username, filename)
	if u == nil {
		g.mu.Unlock()
		return ErrNotEnqueued
	}

	g.remove(u)

	group := ""
	if u.PinnedGroup != "" {
		if grp, ok := g.groups[u.PinnedGroup]; ok {
			group = grp.Name
			if grp.UsedSlots > 0 {
				grp.UsedSlots--
			}
			if g.metrics != nil {
				g.metrics.SetUsedSlots(grp.Name, grp.UsedSlots, grp.Slots)
			}
		}
	}

	if g.metrics != nil {
		g.metrics.SetQueueDepth(g.queueDepth())
		if !u.StartedAt.IsZero() {
			g.metrics.RecordCompleted(group, g.now().Sub(u.StartedAt))
		}
	}

	winner := g.promote()
	g.mu.Unlock()

	logger.Debug("upload completed",
		"upload_id", u.ID,
		"username", username,
		"filename", filename,
		"group", u.PinnedGroup,
	)

	g.release(winner)
	return nil
}

// Reconfigure rebuilds the group table from the given options and runs the
// admission loop. Repeated calls with identical options are no-ops.
//
// For any group whose name survives the rebuild, UsedSlots is carried over
// unchanged, so in-flight transfers keep their accounting. Invalid options
// leave the governor in its last-good state.
func (g *Governor) Reconfigure(opts Options) error {
	if err := opts.Validate(); err != nil {
		logger.Error("rejecting upload governor configuration", "error", err)
		return err
	}

	g.mu.Lock()

	hash := opts.fingerprint()
	if hash == g.lastOptionsHash && opts.GlobalSlots == g.lastGlobalSlots {
		g.mu.Unlock()
		return nil
	}

	carry := func(name string) int {
		if old, ok := g.groups[name]; ok {
			return old.UsedSlots
		}
		return 0
	}

	next := make(map[string]*Group, 3+len(opts.UserDefined))
	next[GroupPrivileged] = &Group{
		Name:      GroupPrivileged,
		Priority:  0,
		Slots:     opts.GlobalSlots,
		Strategy:  StrategyFIFO,
		UsedSlots: carry(GroupPrivileged),
	}
	next[GroupDefault] = &Group{
		Name:      GroupDefault,
		Priority:  opts.Default.Priority,
		Slots:     opts.Default.Slots,
		Strategy:  opts.Default.Strategy,
		UsedSlots: carry(GroupDefault),
	}
	next[GroupLeechers] = &Group{
		Name:      GroupLeechers,
		Priority:  opts.Leechers.Priority,
		Slots:     opts.Leechers.Slots,
		Strategy:  opts.Leechers.Strategy,
		UsedSlots: carry(GroupLeechers),
	}
	for name, o := range opts.UserDefined {
		next[name] = &Group{
			Name:      name,
			Priority:  o.Priority,
			Slots:     o.Slots,
			Strategy:  o.Strategy,
			UsedSlots: carry(name),
		}
	}

	g.groups = next
	g.maxSlots = opts.GlobalSlots
	g.lastOptionsHash = hash
	g.lastGlobalSlots = opts.GlobalSlots

	if g.metrics != nil {
		for _, grp := range next {
			g.metrics.SetUsedSlots(grp.Name, grp.UsedSlots, grp.Slots)
		}
	}

	winner := g.promote()
	g.mu.Unlock()

	logger.Info("upload governor reconfigured",
		"global_slots", opts.GlobalSlots,
		"groups", len(next),
	)

	g.release(winner)
	return nil
}

// Groups returns a snapshot of the current group table, sorted by
// (priority, name).
func (g *Governor) Groups() []Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Group, 0, len(g.groups))
	for _, grp := range g.sortedGroups() {
		out = append(out, *grp)
	}
	return out
}

// Snapshot returns copies of all tracked uploads in per-user enqueue order,
// for the management API.
func (g *Governor) Snapshot() []Upload {
	g.mu.Lock()
	defer g.mu.Unlock()

	usernames := make([]string, 0, len(g.uploads))
	for username := range g.uploads {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	var out []Upload
	for _, username := range usernames {
		for _, u := range g.uploads[username] {
			out = append(out, *u)
		}
	}
	return out
}

// ============================================================================
// Registry (callers must hold g.mu)
// ============================================================================

// find returns the first matching upload in enqueue order, or nil.
func (g *Governor) find(username, filename string) *Upload {
	for _, u := range g.uploads[username] {
		if u.Filename == filename {
			return u
		}
	}
	return nil
}

// remove deletes the upload from its user's list, purging the user's entry
// when the list becomes empty.
func (g *Governor) remove(target *Upload) {
	list := g.uploads[target.Username]
	for i, u := range list {
		if u == target {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(g.uploads, target.Username)
	} else {
		g.uploads[target.Username] = list
	}
}

// queueDepth counts all tracked uploads, pending and active.
func (g *Governor) queueDepth() int {
	total := 0
	for _, list := range g.uploads {
		total += len(list)
	}
	return total
}

// usedSlots sums active uploads across all groups.
func (g *Governor) usedSlots() int {
	total := 0
	for _, grp := range g.groups {
		total += grp.UsedSlots
	}
	return total
}

// sortedGroups returns the groups in ascending (priority, name) order.
// Lexicographic name order breaks priority ties; callers must not rely on
// insertion order.
func (g *Governor) sortedGroups() []*Group {
	out := make([]*Group, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ============================================================================
// Admission loop
// ============================================================================

// promote runs one pass of the admission loop and returns the released
// upload, if any. Callers must hold g.mu and must pass the result to
// release after unlocking.
//
// At most one upload is released per invocation; every state-changing
// operation re-enters the loop, which is how a burst of completions drains
// the queue.
func (g *Governor) promote() *Upload {
	// The global cap is checked against the current group table, so
	// transient over-subscription is impossible.
	if g.usedSlots() >= g.maxSlots {
		return nil
	}

	// Bucket ready uploads by their user's current group. Users whose
	// group is no longer present are skipped; their work waits until they
	// are reassigned.
	buckets := make(map[string][]*Upload)
	for username, list := range g.uploads {
		groupName := g.users.GroupOf(username)
		if _, ok := g.groups[groupName]; !ok {
			continue
		}
		for _, u := range list {
			if u.ready() {
				buckets[groupName] = append(buckets[groupName], u)
			}
		}
	}

	for _, grp := range g.sortedGroups() {
		if grp.UsedSlots >= grp.Slots {
			continue
		}
		bucket := buckets[grp.Name]
		if len(bucket) == 0 {
			continue
		}

		winner := bucket[0]
		for _, u := range bucket[1:] {
			switch grp.Strategy {
			case StrategyRoundRobin:
				if u.ReadyAt.Before(winner.ReadyAt) {
					winner = u
				}
			default:
				if u.EnqueuedAt.Before(winner.EnqueuedAt) {
					winner = u
				}
			}
		}

		winner.StartedAt = g.now()
		winner.PinnedGroup = grp.Name
		grp.UsedSlots++

		if g.metrics != nil {
			g.metrics.SetUsedSlots(grp.Name, grp.UsedSlots, grp.Slots)
		}
		return winner
	}

	return nil
}

// release signals the winner's start token. It must be called outside the
// governor mutex so resolution never inverts with awaiters; the token is
// closed at most once because promote never selects a started upload again.
func (g *Governor) release(winner *Upload) {
	if winner == nil {
		return
	}

	logger.Info("upload released",
		"upload_id", winner.ID,
		"username", winner.Username,
		"filename", winner.Filename,
		"group", winner.PinnedGroup,
	)

	if g.metrics != nil {
		g.metrics.RecordReleased(winner.PinnedGroup, winner.StartedAt.Sub(winner.ReadyAt))
	}

	close(winner.done)
}
