package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/droserasprout/slskd/pkg/upload"
)

func TestUnconfiguredResolverDefaultsEveryone(t *testing.T) {
	r := NewResolver()
	assert.Equal(t, upload.GroupDefault, r.GroupOf("alice"))
}

func TestPrivilegedWinsOverEverything(t *testing.T) {
	r := NewResolver()
	r.Configure(
		[]string{"alice"},
		[]GroupMembers{{Name: "friends", Priority: 1, Members: []string{"alice"}}},
		1, 1,
	)
	r.RecordShareStats("alice", ShareStats{Files: 0, Directories: 0})

	assert.Equal(t, upload.GroupPrivileged, r.GroupOf("alice"))
}

func TestMembershipWinsOverLeecherDetection(t *testing.T) {
	r := NewResolver()
	r.Configure(
		nil,
		[]GroupMembers{{Name: "friends", Priority: 1, Members: []string{"bob"}}},
		1, 1,
	)
	r.RecordShareStats("bob", ShareStats{Files: 0, Directories: 0})

	assert.Equal(t, "friends", r.GroupOf("bob"))
}

func TestLeecherThresholds(t *testing.T) {
	r := NewResolver()
	r.Configure(nil, nil, 10, 2)

	tests := []struct {
		name  string
		stats ShareStats
		want  string
	}{
		{"below both", ShareStats{Files: 0, Directories: 0}, upload.GroupLeechers},
		{"below files only", ShareStats{Files: 5, Directories: 5}, upload.GroupLeechers},
		{"below directories only", ShareStats{Files: 50, Directories: 1}, upload.GroupLeechers},
		{"at thresholds", ShareStats{Files: 10, Directories: 2}, upload.GroupDefault},
		{"above both", ShareStats{Files: 100, Directories: 20}, upload.GroupDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.RecordShareStats("peer", tt.stats)
			assert.Equal(t, tt.want, r.GroupOf("peer"))
		})
	}
}

func TestUnknownSharesAreNotLeechers(t *testing.T) {
	// Peers we have no stats for get the benefit of the doubt.
	r := NewResolver()
	r.Configure(nil, nil, 10, 2)

	assert.Equal(t, upload.GroupDefault, r.GroupOf("stranger"))
}

func TestOverlappingMembershipLowestPriorityWins(t *testing.T) {
	r := NewResolver()
	r.Configure(nil, []GroupMembers{
		{Name: "zeta", Priority: 1, Members: []string{"alice", "bob"}},
		{Name: "alpha", Priority: 5, Members: []string{"alice"}},
	}, 1, 1)

	assert.Equal(t, "zeta", r.GroupOf("alice"))
	assert.Equal(t, "zeta", r.GroupOf("bob"))
}

func TestOverlappingMembershipTieBrokenByName(t *testing.T) {
	r := NewResolver()
	r.Configure(nil, []GroupMembers{
		{Name: "zeta", Priority: 3, Members: []string{"alice"}},
		{Name: "alpha", Priority: 3, Members: []string{"alice"}},
	}, 1, 1)

	assert.Equal(t, "alpha", r.GroupOf("alice"))
}

func TestReconfigureReplacesMembershipKeepsStats(t *testing.T) {
	r := NewResolver()
	r.Configure(
		[]string{"carol"},
		[]GroupMembers{{Name: "friends", Priority: 1, Members: []string{"bob"}}},
		1, 1,
	)
	r.RecordShareStats("dave", ShareStats{Files: 0, Directories: 0})
	assert.Equal(t, upload.GroupLeechers, r.GroupOf("dave"))

	// Drop everything; dave's recorded stats still classify him.
	r.Configure(nil, nil, 1, 1)

	assert.Equal(t, upload.GroupDefault, r.GroupOf("carol"))
	assert.Equal(t, upload.GroupDefault, r.GroupOf("bob"))
	assert.Equal(t, upload.GroupLeechers, r.GroupOf("dave"))
}
