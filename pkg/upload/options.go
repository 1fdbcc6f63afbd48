package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// GroupOptions is the operator-supplied definition of a single group.
type GroupOptions struct {
	Priority int
	Slots    int
	Strategy Strategy
}

// Options is the scheduling portion of the server configuration, consumed
// by Reconfigure. GlobalSlots caps concurrent uploads across all groups;
// the privileged group always receives priority 0 and GlobalSlots slots.
type Options struct {
	GlobalSlots int
	Default     GroupOptions
	Leechers    GroupOptions
	UserDefined map[string]GroupOptions
}

// Validate rejects options the governor cannot install: negative slot
// counts, reserved names reused as user-defined groups, and priority 0 on
// anything but the privileged group.
func (o Options) Validate() error {
	if o.GlobalSlots < 0 {
		return fmt.Errorf("global upload slots must be >= 0, got %d", o.GlobalSlots)
	}

	check := func(name string, g GroupOptions) error {
		if g.Slots < 0 {
			return fmt.Errorf("group %q: slots must be >= 0, got %d", name, g.Slots)
		}
		if g.Priority <= 0 {
			return fmt.Errorf("group %q: priority must be > 0 (0 is reserved for %q), got %d",
				name, GroupPrivileged, g.Priority)
		}
		return nil
	}

	if err := check(GroupDefault, o.Default); err != nil {
		return err
	}
	if err := check(GroupLeechers, o.Leechers); err != nil {
		return err
	}

	for name, g := range o.UserDefined {
		switch name {
		case GroupPrivileged, GroupDefault, GroupLeechers:
			return fmt.Errorf("group name %q is reserved", name)
		}
		if err := check(name, g); err != nil {
			return err
		}
	}

	return nil
}

// fingerprint returns a stable hash over the group portion of the options.
// The global slot count is compared separately, so two options values with
// the same groups but different caps share a fingerprint.
func (o Options) fingerprint() string {
	h := sha256.New()

	fmt.Fprintf(h, "%s|%d|%d|%s\n", GroupDefault, o.Default.Priority, o.Default.Slots, o.Default.Strategy)
	fmt.Fprintf(h, "%s|%d|%d|%s\n", GroupLeechers, o.Leechers.Priority, o.Leechers.Slots, o.Leechers.Strategy)

	names := make([]string, 0, len(o.UserDefined))
	for name := range o.UserDefined {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		g := o.UserDefined[name]
		fmt.Fprintf(h, "%s|%d|%d|%s\n", name, g.Priority, g.Slots, g.Strategy)
	}

	return hex.EncodeToString(h.Sum(nil))
}
