package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		GlobalSlots: 10,
		Default:     fifoGroup(500, 10),
		Leechers:    rrGroup(999, 1),
		UserDefined: map[string]GroupOptions{
			"friends": rrGroup(250, 5),
		},
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(o *Options) {},
		},
		{
			name:    "negative global slots",
			mutate:  func(o *Options) { o.GlobalSlots = -1 },
			wantErr: "global upload slots",
		},
		{
			name:    "negative group slots",
			mutate:  func(o *Options) { o.Default.Slots = -1 },
			wantErr: "slots must be >= 0",
		},
		{
			name:    "zero priority reserved",
			mutate:  func(o *Options) { o.Leechers.Priority = 0 },
			wantErr: "priority must be > 0",
		},
		{
			name:    "negative priority",
			mutate:  func(o *Options) { o.UserDefined["friends"] = fifoGroup(-5, 1) },
			wantErr: "priority must be > 0",
		},
		{
			name: "privileged name reserved",
			mutate: func(o *Options) {
				o.UserDefined[GroupPrivileged] = fifoGroup(1, 1)
			},
			wantErr: "is reserved",
		},
		{
			name: "default name reserved",
			mutate: func(o *Options) {
				o.UserDefined[GroupDefault] = fifoGroup(1, 1)
			},
			wantErr: "is reserved",
		},
		{
			name: "leechers name reserved",
			mutate: func(o *Options) {
				o.UserDefined[GroupLeechers] = fifoGroup(1, 1)
			},
			wantErr: "is reserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFingerprintStable(t *testing.T) {
	a := validOptions()
	b := validOptions()
	assert.Equal(t, a.fingerprint(), b.fingerprint())
}

func TestFingerprintIgnoresGlobalSlots(t *testing.T) {
	// The global cap is compared separately by Reconfigure; the hash only
	// covers the group definitions.
	a := validOptions()
	b := validOptions()
	b.GlobalSlots = 99
	assert.Equal(t, a.fingerprint(), b.fingerprint())
}

func TestFingerprintSensitivity(t *testing.T) {
	base := validOptions()

	changed := validOptions()
	changed.Default.Slots = 7
	assert.NotEqual(t, base.fingerprint(), changed.fingerprint())

	changed = validOptions()
	changed.Leechers.Strategy = StrategyFIFO
	assert.NotEqual(t, base.fingerprint(), changed.fingerprint())

	changed = validOptions()
	changed.UserDefined["family"] = fifoGroup(100, 2)
	assert.NotEqual(t, base.fingerprint(), changed.fingerprint())

	changed = validOptions()
	delete(changed.UserDefined, "friends")
	assert.NotEqual(t, base.fingerprint(), changed.fingerprint())
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "FirstInFirstOut", want: StrategyFIFO},
		{in: "firstinfirstout", want: StrategyFIFO},
		{in: "FIRSTINFIRSTOUT", want: StrategyFIFO},
		{in: "RoundRobin", want: StrategyRoundRobin},
		{in: "roundrobin", want: StrategyRoundRobin},
		{in: "fifo", wantErr: true},
		{in: "", wantErr: true},
		{in: "random", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "FirstInFirstOut", StrategyFIFO.String())
	assert.Equal(t, "RoundRobin", StrategyRoundRobin.String())
	assert.Equal(t, "Strategy(42)", Strategy(42).String())
}
