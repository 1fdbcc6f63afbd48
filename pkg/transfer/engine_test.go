package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droserasprout/slskd/pkg/upload"
)

type defaultUsers struct{}

func (defaultUsers) GroupOf(string) string { return upload.GroupDefault }

// recordingStreamer records the order of streamed files and can be told
// to fail or block.
type recordingStreamer struct {
	mu      sync.Mutex
	streams []string
	err     error
	block   chan struct{} // when non-nil, Stream waits for it (or ctx)
}

func (s *recordingStreamer) Stream(ctx context.Context, username, filename string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.streams = append(s.streams, username+"/"+filename)
	s.mu.Unlock()
	return s.err
}

func (s *recordingStreamer) streamed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.streams))
	copy(out, s.streams)
	return out
}

func newTestGovernor(t *testing.T, slots int) *upload.Governor {
	t.Helper()
	g := upload.New(defaultUsers{}, nil)
	require.NoError(t, g.Reconfigure(upload.Options{
		GlobalSlots: slots,
		Default:     upload.GroupOptions{Priority: 1, Slots: slots, Strategy: upload.StrategyFIFO},
		Leechers:    upload.GroupOptions{Priority: 2, Slots: 1, Strategy: upload.StrategyFIFO},
	}))
	return g
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngineTransfersAndDrains(t *testing.T) {
	governor := newTestGovernor(t, 2)
	streamer := &recordingStreamer{}
	engine := NewEngine(governor, streamer, DefaultConfig())

	engine.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, engine.Request("alice", fmt.Sprintf("f%d", i)))
	}

	waitFor(t, func() bool {
		_, completed, _ := engine.Stats()
		return completed == 5
	}, "transfers did not complete")

	engine.Stop(time.Second)

	assert.Len(t, streamer.streamed(), 5)
	assert.Empty(t, governor.Snapshot(), "every slot must be returned")
}

func TestEngineCountsStreamFailures(t *testing.T) {
	governor := newTestGovernor(t, 1)
	streamer := &recordingStreamer{err: errors.New("peer reset connection")}
	engine := NewEngine(governor, streamer, Config{Workers: 1, QueueSize: 10})

	engine.Start(context.Background())
	require.True(t, engine.Request("alice", "f1"))

	waitFor(t, func() bool {
		_, _, failed := engine.Stats()
		return failed == 1
	}, "failure was not recorded")

	engine.Stop(time.Second)
	assert.Empty(t, governor.Snapshot(), "failed transfers still return their slot")
}

func TestRequestWithdrawsWhenQueueFull(t *testing.T) {
	governor := newTestGovernor(t, 1)
	streamer := &recordingStreamer{}
	engine := NewEngine(governor, streamer, Config{Workers: 1, QueueSize: 1})

	// Engine not started: nothing drains the queue.
	require.True(t, engine.Request("alice", "f1"))
	require.False(t, engine.Request("alice", "f2"), "queue capacity is 1")

	// The rejected request must not linger in the governor.
	snapshot := governor.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "f1", snapshot[0].Filename)
}

func TestRequestAfterStopIsRejected(t *testing.T) {
	governor := newTestGovernor(t, 1)
	engine := NewEngine(governor, &recordingStreamer{}, DefaultConfig())

	engine.Start(context.Background())
	engine.Stop(time.Second)

	assert.False(t, engine.Request("alice", "f1"))
	assert.Empty(t, governor.Snapshot())
}

func TestRequestDuringStopDoesNotPanic(t *testing.T) {
	// Peers keep requesting while the engine shuts down; a request racing
	// with the queue close must be rejected, never crash.
	governor := newTestGovernor(t, 2)
	streamer := &recordingStreamer{}
	engine := NewEngine(governor, streamer, Config{Workers: 2, QueueSize: 4})

	engine.Start(context.Background())

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				engine.Request(fmt.Sprintf("peer%d", i), fmt.Sprintf("f%d", j))
			}
		}(i)
	}

	close(start)
	engine.Stop(5 * time.Second)
	wg.Wait()

	// Accepted requests were serviced before the workers exited; rejected
	// ones were withdrawn on the spot. Either way nothing may linger.
	waitFor(t, func() bool {
		return len(governor.Snapshot()) == 0
	}, "every request must be serviced or withdrawn")
	assert.False(t, engine.Request("peer0", "late"))
}

func TestStartAfterStopIsRefused(t *testing.T) {
	governor := newTestGovernor(t, 1)
	engine := NewEngine(governor, &recordingStreamer{}, Config{Workers: 2, QueueSize: 4})

	engine.Stop(time.Second)
	engine.Start(context.Background())

	engine.mu.Lock()
	started := engine.started
	engine.mu.Unlock()
	assert.False(t, started, "a stopped engine must not launch workers")

	assert.False(t, engine.Request("alice", "f1"))
	assert.Empty(t, governor.Snapshot())

	// A second Stop must return immediately rather than wait on a pool
	// that was never launched.
	engine.Stop(time.Second)
}

func TestStartIsIdempotent(t *testing.T) {
	governor := newTestGovernor(t, 1)
	engine := NewEngine(governor, &recordingStreamer{}, Config{Workers: 2, QueueSize: 4})

	engine.Start(context.Background())
	engine.Start(context.Background())
	engine.Stop(time.Second)
}

func TestCancellationReturnsSlots(t *testing.T) {
	// Zero slots: tokens never resolve, workers sit in token.Wait.
	governor := newTestGovernor(t, 0)
	streamer := &recordingStreamer{}
	engine := NewEngine(governor, streamer, Config{Workers: 2, QueueSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)

	require.True(t, engine.Request("alice", "f1"))
	require.True(t, engine.Request("bob", "g1"))

	waitFor(t, func() bool {
		pending, _, _ := engine.Stats()
		return pending == 0
	}, "workers did not pick up requests")

	cancel()

	waitFor(t, func() bool {
		_, _, failed := engine.Stats()
		return failed == 2
	}, "cancelled waits were not recorded as failures")

	engine.Stop(time.Second)
	assert.Empty(t, governor.Snapshot(), "cancelled waits must withdraw their registrations")
	assert.Empty(t, streamer.streamed())
}

func TestStreamingRespectsSlotCap(t *testing.T) {
	governor := newTestGovernor(t, 1)
	streamer := &recordingStreamer{block: make(chan struct{})}
	engine := NewEngine(governor, streamer, Config{Workers: 4, QueueSize: 10})

	engine.Start(context.Background())

	require.True(t, engine.Request("alice", "f1"))
	require.True(t, engine.Request("bob", "g1"))

	// Exactly one upload may hold the single slot while streaming.
	waitFor(t, func() bool {
		for _, grp := range governor.Groups() {
			if grp.Name == upload.GroupDefault {
				return grp.UsedSlots == 1
			}
		}
		return false
	}, "first transfer did not start")

	assert.Empty(t, streamer.streamed(), "stream is still blocked")

	close(streamer.block)

	waitFor(t, func() bool {
		_, completed, _ := engine.Stats()
		return completed == 2
	}, "transfers did not complete after unblocking")

	engine.Stop(time.Second)
	assert.Empty(t, governor.Snapshot())
}
