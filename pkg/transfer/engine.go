// Package transfer drives uploads through the governor's rendezvous.
//
// The engine owns a bounded queue of transfer requests and a fixed pool of
// workers. For each request a worker registers the upload with the
// governor, waits for its start token to resolve, streams the bytes, and
// always completes the upload - success, failure, or cancellation - so the
// borrowed slot is returned.
//
// The wire protocol lives behind the Streamer interface; the engine knows
// nothing about sockets.
package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/droserasprout/slskd/internal/logger"
	"github.com/droserasprout/slskd/pkg/upload"
)

// DefaultWorkers is the default number of concurrent transfer workers.
const DefaultWorkers = 4

// DefaultQueueSize is the default request queue capacity.
const DefaultQueueSize = 1000

// Streamer performs the wire-level byte transfer for a released upload.
type Streamer interface {
	// Stream sends the file's bytes to the peer. It is called only after
	// the governor has released the upload, and its error is recorded but
	// does not affect slot accounting.
	Stream(ctx context.Context, username, filename string) error
}

// Request identifies one upload to perform.
type Request struct {
	Username string
	Filename string
}

// Config holds engine configuration.
type Config struct {
	// Workers is the number of concurrent transfer workers.
	// Default: 4
	Workers int

	// QueueSize is the request queue capacity.
	// Default: 1000
	QueueSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
	}
}

// Engine is the transfer engine. Create with NewEngine, then Start.
type Engine struct {
	governor *upload.Governor
	streamer Streamer
	workers  int

	queue chan Request

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewEngine creates a transfer engine. Invalid config values fall back to
// defaults.
func NewEngine(governor *upload.Governor, streamer Streamer, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	return &Engine{
		governor: governor,
		streamer: streamer,
		workers:  cfg.Workers,
		queue:    make(chan Request, cfg.QueueSize),
	}
}

// Start launches the worker pool. Calling Start twice is a no-op, as is
// calling it after Stop; a stopped engine stays stopped.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return
	}
	e.started = true

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	logger.Info("transfer engine started", "workers", e.workers)
}

// Request enqueues an upload request from a peer. The upload is registered
// with the governor immediately, so queue position estimates count from
// request time rather than from worker pickup.
//
// Returns false if the request queue is full or the engine is stopped; a
// rejected request is withdrawn from the governor before returning.
func (e *Engine) Request(username, filename string) bool {
	e.governor.Enqueue(username, filename)

	// The stopped check and the send share one critical section: Stop
	// closes the queue under the same mutex, so a send can never race
	// with the close. The send is non-blocking, so the hold is brief.
	e.mu.Lock()
	accepted := false
	if !e.stopped {
		select {
		case e.queue <- Request{Username: username, Filename: filename}:
			accepted = true
		default:
		}
	}
	e.mu.Unlock()

	if !accepted {
		// Withdraw the registration so the governor's queue does not
		// accumulate entries no worker will ever service.
		if err := e.governor.Complete(username, filename); err != nil {
			logger.Warn("failed to withdraw rejected upload",
				"username", username,
				"filename", filename,
				"error", err,
			)
		}
	}
	return accepted
}

// Stop closes the request queue and waits up to timeout for in-flight
// transfers to finish. Requests still queued are serviced before workers
// exit, unless the Start context is cancelled first.
func (e *Engine) Stop(timeout time.Duration) {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("transfer engine stopped")
	case <-time.After(timeout):
		logger.Warn("transfer engine stop timed out", "timeout", timeout)
	}
}

// Stats returns the number of pending, completed, and failed transfers.
func (e *Engine) Stats() (pending int, completed, failed uint64) {
	return len(e.queue), e.completed.Load(), e.failed.Load()
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-e.queue:
			if !ok {
				return
			}
			e.transfer(ctx, req)
		}
	}
}

// transfer performs the rendezvous for one request. Complete is called on
// every path after a successful AwaitStart, including cancellation while
// still waiting for a slot.
func (e *Engine) transfer(ctx context.Context, req Request) {
	token, err := e.governor.AwaitStart(req.Username, req.Filename)
	if err != nil {
		// Out of sync with the governor; abort this transfer.
		logger.Warn("upload vanished before transfer",
			"username", req.Username,
			"filename", req.Filename,
			"error", err,
		)
		e.failed.Add(1)
		return
	}

	if err := token.Wait(ctx); err != nil {
		e.finish(req, err)
		return
	}

	start := time.Now()
	streamErr := e.streamer.Stream(ctx, req.Username, req.Filename)
	if streamErr == nil {
		logger.Info("upload transferred",
			"username", req.Username,
			"filename", req.Filename,
			"duration_ms", logger.Duration(start),
		)
	}

	e.finish(req, streamErr)
}

func (e *Engine) finish(req Request, transferErr error) {
	if err := e.governor.Complete(req.Username, req.Filename); err != nil {
		logger.Error("failed to complete upload",
			"username", req.Username,
			"filename", req.Filename,
			"error", err,
		)
	}

	if transferErr != nil {
		logger.Warn("upload did not complete cleanly",
			"username", req.Username,
			"filename", req.Filename,
			"error", transferErr,
		)
		e.failed.Add(1)
		return
	}
	e.completed.Add(1)
}
