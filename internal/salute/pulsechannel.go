package salute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
)

// PulseChannel is the optional in-process/colocated telemetry channel
// spec.md §9 invites as an alternative to filesystem polling: "Polling a
// filesystem report is a stand-in for a streaming telemetry channel ...
// An implementation MAY replace it with an in-process channel if
// colocated; externally the file format is the contract." It is grounded
// on the teacher's `features/stream/pulse/clients/pulse.Client` wrapper
// (a thin typed layer over `goa.design/pulse/streaming` backed by Redis)
// and its `sink.go`/`subscriber.go` publish/subscribe pair, adapted here
// to carry Report values directly instead of a generic runtime-event
// envelope.
//
// The file-based contract in internal/salute remains canonical — Bridge
// falls back to it whenever no PulseChannel is configured, or a role has
// not yet published over the channel.
type PulseChannel struct {
	redis *redis.Client

	mu     sync.RWMutex
	cache  map[string]Report // roleID -> most recently observed Report
	cancel map[string]context.CancelFunc
}

// NewPulseChannel builds a PulseChannel backed by rdb, the same Redis
// connection the co-retrieval log (internal/memory/coretrieval) already
// assumes is available in a Redis-backed deployment.
func NewPulseChannel(rdb *redis.Client) *PulseChannel {
	return &PulseChannel{
		redis:  rdb,
		cache:  make(map[string]Report),
		cancel: make(map[string]context.CancelFunc),
	}
}

// streamName derives the Pulse stream name for a role's SALUTE reports,
// mirroring the file contract's `<role_id>_latest.json` naming.
func streamName(roleID string) string {
	return "salute/" + roleID
}

// Publish writes report as the next event on roleID's Pulse stream. It is
// the Org Kernel's side of the channel — the Org Kernel remains the sole
// writer per role, exactly as it is for the file contract.
func (c *PulseChannel) Publish(ctx context.Context, roleID string, report Report) error {
	if roleID == "" {
		return errors.New("role id is required")
	}
	stream, err := streaming.NewStream(streamName(roleID), c.redis)
	if err != nil {
		return fmt.Errorf("open pulse stream for role %s: %w", roleID, err)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if _, err := stream.Add(ctx, "salute_report", payload); err != nil {
		return fmt.Errorf("publish salute report for role %s: %w", roleID, err)
	}
	return nil
}

// EnsureSubscribed starts a background consumer for roleID's stream if one
// is not already running, so that Latest can return the most recently
// published report without blocking the caller on a live subscribe. It is
// idempotent and safe to call on every poll tick the way Bridge already
// calls ReadLatestTelemetry on every tick.
func (c *PulseChannel) EnsureSubscribed(ctx context.Context, roleID string) error {
	c.mu.Lock()
	if _, running := c.cancel[roleID]; running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	stream, err := streaming.NewStream(streamName(roleID), c.redis)
	if err != nil {
		return fmt.Errorf("open pulse stream for role %s: %w", roleID, err)
	}
	sink, err := stream.NewSink(ctx, "warden_bridge")
	if err != nil {
		return fmt.Errorf("open pulse sink for role %s: %w", roleID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel[roleID] = cancel
	c.mu.Unlock()

	go c.consume(runCtx, roleID, sink)
	return nil
}

func (c *PulseChannel) consume(ctx context.Context, roleID string, sink *streaming.Sink) {
	defer sink.Close(context.Background())
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var report Report
			if err := json.Unmarshal(evt.Payload, &report); err == nil {
				c.mu.Lock()
				c.cache[roleID] = report
				c.mu.Unlock()
			}
			_ = sink.Ack(ctx, evt)
		}
	}
}

// Latest returns the most recently observed report for roleID, or (Report{},
// false) if nothing has been published yet (or no subscription is running).
// Callers should call EnsureSubscribed first; Latest itself never blocks or
// performs I/O.
func (c *PulseChannel) Latest(roleID string) (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.cache[roleID]
	return r, ok
}

// Close stops every running subscription. Safe to call once at shutdown.
func (c *PulseChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for roleID, cancel := range c.cancel {
		cancel()
		delete(c.cancel, roleID)
	}
}
