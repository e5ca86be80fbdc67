// Package eventstream merges per-network log cursors into a single
// checkpoint-ordered stream, batched by a configurable window and safe to
// resume from any checkpoint.
package eventstream

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/ponder-go/ponder/internal/logger"
	"github.com/ponder-go/ponder/pkg/checkpoint"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// NetworkCursor is one network's view into the sync store, plus how the
// stream should know the highest checkpoint it is currently safe to read up
// to (bounded by that network's sync progress, not just what rows exist).
type NetworkCursor struct {
	ChainID uint64
	Store   pkgsyncstore.Store

	// LogFilterIDs/FactoryIDs scope which filters this cursor reads; empty
	// means "all filters for this chain".
	LogFilterIDs []int64
	FactoryIDs   []int64

	// SafeCheckpoint reports the highest checkpoint this network has fully
	// synced (so the stream never emits a batch that could still grow a
	// gap behind it). Called fresh on every poll.
	SafeCheckpoint func(ctx context.Context) (checkpoint.Checkpoint, error)
}

// Config controls batching.
type Config struct {
	// BatchWindow bounds how many events accumulate in memory before a
	// batch is yielded, even if more events are safely available.
	BatchWindow int
}

var DefaultConfig = Config{BatchWindow: 1000}

func (c *Config) applyDefaults() {
	if c.BatchWindow == 0 {
		c.BatchWindow = DefaultConfig.BatchWindow
	}
}

// Batch is a contiguous, checkpoint-ordered slice of merged events.
type Batch struct {
	Events []pkgsyncstore.LogEvent
	Low    checkpoint.Checkpoint
	High   checkpoint.Checkpoint
}

// Stream lazily merges NetworkCursors in checkpoint order. It is restartable
// from any checkpoint: callers track their own "last delivered checkpoint"
// and pass it back into Next via the from argument, or keep re-using the
// same Stream for a long-lived subscription.
type Stream struct {
	cfg     Config
	cursors []NetworkCursor
	log     *logger.Logger
}

// New creates a Stream over the given per-network cursors.
func New(cfg Config, cursors []NetworkCursor, log *logger.Logger) *Stream {
	cfg.applyDefaults()
	return &Stream{cfg: cfg, cursors: cursors, log: log.WithComponent("eventstream")}
}

// heapItem is one exhausted-or-not lane in the k-way merge.
type heapItem struct {
	event  pkgsyncstore.LogEvent
	lane   int
}

type eventHeap []heapItem

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	return checkpoint.Less(h[i].event.Checkpoint, h[j].event.Checkpoint)
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// lane wraps one network's iterator. The heap holds at most one read-ahead
// event per lane, so it always compares real events, not "iterator might
// have more" states.
type lane struct {
	chainID uint64
	iter    pkgsyncstore.Iterator
	safe    checkpoint.Checkpoint
}

// Next produces the next batch, bounded above by min(per-network safe
// checkpoints) per spec.md §4.6, and by cfg.BatchWindow events. Only events
// strictly above from are returned. Returns an
// empty batch (not an error) if nothing is safely mergeable yet.
func (s *Stream) Next(ctx context.Context, from checkpoint.Checkpoint) (Batch, error) {
	lanes := make([]*lane, 0, len(s.cursors))
	defer func() {
		for _, l := range lanes {
			if l.iter != nil {
				l.iter.Close()
			}
		}
	}()

	// The batch's ceiling must be the minimum safe checkpoint across every
	// network: emitting anything above a lane that hasn't synced that far
	// yet risks that lane later producing an event with a lower checkpoint
	// than one already delivered, which would break the stream's ordering
	// guarantee. So every lane is opened with the same, globally-safe
	// ToCheckpoint rather than its own.
	safeHigh := checkpoint.Max
	safes := make([]checkpoint.Checkpoint, len(s.cursors))
	for i, cursor := range s.cursors {
		safe, err := cursor.SafeCheckpoint(ctx)
		if err != nil {
			return Batch{}, fmt.Errorf("eventstream: safe checkpoint for chain %d: %w", cursor.ChainID, err)
		}
		safes[i] = safe
		safeHigh = checkpoint.Min(safeHigh, safe)
	}

	for i, cursor := range s.cursors {
		iter, err := cursor.Store.GetLogEvents(ctx, pkgsyncstore.GetLogEventsParams{
			ChainID:        cursor.ChainID,
			FromCheckpoint: from,
			ToCheckpoint:   safeHigh,
			LogFilterIDs:   cursor.LogFilterIDs,
			FactoryIDs:     cursor.FactoryIDs,
			Limit:          s.cfg.BatchWindow,
		})
		if err != nil {
			return Batch{}, fmt.Errorf("eventstream: opening cursor for chain %d: %w", cursor.ChainID, err)
		}
		lanes = append(lanes, &lane{chainID: cursor.ChainID, iter: iter, safe: safes[i]})
	}

	h := &eventHeap{}
	heap.Init(h)

	for i, l := range lanes {
		event, ok, err := l.iter.Next(ctx)
		// The store's scan includes from itself; events at or below it were
		// already delivered, so each lane starts at its first event above it.
		for err == nil && ok && !checkpoint.Less(from, event.Checkpoint) {
			event, ok, err = l.iter.Next(ctx)
		}
		if err != nil {
			return Batch{}, fmt.Errorf("eventstream: reading chain %d: %w", l.chainID, err)
		}
		if ok {
			heap.Push(h, heapItem{event: event, lane: i})
		}
	}

	batch := Batch{Low: checkpoint.Max, High: checkpoint.Zero}
	for h.Len() > 0 && len(batch.Events) < s.cfg.BatchWindow {
		top := heap.Pop(h).(heapItem)
		batch.Events = append(batch.Events, top.event)
		batch.Low = checkpoint.Min(batch.Low, top.event.Checkpoint)
		batch.High = checkpoint.MaxOf(batch.High, top.event.Checkpoint)

		next, ok, err := lanes[top.lane].iter.Next(ctx)
		if err != nil {
			return Batch{}, fmt.Errorf("eventstream: reading chain %d: %w", lanes[top.lane].chainID, err)
		}
		if ok {
			heap.Push(h, heapItem{event: next, lane: top.lane})
		}
	}

	if len(batch.Events) == 0 {
		return Batch{Low: from, High: from}, nil
	}

	s.log.Debugf("merged batch of %d events, checkpoints %s..%s", len(batch.Events), batch.Low, batch.High)

	return batch, nil
}
