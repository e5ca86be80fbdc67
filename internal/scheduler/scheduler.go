package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ponder-go/ponder/internal/eventstream"
	"github.com/ponder-go/ponder/internal/logger"
	schemapkg "github.com/ponder-go/ponder/internal/schema"
	pkgindexstore "github.com/ponder-go/ponder/pkg/indexstore"
	pkgsyncstore "github.com/ponder-go/ponder/pkg/syncstore"
)

// FatalError marks a handler failure that should exit the process rather
// than request a reload (spec.md §4.9/§7: SchemaViolation → onFatalError).
type FatalError struct {
	Handler string
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("scheduler: fatal error in handler %q: %v", e.Handler, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ReloadableError marks a handler failure that a code-edit hot reload is
// expected to fix (spec.md §4.9/§7: UserHandlerError → onReloadableError).
type ReloadableError struct {
	Handler string
	Err     error
}

func (e *ReloadableError) Error() string {
	return fmt.Sprintf("scheduler: handler %q failed: %v", e.Handler, e.Err)
}

func (e *ReloadableError) Unwrap() error { return e.Err }

// Scheduler dispatches event-stream batches to registered handlers,
// respecting the schema-derived dependency DAG.
type Scheduler struct {
	cfg   Config
	graph *schemapkg.Graph
	regs  map[string]*Registration
	route *router
	store pkgindexstore.Store
	log   *logger.Logger

	selfLoopMu   map[string]*sync.Mutex
	networksByID map[uint64]Network
}

// New builds a Scheduler. regs must cover every handler named in graph.
func New(cfg Config, graph *schemapkg.Graph, regs []*Registration, store pkgindexstore.Store, networks []Network, log *logger.Logger) (*Scheduler, error) {
	cfg.applyDefaults()

	byName := make(map[string]*Registration, len(regs))
	for _, reg := range regs {
		if _, dup := byName[reg.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate handler registration %q", reg.Name)
		}
		byName[reg.Name] = reg
	}
	for name := range graph.Handlers {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("scheduler: handler %q in dependency graph has no registration", name)
		}
	}

	selfLoopMu := make(map[string]*sync.Mutex, len(graph.SelfLoops))
	for name, isSelfLoop := range graph.SelfLoops {
		if isSelfLoop {
			selfLoopMu[name] = &sync.Mutex{}
		}
	}

	networksByID := make(map[uint64]Network, len(networks))
	for _, n := range networks {
		networksByID[n.ChainID] = n
	}

	return &Scheduler{
		cfg:          cfg,
		graph:        graph,
		regs:         byName,
		route:        newRouter(regs),
		store:        store,
		log:          log.WithComponent("scheduler"),
		selfLoopMu:   selfLoopMu,
		networksByID: networksByID,
	}, nil
}

// ProcessBatch dispatches every event in the batch to its interested
// handlers, one topological layer at a time. A handler error aborts the
// batch: fatal errors (schema violations) are returned as *FatalError,
// everything else as *ReloadableError, per spec.md §4.9/§7.
func (s *Scheduler) ProcessBatch(ctx context.Context, batch eventstream.Batch) error {
	layers, err := s.graph.Layers()
	if err != nil {
		return &FatalError{Handler: "<scheduler>", Err: err}
	}

	byHandler := s.partition(batch.Events)

	for _, layer := range layers {
		if err := s.runLayer(ctx, layer, byHandler); err != nil {
			return err
		}
	}

	return nil
}

// handlerInvocation pairs an event with the checkpoint-bound context a
// handler instance observes.
type handlerInvocation struct {
	event pkgsyncstore.LogEvent
}

func (s *Scheduler) partition(events []pkgsyncstore.LogEvent) map[string][]handlerInvocation {
	out := make(map[string][]handlerInvocation)
	for _, event := range events {
		for _, reg := range s.route.route(event) {
			out[reg.Name] = append(out[reg.Name], handlerInvocation{event: event})
		}
	}
	return out
}

func (s *Scheduler) runLayer(ctx context.Context, layer []string, byHandler map[string][]handlerInvocation) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, name := range layer {
		invocations := byHandler[name]
		if len(invocations) == 0 {
			continue
		}
		name := name

		g.Go(func() error {
			return s.runHandler(gctx, name, invocations)
		})
	}

	return g.Wait()
}

// runHandler executes one handler's invocations for this batch. Self-loop
// handlers are serialized against their own other invocations across the
// whole batch, a stronger guarantee than the spec's per-row requirement but
// one that still satisfies it.
func (s *Scheduler) runHandler(ctx context.Context, name string, invocations []handlerInvocation) error {
	if mu, isSelfLoop := s.selfLoopMu[name]; isSelfLoop {
		mu.Lock()
		defer mu.Unlock()
		for _, inv := range invocations {
			if err := s.invoke(ctx, name, inv); err != nil {
				return err
			}
		}
		return nil
	}

	for _, inv := range invocations {
		if err := s.invoke(ctx, name, inv); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) invoke(ctx context.Context, name string, inv handlerInvocation) error {
	reg := s.regs[name]

	bound := boundStore{store: s.store, ctx: ctx, cp: inv.event.Checkpoint}
	hctx := HandlerContext{
		Context: ctx,
		DB:      bound,
		Network: s.networksByID[inv.event.ChainID],
	}

	if err := reg.Handle(hctx, inv.event); err != nil {
		if isSchemaViolation(err) {
			return &FatalError{Handler: name, Err: err}
		}
		return &ReloadableError{Handler: name, Err: err}
	}
	return nil
}

func isSchemaViolation(err error) bool {
	if err == nil {
		return false
	}
	var uverr *pkgindexstore.UniqueViolationError
	var nferr *pkgindexstore.NotFoundError
	var sverr *pkgindexstore.SchemaViolationError
	return errors.As(err, &uverr) || errors.As(err, &nferr) || errors.As(err, &sverr)
}
