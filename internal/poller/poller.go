package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/schaermu/nfswatch/internal/collector"
	"github.com/schaermu/nfswatch/internal/diff"
	"github.com/schaermu/nfswatch/internal/journal"
	"github.com/schaermu/nfswatch/internal/snapshot"
)

// DefaultHeavyLoadThreshold is the entry count delta above which diffing is
// suspended.
const DefaultHeavyLoadThreshold = 100_000

// Mode is the controller's operating mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeHeavyLoad
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeHeavyLoad {
		return "heavy-load"
	}
	return "normal"
}

// Collector produces one snapshot of a tree
type Collector interface {
	Collect(ctx context.Context, root string) (*collector.Result, error)
}

// Persister writes a raw snapshot while diffing is suspended
type Persister interface {
	Persist(snap *snapshot.Snapshot, now time.Time) (string, error)
}

// Journal records cycles for later inspection
type Journal interface {
	RecordCycle(ctx context.Context, cycle journal.Cycle) error
}

// Observer is notified after every cycle
type Observer interface {
	ObserveCycle(result CycleResult)
}

// Options configures an Engine
type Options struct {
	Root               string
	Interval           time.Duration
	HeavyLoadThreshold int
}

// State is carried from one cycle to the next. Baseline is nil until the
// first successful collection.
type State struct {
	Baseline *collector.Result
	Mode     Mode
}

// CycleResult describes what a single cycle did
type CycleResult struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Mode         Mode
	Delta        int
	Entries      int
	Events       []diff.Event
	SnapshotFile string
	// Baseline is set when the cycle only established the first baseline.
	Baseline bool
	// Skipped is set when collection failed and the previous state was kept.
	Skipped bool
	Err     error
}

// Engine runs the poll loop
type Engine struct {
	opts      Options
	collector Collector
	persister Persister
	out       io.Writer
	journal   Journal
	observers []Observer
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// NewEngine creates a new poll engine. Events are written to out.
func NewEngine(opts Options, c Collector, p Persister, out io.Writer, logger *slog.Logger) *Engine {
	if opts.HeavyLoadThreshold <= 0 {
		opts.HeavyLoadThreshold = DefaultHeavyLoadThreshold
	}
	return &Engine{
		opts:      opts,
		collector: c,
		persister: p,
		out:       out,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		newID:     uuid.NewString,
	}
}

// WithJournal records every cycle to j. Journal failures are logged only.
func (e *Engine) WithJournal(j Journal) *Engine {
	e.journal = j
	return e
}

// WithObserver registers an observer for cycle results.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observers = append(e.observers, o)
	return e
}

// Run polls until ctx is cancelled. Cancellation is honoured at cycle
// boundaries; a cycle in progress always completes. Run only returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("watching folder",
		"path", e.opts.Root,
		"interval", e.opts.Interval,
		"heavy_load_threshold", e.opts.HeavyLoadThreshold)

	state := State{Mode: ModeNormal}
	var delay time.Duration

	for {
		if ctx.Err() != nil {
			break
		}
		if delay > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}

		var result CycleResult
		state, result = e.RunCycle(ctx, state)
		delay = e.nextDelay(state, result)
	}

	e.logger.Info("watch stopped")
	return nil
}

// nextDelay returns the wait before the next cycle. Heavy load polls back to
// back unless the root was unreachable.
func (e *Engine) nextDelay(state State, result CycleResult) time.Duration {
	if result.Skipped {
		return e.opts.Interval
	}
	if state.Mode == ModeHeavyLoad {
		return 0
	}
	return e.opts.Interval
}

// RunCycle performs one collect-and-compare step and returns the state for
// the next cycle.
func (e *Engine) RunCycle(ctx context.Context, state State) (State, CycleResult) {
	result := CycleResult{
		ID:        e.newID(),
		StartedAt: e.now().UTC(),
		Mode:      state.Mode,
	}
	logger := e.logger.With("cycle", result.ID)

	current, err := e.collector.Collect(ctx, e.opts.Root)
	if err != nil {
		result.Skipped = true
		result.Err = err
		switch {
		case errors.Is(err, collector.ErrRootUnreachable):
			logger.Warn("watched path is not accessible, retrying", "path", e.opts.Root, "error", err)
		case errors.Is(err, context.Canceled):
			logger.Debug("collection cancelled")
		default:
			logger.Error("failed to collect snapshot", "path", e.opts.Root, "error", err)
		}
		e.finish(ctx, logger, &result)
		return state, result
	}

	result.Entries = current.Snapshot.Len()

	if state.Baseline == nil {
		result.Baseline = true
		logger.Info("initial snapshot taken", "entries", result.Entries)
		state.Baseline = current
		e.finish(ctx, logger, &result)
		return state, result
	}

	previous := state.Baseline
	result.Delta = absDiff(current.Snapshot.Len(), previous.Snapshot.Len())

	if result.Delta > e.opts.HeavyLoadThreshold {
		if state.Mode != ModeHeavyLoad {
			logger.Warn("heavy load detected, switching to fast processing mode",
				"delta", result.Delta,
				"threshold", e.opts.HeavyLoadThreshold)
			state.Mode = ModeHeavyLoad
		}
		result.Mode = state.Mode

		if e.persister != nil {
			path, persistErr := e.persister.Persist(current.Snapshot, result.StartedAt)
			if persistErr != nil {
				logger.Error("failed to save snapshot", "error", persistErr)
			} else {
				result.SnapshotFile = path
			}
		}
	} else {
		if state.Mode == ModeHeavyLoad {
			logger.Info("load normalized, resuming normal polling rate", "delta", result.Delta)
			state.Mode = ModeNormal
		}
		result.Mode = state.Mode

		result.Events = diff.Compute(previous.Snapshot, current.Snapshot, previous.Index)
		if err := diff.Write(e.out, result.Events); err != nil {
			logger.Error("failed to write events", "error", err)
		}
	}

	state.Baseline = current
	e.finish(ctx, logger, &result)
	return state, result
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, result *CycleResult) {
	result.Duration = e.now().UTC().Sub(result.StartedAt)

	if !result.Skipped {
		summary := diff.Summarize(result.Events)
		logger.Debug("cycle complete",
			"mode", result.Mode,
			"entries", result.Entries,
			"delta", result.Delta,
			"created", summary.Created,
			"deleted", summary.Deleted,
			"modified", summary.Modified,
			"duration", result.Duration)

		if e.journal != nil && !result.Baseline {
			if err := e.journal.RecordCycle(context.WithoutCancel(ctx), toJournal(*result)); err != nil {
				logger.Warn("failed to record cycle in journal", "error", err)
			}
		}
	}

	for _, o := range e.observers {
		o.ObserveCycle(*result)
	}
}

func toJournal(result CycleResult) journal.Cycle {
	events := make([]journal.Event, 0, len(result.Events))
	for _, ev := range result.Events {
		events = append(events, journal.Event{Type: ev.Type.String(), Path: ev.Path})
	}
	return journal.Cycle{
		ID:        result.ID,
		StartedAt: result.StartedAt,
		Mode:      result.Mode.String(),
		Delta:     result.Delta,
		Entries:   result.Entries,
		Events:    events,
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
