package queue

// Coordinator drives the background side of the work queue: per-codebase
// watch-mode polling, lease-timeout revival, and worker staleness tracking.
// It wraps gocron the way arkeep's scheduler wraps it for backup policies —
// one job per codebase tag, singleton mode so a slow tick never overlaps
// itself.
import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/theapemachine/a2a-coordinator/pkg/broker"
)

// DispatchFunc is called once per watch tick for a codebase with its
// currently claimable tasks. It should claim and hand off work to workers
// (or simply return nil if there's nothing to do yet); a returned error
// moves the codebase into CodebaseError.
type DispatchFunc func(ctx context.Context, codebaseID string, claimable []*AgentTask) error

// Coordinator owns the Adapter, the worker table, and the gocron scheduler
// backing watch mode and the periodic sweeps.
type Coordinator struct {
	store    Adapter
	workers  *WorkerTable
	bus      broker.Broker
	cron     gocron.Scheduler
	dispatch DispatchFunc

	leaseTimeout      time.Duration
	watchPollInterval time.Duration
}

// NewCoordinator builds a Coordinator. leaseTimeout bounds how long a RUNNING
// task may go without a status update before ReviveExpiredLeases reclaims
// it; watchPollInterval is the default tick period for codebases that don't
// set their own WatchIntervalS.
func NewCoordinator(store Adapter, workers *WorkerTable, bus broker.Broker, dispatch DispatchFunc, leaseTimeout, watchPollInterval time.Duration) (*Coordinator, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("queue coordinator: gocron.NewScheduler: %w", err)
	}

	return &Coordinator{
		store:             store,
		workers:           workers,
		bus:               bus,
		cron:              cron,
		dispatch:          dispatch,
		leaseTimeout:      leaseTimeout,
		watchPollInterval: watchPollInterval,
	}, nil
}

// Start begins running all scheduled jobs. Call StartWatch/StartLeaseSweep/
// StartWorkerStaleSweep beforehand to register them.
func (c *Coordinator) Start() {
	c.cron.Start()
}

// Stop shuts the scheduler down, waiting for any in-flight tick to finish.
func (c *Coordinator) Stop() error {
	return c.cron.Shutdown()
}

// StartWatch puts a codebase into watch mode: a recurring job lists its
// claimable tasks and hands them to the coordinator's DispatchFunc. Calling
// this for a codebase already WATCHING is a no-op (idempotent start).
func (c *Coordinator) StartWatch(ctx context.Context, codebaseID string) error {
	cb, err := c.store.GetCodebase(ctx, codebaseID)
	if err != nil {
		return err
	}
	if cb.Status == CodebaseWatching {
		return nil
	}

	interval := c.watchPollInterval
	if cb.WatchIntervalS > 0 {
		interval = time.Duration(cb.WatchIntervalS) * time.Second
	}

	_, err = c.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(c.watchTick, codebaseID),
		gocron.WithTags(watchTag(codebaseID)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("queue coordinator: schedule watch for codebase %s: %w", codebaseID, err)
	}

	cb.Status = CodebaseWatching
	cb.ErrorCause = ""
	if err := c.store.UpdateCodebase(ctx, cb); err != nil {
		c.cron.RemoveByTags(watchTag(codebaseID))
		return err
	}

	log.Info("codebase watch started", "codebase_id", codebaseID, "interval", interval)
	return nil
}

// StopWatch removes a codebase's watch job and returns it to idle.
func (c *Coordinator) StopWatch(ctx context.Context, codebaseID string) error {
	c.cron.RemoveByTags(watchTag(codebaseID))

	cb, err := c.store.GetCodebase(ctx, codebaseID)
	if err != nil {
		return err
	}
	cb.Status = CodebaseIdle
	if err := c.store.UpdateCodebase(ctx, cb); err != nil {
		return err
	}

	log.Info("codebase watch stopped", "codebase_id", codebaseID)
	return nil
}

// watchTick is the gocron task body for a codebase's watch job.
func (c *Coordinator) watchTick(codebaseID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cb, err := c.store.GetCodebase(ctx, codebaseID)
	if err != nil {
		log.Error("watch tick: codebase lookup failed", "codebase_id", codebaseID, "err", err)
		return
	}
	if cb.WorkerID == "" {
		// Nothing bound to drain against yet; not an error, just an idle tick.
		return
	}

	claimable, err := c.store.ListClaimable(ctx, cb.WorkerID)
	if err != nil {
		log.Error("watch tick: list claimable failed", "codebase_id", codebaseID, "err", err)
		return
	}

	if err := c.dispatch(ctx, codebaseID, claimable); err != nil {
		log.Error("watch tick: dispatch failed, marking codebase errored", "codebase_id", codebaseID, "err", err)
		c.failCodebase(ctx, codebaseID, err)
		return
	}

	if c.bus != nil {
		_ = c.bus.Publish(ctx, broker.EventChannel("codebase.tick"), map[string]any{
			"codebaseId": codebaseID,
			"claimable":  len(claimable),
		})
	}
}

func (c *Coordinator) failCodebase(ctx context.Context, codebaseID string, cause error) {
	c.cron.RemoveByTags(watchTag(codebaseID))

	cb, err := c.store.GetCodebase(ctx, codebaseID)
	if err != nil {
		return
	}
	cb.Status = CodebaseError
	cb.ErrorCause = cause.Error()
	_ = c.store.UpdateCodebase(ctx, cb)
}

// StartLeaseSweep registers a recurring job that revives RUNNING tasks whose
// lease has expired, putting them back on the queue for another worker.
func (c *Coordinator) StartLeaseSweep(interval time.Duration) error {
	_, err := c.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			revived, err := c.store.ReviveExpiredLeases(ctx, c.leaseTimeout)
			if err != nil {
				log.Error("lease sweep failed", "err", err)
				return
			}
			if len(revived) > 0 {
				log.Warn("revived tasks with expired leases", "count", len(revived))
			}
		}),
		gocron.WithTags("lease-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("queue coordinator: schedule lease sweep: %w", err)
	}
	return nil
}

// StartWorkerStaleSweep registers a recurring job that flags workers which
// haven't heartbeat within staleAfter. It only logs; eviction of a worker's
// in-flight tasks happens through the normal lease sweep once its leases
// expire.
func (c *Coordinator) StartWorkerStaleSweep(interval, staleAfter time.Duration) error {
	_, err := c.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			for _, w := range c.workers.List() {
				if c.workers.IsStale(w.ID, staleAfter) {
					log.Warn("worker heartbeat stale", "worker_id", w.ID, "name", w.Name, "last_seen", w.LastSeen)
				}
			}
		}),
		gocron.WithTags("worker-stale-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("queue coordinator: schedule worker stale sweep: %w", err)
	}
	return nil
}

func watchTag(codebaseID string) string {
	return "watch:" + codebaseID
}
