package engine

import "time"

// ScheduledItem is one Workload bound to a schedule (now, at a deadline, or
// after a delay) and to its own Lane. Every observation of its started/
// finished state, and every mutation of it, happens on that Lane — so two
// concurrent calls to Cancel/Started/Finished never race each other or the
// timer firing.
type ScheduledItem struct {
	pool        *Pool
	lane        *Lane
	workload    Workload
	scheduledAt time.Time

	timer    *time.Timer
	started  bool
	finished bool
	cleanup  func()
}

func newScheduledItem(pool *Pool, workload Workload, at time.Time) *ScheduledItem {
	return &ScheduledItem{
		pool:        pool,
		lane:        NewLane(pool.executor),
		workload:    workload,
		scheduledAt: at,
	}
}

// runNow posts the workload's execution onto the item's own Lane immediately.
func (si *ScheduledItem) runNow() {
	si.lane.Post(func() { si.runWorkload(nil) })
}

// arm schedules the workload's execution after d, via time.AfterFunc; d<=0
// runs it on the next event-loop turn.
func (si *ScheduledItem) arm(d time.Duration) {
	si.lane.Post(func() {
		si.timer = time.AfterFunc(d, func() {
			si.lane.Post(func() { si.runWorkload(nil) })
		})
	})
}

// Cancel prevents a still-pending timer from firing and synthesizes a
// cancelled completion in its place. A no-op once the item has already
// started, or if it was scheduled to run immediately and has no timer.
func (si *ScheduledItem) Cancel() {
	si.lane.Post(func() {
		if si.timer != nil && si.timer.Stop() {
			si.runWorkload(ErrCancelled)
		}
	})
}

// Started reports whether the item's workload has begun executing. It waits
// for its turn on the item's Lane, so it does not return while the workload
// itself is still running.
func (si *ScheduledItem) Started() bool {
	var v bool
	si.lane.PostAndWait(func() { v = si.started })
	return v
}

// Finished reports whether the item has fully completed: for Function and
// StopServer workloads, and for a StartServer workload that failed or
// found the port already bound, this is true as soon as runWorkload
// returns. For a StartServer workload that successfully registered a
// Server, Finished only becomes true once that Server's own teardown
// fires, however much later that is.
func (si *ScheduledItem) Finished() bool {
	var v bool
	si.lane.PostAndWait(func() { v = si.finished })
	return v
}

// ScheduledAt returns the time the item's workload was (or will be) run at;
// zero if it was scheduled to run immediately. Immutable after construction,
// so unlike Started/Finished this needs no Lane round-trip.
func (si *ScheduledItem) ScheduledAt() time.Time { return si.scheduledAt }

// runWorkload executes the item's workload and invokes its completion
// callback. schedErr is non-nil only when a timer was cancelled before
// firing; a nil schedErr means the schedule fired (or the item was run
// immediately).
func (si *ScheduledItem) runWorkload(schedErr error) {
	resultErr := schedErr
	doImmediateFinish := true

	if schedErr == nil {
		si.started = true
		switch si.workload.Kind {
		case WorkloadFunction:
			si.workload.Function()

		case WorkloadStartServer:
			cfg := si.workload.StartServer
			if si.pool.hasServer(cfg.Port) {
				// A Server already owns this port; treat as a successful no-op.
			} else {
				srv, err := newServer(si.pool.executor, cfg, si.serverCleanup())
				if err != nil {
					resultErr = err
				} else {
					si.pool.addServer(srv)
					doImmediateFinish = false
				}
			}

		case WorkloadStopServer:
			if srv, ok := si.pool.firstServer(si.workload.StopServerPort); ok {
				srv.Stop()
			}
		}
	}

	if si.workload.Callback != nil {
		si.workload.Callback(resultErr)
	}

	if doImmediateFinish {
		si.finished = true
		si.runCleanup()
	}
}

// serverCleanup builds the closure handed to a freshly started Server: it
// marks this item finished and removes the Server from the pool's server
// table, run from wherever Server.Stop() happens to be called (not
// necessarily this item's own Lane), so the state mutation is re-posted
// onto the item's Lane to stay race-free.
func (si *ScheduledItem) serverCleanup() func(*Server) {
	return func(srv *Server) {
		si.lane.Post(func() {
			si.finished = true
			si.runCleanup()
		})
		si.pool.removeServer(srv)
	}
}

func (si *ScheduledItem) runCleanup() {
	if si.cleanup != nil {
		si.cleanup()
	}
}
