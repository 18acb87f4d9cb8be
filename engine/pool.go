package engine

import (
	"sync"
	"time"

	"github.com/rbazhenov/lumengine/slots"
)

// Pool is the top-level worker pool and single-shot scheduler: every
// Workload submitted to it becomes a ScheduledItem with its own Lane, and
// every Server it starts is tracked in a sparse table keyed by acceptance
// order, looked up by port.
type Pool struct {
	executor *Executor

	itemsMu sync.Mutex
	items   *slots.Table[*ScheduledItem]

	serversMu sync.Mutex
	servers   *slots.Table[*Server]

	cleanupLane *Lane
	closed      bool
	closeMu     sync.Mutex
}

// NewPool starts a Pool backed by an Executor with numWorkers goroutines.
// numWorkers<=0 defaults to the number of logical CPUs.
func NewPool(numWorkers int) *Pool {
	exec := NewExecutor(numWorkers)
	n := exec.NumWorkers()
	p := &Pool{
		executor: exec,
		items:    slots.New[*ScheduledItem](32 * n),
		servers:  slots.New[*Server](n),
	}
	p.cleanupLane = NewLane(exec)
	return p
}

// RunImmediately schedules w to run as soon as a worker is free.
func (p *Pool) RunImmediately(w Workload) (*ScheduledItem, error) {
	return p.schedule(w, func(si *ScheduledItem) { si.runNow() })
}

// RunAt schedules w to run at (or soon after) the given time. A time
// already in the past runs on the next event-loop turn.
func (p *Pool) RunAt(w Workload, at time.Time) (*ScheduledItem, error) {
	item, err := p.scheduleAt(w, at)
	return item, err
}

// RunAfter schedules w to run after delay elapses.
func (p *Pool) RunAfter(w Workload, delay time.Duration) (*ScheduledItem, error) {
	return p.scheduleWithTime(w, time.Now().Add(delay), func(si *ScheduledItem) { si.arm(delay) })
}

func (p *Pool) scheduleAt(w Workload, at time.Time) (*ScheduledItem, error) {
	return p.scheduleWithTime(w, at, func(si *ScheduledItem) {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		si.arm(d)
	})
}

func (p *Pool) schedule(w Workload, arm func(*ScheduledItem)) (*ScheduledItem, error) {
	return p.scheduleWithTime(w, time.Time{}, arm)
}

func (p *Pool) scheduleWithTime(w Workload, at time.Time, arm func(*ScheduledItem)) (*ScheduledItem, error) {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil, ErrPoolClosed
	}
	p.closeMu.Unlock()

	item := newScheduledItem(p, w, at)

	p.itemsMu.Lock()
	idx := p.items.Add(item)
	p.itemsMu.Unlock()

	item.cleanup = func() {
		p.cleanupLane.Post(func() {
			p.itemsMu.Lock()
			p.items.Remove(idx)
			p.itemsMu.Unlock()
		})
	}

	arm(item)
	return item, nil
}

// HasActiveTasks reports whether any scheduled item has not yet finished.
func (p *Pool) HasActiveTasks() bool {
	p.itemsMu.Lock()
	defer p.itemsMu.Unlock()
	return !p.items.Empty()
}

// NumWorkers returns the Executor's worker goroutine count.
func (p *Pool) NumWorkers() int { return p.executor.NumWorkers() }

// Shutdown stops every running Server, then joins the Executor's worker
// goroutines. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	p.closeMu.Unlock()

	p.serversMu.Lock()
	var running []*Server
	p.servers.Range(func(_ int, s *Server) bool {
		running = append(running, s)
		return true
	})
	p.serversMu.Unlock()

	for _, s := range running {
		s.Stop()
	}

	p.executor.Close()
}

func (p *Pool) hasServer(port int) bool {
	p.serversMu.Lock()
	defer p.serversMu.Unlock()
	return p.servers.Contains(func(s *Server) bool { return s.Port() == port })
}

func (p *Pool) addServer(s *Server) {
	p.serversMu.Lock()
	defer p.serversMu.Unlock()
	p.servers.Add(s)
}

func (p *Pool) firstServer(port int) (*Server, bool) {
	p.serversMu.Lock()
	defer p.serversMu.Unlock()
	return p.servers.FirstWhere(func(s *Server) bool { return s.Port() == port })
}

func (p *Pool) removeServer(target *Server) {
	p.serversMu.Lock()
	defer p.serversMu.Unlock()
	p.servers.RemoveIf(func(s *Server) bool { return s == target })
}
