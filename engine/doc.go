// Package engine is the concurrency and I/O orchestration core of
// lumengine: a worker pool, its single-shot scheduler, the per-protocol
// TCP/UDP handlers, and the per-connection TCP session state machine, all
// driven by host-supplied callbacks that return a declarative next-command.
package engine
