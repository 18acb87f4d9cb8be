package engine

import (
	"log"
	"os"
)

// terminateHook is invoked when a host callback panics or an unreachable
// internal invariant breaks. It prints a diagnostic then aborts the
// process. A package variable rather than a hardwired os.Exit call so
// tests can substitute a non-fatal stand-in.
var terminateHook = func(v any) {
	log.Printf("lumengine: fatal fault, terminating: %v", v)
	os.Exit(2)
}

func terminate(v any) { terminateHook(v) }
