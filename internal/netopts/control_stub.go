//go:build !linux && !windows

package netopts

import "syscall"

// control is a no-op on platforms without a tuned implementation: the
// listener still binds, it just skips SO_REUSEADDR/SO_REUSEPORT/IPV6_V6ONLY
// tuning.
func control(network, address string, c syscall.RawConn) error {
	return nil
}
