// Package netopts applies per-platform socket options (SO_REUSEADDR and,
// where supported, IPv6-only binding) to the listeners the engine opens,
// via net.ListenConfig.Control. One file per platform behind a build tag,
// a shared doc/interface file here.
package netopts

// Control is passed as net.ListenConfig.Control for every TCP/UDP listener
// the engine opens. The platform-specific implementation lives in
// control_linux.go / control_windows.go / control_stub.go.
var Control = control
