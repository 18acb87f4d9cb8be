package engine

import (
	"net"

	"github.com/rbazhenov/lumengine/buffer"
)

// TCPCommandKind discriminates the three closed shapes a host callback can
// return to drive a TCP Session's next I/O step.
type TCPCommandKind int

const (
	// TCPRead issues a read-at-least-1 into the session's whole read buffer.
	TCPRead TCPCommandKind = iota
	// TCPWrite issues a full write of the attached buffer.
	TCPWrite
	// TCPClose disconnects the session.
	TCPClose
)

// TCPCommand is the value a tcp.on_connect/on_receive/on_write callback
// returns to describe the session's next step. Consumed exactly once.
type TCPCommand struct {
	Kind   TCPCommandKind
	Buffer *buffer.Buffer // only set for TCPWrite
}

// TCPReadCmd requests another read.
func TCPReadCmd() TCPCommand { return TCPCommand{Kind: TCPRead} }

// TCPWriteCmd requests a full write of buf.
func TCPWriteCmd(buf *buffer.Buffer) TCPCommand { return TCPCommand{Kind: TCPWrite, Buffer: buf} }

// TCPCloseCmd requests the session disconnect.
func TCPCloseCmd() TCPCommand { return TCPCommand{Kind: TCPClose} }

// UDPCommandKind discriminates the two closed shapes a host callback can
// return to drive a UDP Handler's next I/O step.
type UDPCommandKind int

const (
	// UDPRead issues another receive.
	UDPRead UDPCommandKind = iota
	// UDPWrite issues a send to a remote endpoint.
	UDPWrite
)

// UDPCommand is the value a udp.on_receive/on_write callback returns.
type UDPCommand struct {
	Kind     UDPCommandKind
	Buffer   *buffer.Buffer // only set for UDPWrite
	Endpoint *net.UDPAddr   // only set for UDPWrite
}

// UDPReadCmd requests another receive.
func UDPReadCmd() UDPCommand { return UDPCommand{Kind: UDPRead} }

// UDPWriteCmd requests a send of buf to endpoint.
func UDPWriteCmd(buf *buffer.Buffer, endpoint *net.UDPAddr) UDPCommand {
	return UDPCommand{Kind: UDPWrite, Buffer: buf, Endpoint: endpoint}
}
