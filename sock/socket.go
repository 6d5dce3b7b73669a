// Package sock wraps the single UDP socket lsrouted uses to flood and
// receive LSAs (spec.md §4.C: "Bind a datagram socket on a well-known UDP
// port ... to all interfaces"). Adapted from the teacher's sock.Socket
// interface, trimmed to the one consumer this daemon has (the LSA
// Receiver/Flooder) instead of a generic observer fan-out.
package sock

import (
	"errors"
	"net"
	"net/netip"

	"github.com/netlsr/lsrouted/util/assert"
	"github.com/netlsr/lsrouted/util/logger"
)

const component = "socket"

// Packet is one datagram read off the socket, paired with its sender.
type Packet struct {
	From *net.UDPAddr
	Data []byte
}

// Socket is the transport the LSA Emitter and Receiver/Flooder (spec.md
// §4.B, §4.C) send and receive through.
type Socket interface {
	// LocalAddr returns the socket's bound local address. Panics if the
	// socket has not been opened.
	LocalAddr() netip.AddrPort

	// SendTo sends data to addr. Must not be called before Open.
	SendTo(addr netip.AddrPort, data []byte) error

	// Open binds the socket on all IPv4 interfaces at the given port and
	// starts the background read loop that feeds Packets().
	Open(port int) error

	// Close closes the socket. The channel returned by Packets is closed
	// once the read loop observes the closed connection.
	Close() error

	// Packets returns the channel of datagrams received since Open.
	Packets() <-chan Packet
}

// bufferSize is the recommended receive buffer from spec.md §4.C: a
// message larger than this is truncated and fails LSA deserialization,
// which is the correct "drop malformed input" outcome, not a crash.
const bufferSize = 4096

type udpSocket struct {
	conn    *net.UDPConn
	packets chan Packet
}

// NewUDPSocket constructs an unopened Socket.
func NewUDPSocket() Socket {
	return &udpSocket{packets: make(chan Packet, 64)}
}

func (s *udpSocket) LocalAddr() netip.AddrPort {
	assert.Assert(s.conn != nil, "socket is not open")
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (s *udpSocket) Open(port int) error {
	assert.Assert(s.conn == nil, "socket is already open")

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return err
	}
	s.conn = conn

	go s.readLoop()
	return nil
}

func (s *udpSocket) readLoop() {
	defer close(s.packets)

	buf := make([]byte, bufferSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warnf(component, "receive error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.packets <- Packet{From: addr, Data: data}
	}
}

func (s *udpSocket) SendTo(addr netip.AddrPort, data []byte) error {
	assert.Assert(s.conn != nil, "socket is not open")
	_, err := s.conn.WriteToUDP(data, net.UDPAddrFromAddrPort(addr))
	return err
}

func (s *udpSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *udpSocket) Packets() <-chan Packet {
	return s.packets
}
