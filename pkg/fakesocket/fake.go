package fakesocket

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync/atomic"
	"time"
)

// FakeMetric is a fake datagram carrying one sample of every family.
var FakeMetric = []byte("foo.bar.baz:2|c|@0.5\nfoo.bar.timer:320|ms\nfoo.bar.gauge:7|g\nfoo.bar.users.minutely:joe|s")

// FakeAddr is a fake net.Addr
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8125,
}

var ErrClosedConnection = errors.New("Connection is closed")
var ErrAlreadyClosedConnection = errors.New("Connection is already closed")

// FakePacketConn is a fake net.PacketConn providing FakeMetric when read from.
type FakePacketConn struct {
	reads  uint64 // Accessed atomically
	closed chan int
}

func (fpc *FakePacketConn) isClosed() bool {
	select {
	case <-fpc.closed:
		return true
	default:
		return false
	}
}

// ReadFrom copies FakeMetric into b.
func (fpc *FakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if fpc.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	atomic.AddUint64(&fpc.reads, 1)
	n := copy(b, FakeMetric)
	return n, FakeAddr, nil
}

// Reads returns how many datagrams were handed out.
func (fpc *FakePacketConn) Reads() uint64 {
	return atomic.LoadUint64(&fpc.reads)
}

// WriteTo dummy impl.
func (fpc *FakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if fpc.isClosed() {
		return 0, ErrClosedConnection
	}
	return 0, nil
}

// Close dummy impl.
func (fpc *FakePacketConn) Close() error {
	if fpc.isClosed() {
		return ErrAlreadyClosedConnection
	}
	// Potential race, but it's a test fixture anyway
	close(fpc.closed)
	return nil
}

// LocalAddr dummy impl.
func (fpc *FakePacketConn) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (fpc *FakePacketConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (fpc *FakePacketConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (fpc *FakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// FakeRandomPacketConn is a fake net.PacketConn providing random fake metrics.
type FakeRandomPacketConn struct {
	FakePacketConn
}

// ReadFrom generates a random datagram and writes it into b.
func (frpc *FakeRandomPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if frpc.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	atomic.AddUint64(&frpc.reads, 1)
	n := copy(b, RandomDatagram())
	return n, FakeAddr, nil
}

// RandomDatagram builds a datagram of random samples of a single family.
func RandomDatagram() []byte {
	num := rand.Int31n(10000) // Randomize metric name
	buf := new(bytes.Buffer)
	switch rand.Int31n(5) {
	case 0: // Counter
		fmt.Fprintf(buf, "statsagg.tester.counter_%d:%f|c\n", num, rand.Float64()*100) // #nosec
	case 1: // Sampled counter
		fmt.Fprintf(buf, "statsagg.tester.sampled_%d:1|c|@0.%d\n", num, rand.Int31n(9)+1) // #nosec
	case 2: // Gauge
		fmt.Fprintf(buf, "statsagg.tester.gauge_%d:%f|g\n", num, rand.Float64()*100) // #nosec
	case 3: // Timer
		n := 10
		for i := 0; i < n; i++ {
			fmt.Fprintf(buf, "statsagg.tester.timer_%d:%f|ms\n", num, rand.Float64()*100) // #nosec
		}
	case 4: // Set, every other one windowed
		suffix := ""
		if num%2 == 0 {
			suffix = ".minutely"
		}
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "statsagg.tester.set_%d%s:%d|s\n", num, suffix, rand.Int31n(9)+1) // #nosec
		}
	default:
		panic(errors.New("unreachable"))
	}
	return buf.Bytes()
}

// Factory is a replacement for net.ListenPacket() that produces instances of FakeRandomPacketConn.
func Factory() (net.PacketConn, error) {
	frpc := &FakeRandomPacketConn{
		FakePacketConn: FakePacketConn{
			closed: make(chan int),
		},
	}
	return frpc, nil
}

func NewFakePacketConn() *FakePacketConn {
	return &FakePacketConn{
		closed: make(chan int),
	}
}
