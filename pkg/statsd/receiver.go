package statsd

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"
)

// MetricReceiver reads datagrams from a PacketConn, parses them and records them in the Store.
// Packet and bad line totals are kept by the Store.
type MetricReceiver struct {
	store        *Store
	keyCounter   *KeyCounter // nil when key frequency sampling is disabled
	dumpMessages bool
	bufSize      int
	limiter      *rate.Limiter // Throttles bad line log entries
	logger       logrus.FieldLogger
}

// NewMetricReceiver initialises a new MetricReceiver. keyCounter may be nil.
func NewMetricReceiver(store *Store, keyCounter *KeyCounter, dumpMessages bool, bufSize, badLinesPerMinute int, logger logrus.FieldLogger) *MetricReceiver {
	return &MetricReceiver{
		store:        store,
		keyCounter:   keyCounter,
		dumpMessages: dumpMessages,
		bufSize:      bufSize,
		limiter:      rate.NewLimiter(rate.Limit(float64(badLinesPerMinute)/60), badLinesPerMinute),
		logger:       logger,
	}
}

// Receive accepts incoming datagrams on c until it is closed or ctx is done.
// Malformed datagrams never end the loop.
func (mr *MetricReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	buf := make([]byte, mr.bufSize)
	for {
		// This will error out when the socket is closed.
		nbytes, addr, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				mr.logger.Warnf("Error reading from socket: %v", err)
				continue
			}
			return fmt.Errorf("non-temporary error reading from socket: %v", err)
		}
		mr.HandlePacket(ctx, addr, buf[:nbytes])
	}
}

// HandlePacket parses one datagram and records it in the Store.
func (mr *MetricReceiver) HandlePacket(ctx context.Context, addr net.Addr, msg []byte) {
	now := clock.FromContext(ctx).Now()

	p := ParsePacket(msg)
	if mr.dumpMessages {
		for _, record := range p.Records {
			mr.logger.Info(record)
		}
	}
	if mr.keyCounter != nil {
		mr.keyCounter.Observe(p.Keys)
	}

	conflicts := mr.store.Apply(now, p)

	if len(p.BadBits) > 0 {
		for _, bad := range p.BadBits {
			if !mr.limiter.Allow() {
				continue
			}
			mr.logger.WithField("remote", addrString(addr)).Warnf("Bad line: %s in msg %q; %s", bad.Bit, bad.Record, bad.Reason)
		}
	}
	if len(conflicts) > 0 {
		for _, c := range conflicts {
			if !mr.limiter.Allow() {
				continue
			}
			mr.logger.WithFields(logrus.Fields{
				"remote": addrString(addr),
				"key":    c.Key,
			}).Warnf("Rejected %s sample for key that is a %s", c.Got, c.Family)
		}
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
