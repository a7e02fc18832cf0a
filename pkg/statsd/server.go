package statsd

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/pkg/ready"
)

// Server encapsulates all of the parameters necessary for starting up
// the statsd server. These can either be set via command line or directly.
type Server struct {
	Store             *Store
	Hub               *Hub
	Runnables         []statsagg.Runnable
	Startup           time.Time
	MetricsAddr       string
	ConsoleAddr       string
	FlushInterval     time.Duration
	PercentThreshold  []float64
	MaxReaders        int
	ConnPerReader     bool
	ReceiveBufferSize int
	MaxConsoleConns   int
	KeyFlushInterval  time.Duration
	KeyFlushPercent   int
	KeyFlushLog       string
	Debug             bool
	DebugInterval     time.Duration
	DumpMessages      bool
	BadLinesPerMinute int
	Logger            logrus.FieldLogger
}

// NewServer will create a new Server with the default configuration.
func NewServer(store *Store, hub *Hub, logger logrus.FieldLogger) *Server {
	return &Server{
		Store:             store,
		Hub:               hub,
		Startup:           time.Now(),
		MetricsAddr:       statsagg.DefaultMetricsAddr,
		ConsoleAddr:       statsagg.DefaultConsoleAddr,
		FlushInterval:     statsagg.DefaultFlushInterval,
		PercentThreshold:  statsagg.DefaultPercentThreshold,
		MaxReaders:        statsagg.DefaultMaxReaders,
		ConnPerReader:     statsagg.DefaultConnPerReader,
		ReceiveBufferSize: statsagg.DefaultReceiveBufferSize,
		MaxConsoleConns:   statsagg.DefaultMaxConsoleConns,
		KeyFlushInterval:  statsagg.DefaultKeyFlushInterval,
		KeyFlushPercent:   statsagg.DefaultKeyFlushPercent,
		KeyFlushLog:       statsagg.DefaultKeyFlushLog,
		Debug:             statsagg.DefaultDebug,
		DebugInterval:     statsagg.DefaultDebugInterval,
		DumpMessages:      statsagg.DefaultDumpMessages,
		BadLinesPerMinute: statsagg.DefaultBadLinesPerMinute,
		Logger:            logger,
	}
}

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// Run runs the server until context signals done.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomSocket(ctx, s.socketFactory())
}

func (s *Server) socketFactory() SocketFactory {
	if s.ConnPerReader {
		return func() (net.PacketConn, error) {
			return reuseport.ListenPacket("udp", s.MetricsAddr)
		}
	}
	return func() (net.PacketConn, error) {
		return net.ListenPacket("udp", s.MetricsAddr)
	}
}

// RunWithCustomSocket runs the server until context signals done.
// Listening socket is created using sf.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory) error {
	if s.Store == nil || s.Hub == nil {
		return errors.New("server requires a store and a hub")
	}
	if s.FlushInterval <= 0 {
		return errors.New("flush interval must be positive")
	}
	if s.MaxReaders < 1 {
		return errors.New("at least one reader is required")
	}
	if s.ReceiveBufferSize < 1 {
		return errors.New("receive buffer size must be positive")
	}

	var wg wait.Group
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Open sockets before starting anything so a bind failure is reported straight away
	conns, err := s.openSockets(sf)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range conns {
			// This makes receivers error out and stop
			if e := c.Close(); e != nil {
				s.Logger.Warnf("Error closing socket: %v", e)
			}
		}
	}()

	var consoleListener net.Listener
	if s.ConsoleAddr != "" {
		consoleListener, err = net.Listen("tcp", s.ConsoleAddr)
		if err != nil {
			return err
		}
	}

	// 1. Start the Flusher
	flusher := NewMetricFlusher(s.FlushInterval, s.PercentThreshold, s.Store, s.Hub, s.Logger)
	wg.StartWithContext(ctx, flusher.Run)

	// 2. Start the key frequency sampler and the debug dumper
	var keyCounter *KeyCounter
	if s.KeyFlushInterval > 0 {
		keyCounter = NewKeyCounter(s.KeyFlushInterval, s.KeyFlushPercent, s.KeyFlushLog, s.Logger)
		wg.StartWithContext(ctx, keyCounter.Run)
	}
	if s.Debug {
		wg.StartWithContext(ctx, NewDebugDumper(s.DebugInterval, s.Store, s.Logger).Run)
	}

	// 3. Start the Receivers
	receiver := NewMetricReceiver(s.Store, keyCounter, s.DumpMessages, s.ReceiveBufferSize, s.BadLinesPerMinute, s.Logger)
	for r := 0; r < s.MaxReaders; r++ {
		c := conns[r%len(conns)]
		wg.Start(func() {
			if err := receiver.Receive(ctx, c); err != nil {
				s.Logger.WithError(err).Error("Receiver failed")
			}
		})
	}

	// 4. Start the console
	if consoleListener != nil {
		console := NewConsoleServer(s.Startup, s.MaxConsoleConns, s.Store, s.Hub, s.Logger.WithField("component", "console"))
		wg.Start(func() {
			if err := console.Serve(ctx, consoleListener); err != nil {
				s.Logger.WithError(err).Error("Console failed")
			}
		})
	}

	// 5. Start anything else
	for _, runnable := range s.Runnables {
		wg.StartWithContext(ctx, runnable)
	}

	s.Logger.WithFields(logrus.Fields{
		"metrics-addr": s.MetricsAddr,
		"console-addr": s.ConsoleAddr,
		"backends":     s.Hub.Backends(),
	}).Info("server is up")
	ready.SignalReady(ctx)

	// 6. Listen until done
	<-ctx.Done()
	return ctx.Err()
}

// openSockets opens one socket per reader when ConnPerReader is set, otherwise a single shared one.
func (s *Server) openSockets(sf SocketFactory) ([]net.PacketConn, error) {
	n := 1
	if s.ConnPerReader {
		n = s.MaxReaders
	}
	conns := make([]net.PacketConn, 0, n)
	for i := 0; i < n; i++ {
		c, err := sf()
		if err != nil {
			for _, opened := range conns {
				_ = opened.Close()
			}
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, nil
}
