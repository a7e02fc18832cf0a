package statsd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/net/netutil"
)

const (
	consoleHelp = "Commands: stats, counters, timers, gauges, sets, delcounters, deltimers, delgauges, delsets, quit\n\n"
	consoleEnd  = "END\n\n"
	consoleErr  = "ERROR\n"

	// maxConsoleLine bounds a single console request.
	maxConsoleLine = 64 * 1024
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConsoleServer serves the line based management console over a stream listener.
// Every connection is an independent session reading and mutating the Store.
type ConsoleServer struct {
	maxConns int
	startup  time.Time
	store    *Store
	hub      *Hub
	logger   logrus.FieldLogger
}

// NewConsoleServer creates a ConsoleServer. maxConns <= 0 means unlimited sessions.
func NewConsoleServer(startup time.Time, maxConns int, store *Store, hub *Hub, logger logrus.FieldLogger) *ConsoleServer {
	return &ConsoleServer{
		maxConns: maxConns,
		startup:  startup,
		store:    store,
		hub:      hub,
		logger:   logger,
	}
}

// Serve accepts sessions on l until ctx is done. l is closed on return, as are open sessions.
func (cs *ConsoleServer) Serve(ctx context.Context, l net.Listener) error {
	if cs.maxConns > 0 {
		l = netutil.LimitListener(l, cs.maxConns)
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		if err := l.Close(); err != nil {
			cs.logger.Debugf("Error closing console listener: %v", err)
		}
	}()

	for {
		c, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				cs.logger.Warnf("Error accepting console connection: %v", err)
				continue
			}
			return fmt.Errorf("non-temporary error accepting console connection: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cs.serveConn(ctx, c)
		}()
	}
}

// serveConn runs one session until the client quits or disconnects, or ctx is done.
func (cs *ConsoleServer) serveConn(ctx context.Context, c net.Conn) {
	logger := cs.logger.WithField("remote", c.RemoteAddr().String())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		if err := c.Close(); err != nil && ctx.Err() == nil {
			logger.Debugf("Error closing console connection: %v", err)
		}
	}()

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 4096), maxConsoleLine)
	w := bufio.NewWriter(c)
	for scanner.Scan() {
		quit := cs.Handle(ctx, scanner.Text(), w)
		if err := w.Flush(); err != nil {
			logger.Debugf("Error writing to console connection: %v", err)
			return
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Debugf("Error reading from console connection: %v", err)
	}
}

// Handle executes a single console request and writes the response to w.
// It returns true when the session should end.
func (cs *ConsoleServer) Handle(ctx context.Context, line string, w io.Writer) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		_, _ = io.WriteString(w, consoleErr)
		return false
	}
	cmd, keys := args[0], args[1:]
	switch cmd {
	case "help":
		_, _ = io.WriteString(w, consoleHelp)
	case "stats":
		cs.writeStats(ctx, w)
	case "counters":
		cs.writeDump(w, cs.store.Counters())
	case "timers":
		cs.writeDump(w, cs.store.Timers())
	case "gauges":
		cs.writeDump(w, cs.store.Gauges())
	case "sets":
		sets := cs.store.Sets()
		dump := make(map[string][]string, len(sets))
		for key, set := range sets {
			dump[key] = set.Values()
		}
		cs.writeDump(w, dump)
	case "delcounters":
		cs.store.DeleteCounters(keys...)
		writeDeleted(w, keys)
	case "deltimers":
		cs.store.DeleteTimers(keys...)
		writeDeleted(w, keys)
	case "delgauges":
		cs.store.DeleteGauges(keys...)
		writeDeleted(w, keys)
	case "delsets":
		cs.store.DeleteSets(keys...)
		writeDeleted(w, keys)
	case "quit":
		return true
	default:
		_, _ = io.WriteString(w, consoleErr)
	}
	return false
}

func (cs *ConsoleServer) writeStats(ctx context.Context, w io.Writer) {
	now := clock.FromContext(ctx).Now().Round(time.Second).Unix()
	_, _ = fmt.Fprintf(w, "uptime: %d\n", now-unixSeconds(cs.startup))

	statWriter := func(group, metric string, value float64) {
		if strings.HasPrefix(metric, "last_") {
			value = float64(now) - value
		}
		_, _ = fmt.Fprintf(w, "%s.%s: %s\n", group, metric, strconv.FormatFloat(value, 'f', -1, 64))
	}

	ms := cs.store.MessageStats()
	statWriter("messages", "last_msg_seen", float64(ms.LastMsgSeen))
	statWriter("messages", "bad_lines_seen", float64(ms.BadLinesSeen))
	statWriter("messages", "family_conflicts", float64(ms.FamilyConflicts))

	cs.hub.EmitStatus(ctx, statWriter)
	_, _ = io.WriteString(w, consoleEnd)
}

func (cs *ConsoleServer) writeDump(w io.Writer, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		cs.logger.WithError(err).Error("Failed to encode console dump")
		_, _ = io.WriteString(w, consoleErr)
		return
	}
	_, _ = w.Write(data)
	_, _ = io.WriteString(w, "\n"+consoleEnd)
}

func writeDeleted(w io.Writer, keys []string) {
	for _, key := range keys {
		_, _ = fmt.Fprintf(w, "deleted: %s\n", key)
	}
	_, _ = io.WriteString(w, consoleEnd)
}
