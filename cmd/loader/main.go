package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	opts := parseArgs(os.Args[1:])

	pendingWorkers := make(chan struct{}, opts.Workers)
	metricGenerators := make([]*metricGenerator, 0, opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		generator := newMetricGenerator(opts, rand.Int63())
		metricGenerators = append(metricGenerators, generator)
		go sendMetricsWorker(
			opts.Target,
			opts.DatagramSize,
			rate.NewLimiter(rate.Limit(float64(opts.Rate)/float64(opts.Workers)), 1),
			generator,
			pendingWorkers,
		)
	}

	runningWorkers := opts.Workers
	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for runningWorkers > 0 {
		select {
		case <-pendingWorkers:
			runningWorkers--
		case <-statusTicker.C:
			var counters, gauges, sets, timers uint64
			for _, mg := range metricGenerators {
				counters += atomic.LoadUint64(&mg.counters.count)
				gauges += atomic.LoadUint64(&mg.gauges.count)
				sets += atomic.LoadUint64(&mg.sets.count)
				timers += atomic.LoadUint64(&mg.timers.count)
			}
			fmt.Printf("%d counters, %d gauges, %d sets, %d timers left\n", counters, gauges, sets, timers)
		}
	}
}

// sendMetricsWorker fills datagrams up to bufSize and sends them no faster than limiter allows.
func sendMetricsWorker(
	address string,
	bufSize uint,
	limiter *rate.Limiter,
	generator *metricGenerator,
	chDone chan<- struct{},
) {
	s, err := net.DialTimeout("udp", address, 1*time.Second)
	if err != nil {
		panic(err)
	}
	defer s.Close()

	b := &bytes.Buffer{}
	sb := &strings.Builder{}
	for generator.next(sb) {
		if uint(b.Len()+sb.Len()) > bufSize && b.Len() > 0 {
			_ = limiter.Wait(context.Background())
			if _, err := s.Write(b.Bytes()); err != nil {
				fmt.Printf("Pausing for 1 second, error sending packet: %v\n", err)
				time.Sleep(1 * time.Second)
			}
			b.Reset()
		}
		b.WriteString(sb.String())
		sb.Reset()
	}

	if b.Len() > 0 {
		if _, err := s.Write(b.Bytes()); err != nil {
			panic(err)
		}
	}
	chDone <- struct{}{}
}
