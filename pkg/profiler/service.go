// Package profiler exposes the metrics collected while talking to the
// device and dumps them to the datadir when stopped.
package profiler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	minPort = 1024
	maxPort = 49151

	gigabyte = 1 << 30

	dumpFileTimeFormat = "20060102T150405"
)

// Service opts holds configuration options for the profiler service.
type ServiceOpts struct {
	// Port of the http server exposing /metrics and /debug/pprof, disabled
	// if zero.
	Port          int
	StatsInterval time.Duration
	Datadir       string
	// Gatherer defaults to the prometheus default gatherer.
	Gatherer prometheus.Gatherer
}

func (o ServiceOpts) validate() error {
	if len(o.Datadir) == 0 {
		return fmt.Errorf("missing profiler datadir")
	}
	if o.Port != 0 && (o.Port < minPort || o.Port > maxPort) {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	if o.StatsInterval < 0 {
		return fmt.Errorf("stats interval must not be negative")
	}
	return nil
}

func (o ServiceOpts) address() string {
	return fmt.Sprintf(":%d", o.Port)
}

// ProfilerService is the data structure representing a profiler webserver.
type ProfilerService struct {
	opts   ServiceOpts
	server *http.Server
	stopFn context.CancelFunc
	done   chan struct{}

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewService returns a new Profiler instance.
func NewService(opts ServiceOpts) (*ProfilerService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	var server *http.Server
	if opts.Port != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		server = &http.Server{Addr: opts.address(), Handler: mux}
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &ProfilerService{
		opts:   opts,
		server: server,
		log:    logFn,
		warn:   warnFn,
	}, nil
}

// Start starts the profiler.
func (s *ProfilerService) Start() error {
	if err := os.MkdirAll(s.opts.Datadir, os.ModeDir|0755); err != nil {
		return err
	}

	if s.server != nil {
		runtime.SetBlockProfileRate(1)
		go func() {
			if err := s.server.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				s.warn(err, "server stopped")
			}
		}()
		s.log("start at url http://localhost:%d/metrics", s.opts.Port)
	}

	ctx, cancelStats := context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.enableMemoryStatistics(ctx, s.opts.StatsInterval, s.opts.Datadir)
	s.stopFn = cancelStats
	return nil
}

// Stop stops the profiler and waits for the metrics to be dumped.
func (s *ProfilerService) Stop() {
	if s.stopFn == nil {
		return
	}
	s.stopFn()
	<-s.done
	if s.server != nil {
		// nolint
		s.server.Shutdown(context.Background())
	}
	s.log("stop")
}

// enableMemoryStatistics starts a goroutine that periodically logs memory
// usage of the go process and dumps the gathered metrics once ctx is done.
func (s *ProfilerService) enableMemoryStatistics(
	ctx context.Context,
	interval time.Duration,
	path string,
) {
	go func() {
		defer close(s.done)

		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				s.printMemoryStatistics()
				s.printNumOfRoutines()
			case <-ctx.Done():
				if err := s.dumpPrometheusMetrics(path); err != nil {
					s.warn(err, "error while dumping Prometheus metrics")
				}
				return
			}
		}
	}()
}

// printMemoryStatistics logs memory statistics to stdout.
func (s *ProfilerService) printMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.log(
		"total allocated: %.3fGB, heap allocated: %.3fGB, "+
			"allocated objects count: %v, freed objects count: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

func (s *ProfilerService) printNumOfRoutines() {
	s.log("num of go routines: %v", runtime.NumGoroutine())
}

// dumpPrometheusMetrics writes the gathered metrics to a new file of the
// given directory, named after the current time.
func (s *ProfilerService) dumpPrometheusMetrics(path string) error {
	metricFamilies, err := s.opts.Gatherer.Gather()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(
		filepath.Join(path, time.Now().Format(dumpFileTimeFormat)),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	for _, v := range metricFamilies {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / gigabyte
}
