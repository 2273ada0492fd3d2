// Package httpapi serves the diagnostic surfaces: the event dump, the
// status flags, the live and full log, the link snapshot and metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/eventlog"
	"github.com/tamzrod/ncm-linkd/internal/link"
	"github.com/tamzrod/ncm-linkd/internal/logstream"
)

const (
	DefaultAddress        = "127.0.0.1:8080"
	DefaultSSEPoll        = 50 * time.Millisecond
	DefaultKeepalivePolls = 100

	// Output bounds for the plain-text dumps.
	EventsLimit  = 4096
	LogDumpLimit = 32768
)

// LinkSource is the read side of the link controller.
type LinkSource interface {
	Snapshot() link.Snapshot
}

// Options configures the server. Zero fields take defaults.
type Options struct {
	Addr              string
	SSEPoll           time.Duration
	KeepalivePolls    int
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer

	Clock clock.Clock
	Log   *zap.Logger
}

// Server hosts the diagnostic HTTP API.
type Server struct {
	http    *http.Server
	mux     *http.ServeMux
	handler http.Handler
	events  *eventlog.Log
	logs    *logstream.Stream
	link    LinkSource
	opts    Options
	clock   clock.Clock
	start   time.Time
	log     *zap.Logger
}

// New builds the server. It does not listen until Start.
func New(events *eventlog.Log, logs *logstream.Stream, ls LinkSource, opts Options) *Server {
	if events == nil || logs == nil || ls == nil {
		panic("httpapi.New: nil dependency")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.SSEPoll <= 0 {
		opts.SSEPoll = DefaultSSEPoll
	}
	if opts.KeepalivePolls <= 0 {
		opts.KeepalivePolls = DefaultKeepalivePolls
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:    mux,
		events: events,
		logs:   logs,
		link:   ls,
		opts:   opts,
		clock:  opts.Clock,
		start:  opts.Clock.Now(),
		log:    opts.Log,
	}
	s.handler = withRequestLog(mux, opts.Log, opts.Clock.Now)

	// No WriteTimeout: /logs responses live as long as the client.
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		IdleTimeout:       opts.IdleTimeout,
		ErrorLog:          zap.NewStdLog(opts.Log),
	}

	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/logs_all", s.handleLogsAll)
	mux.HandleFunc("/link", s.handleLink)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler exposes the route table behind the request log.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener and serves in the background. A bind failure
// is returned rather than logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the server, waiting up to ShutdownTimeout.
// Open log streams end when their request contexts are cancelled.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return s.http.Close()
	}
	return nil
}
