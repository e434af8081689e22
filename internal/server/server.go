package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/internal/system"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

const (
	maxPort         = 65535
	maxAcceptDelay  = time.Second
	baseAcceptDelay = 5 * time.Millisecond
)

// ErrNoFreePort is returned when every port from the configured one upwards is taken.
var ErrNoFreePort = errors.New("no free port")

// JobFactory binds an accepted connection to a Job.
type JobFactory func(conn net.Conn) Job

// Server owns the listening socket and runs the accept loop.
type Server struct {
	strategy Strategy
	newJob   JobFactory
	listen   func(ctx context.Context, network, address string) (net.Listener, error)
	grace    time.Duration

	mu       sync.Mutex
	port     int
	listener net.Listener
	active   map[net.Conn]struct{}
}

// New creates a server for cfg, using the strategy its Mode selects.
func New(cfg *config.ServerConfig, newJob JobFactory) *Server {
	s := NewWithStrategy(cfg.Port, NewStrategy(cfg.Mode, cfg.MaxThreads), newJob)
	if cfg.ShutdownGrace > 0 {
		s.grace = cfg.ShutdownGrace.Std()
	}
	return s
}

// NewWithStrategy creates a server with an explicit strategy.
func NewWithStrategy(port int, strategy Strategy, newJob JobFactory) *Server {
	lc := &net.ListenConfig{}
	return &Server{
		port:     port,
		strategy: strategy,
		newJob:   newJob,
		listen:   lc.Listen,
		grace:    config.DefaultShutdownGrace,
		active:   make(map[net.Conn]struct{}),
	}
}

// SetShutdownGrace changes how long in-flight connections may run once
// Serve's context is cancelled.
func (s *Server) SetShutdownGrace(d time.Duration) {
	s.grace = d
}

// Strategy returns the active concurrency strategy.
func (s *Server) Strategy() Strategy {
	return s.strategy
}

// Port returns the port being listened on, or the next port that will be tried.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.port
}

// Addr returns the listener address, or nil before Listen succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen binds the configured port. When the port cannot be bound the next
// one up is tried, until a bind succeeds or the port range runs out.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	for s.listener == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.port > maxPort {
			return ErrNoFreePort
		}
		ln, err := s.listen(ctx, "tcp", fmt.Sprintf(":%d", s.port))
		if err != nil {
			logger.Warnf("server started unsuccessfully at port %d: %v", s.port, err)
			s.port++
			continue
		}
		s.listener = ln
	}
	logger.Infof("server %s started at %s", system.InstanceID(), s.listener.Addr())
	return nil
}

// Serve accepts connections until ctx is cancelled, dispatching each one via
// the strategy. On cancellation in-flight connections get the shutdown grace
// period to finish; any still open after it are closed.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	served := make(chan struct{})
	defer close(served)
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-served:
		case <-timer.C:
			if n := s.closeActive(); n > 0 {
				logger.Warnf("shutdown grace period %v expired, closed %d open connections", s.grace, n)
			}
		}
	})
	defer stop()

	logger.Infof("%s mode", s.strategy.Name())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Infof("server stopped accepting on %s", ln.Addr())
				s.awaitJobs()
				return nil
			}
			delay = nextAcceptDelay(delay)
			logger.Errorf("failed to accept connection: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		logger.Debugf("client accepted: %s", conn.RemoteAddr())
		s.track(conn)
		s.strategy.Dispatch(&trackedJob{Job: s.newJob(conn), done: func() { s.untrack(conn) }})
	}
}

// awaitJobs waits for dispatched jobs. Connections are force-closed one grace
// period after cancellation, so a job that still has not returned after a
// second period is stuck outside the socket and is abandoned.
func (s *Server) awaitJobs() {
	done := make(chan struct{})
	go func() {
		s.strategy.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * s.grace):
		logger.Warnf("stopped waiting for %d connections still being served", s.activeCount())
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, conn)
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Server) closeActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.active {
		_ = conn.Close()
	}
	return len(s.active)
}

// trackedJob removes its connection from the active set once it has been served.
type trackedJob struct {
	Job
	done func()
}

func (j *trackedJob) Process() error {
	defer j.done()
	return j.Job.Process()
}

func (j *trackedJob) CloseBeforeProcess() error {
	defer j.done()
	return j.Job.CloseBeforeProcess()
}

// Close stops the listener. In-flight jobs are not interrupted.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return baseAcceptDelay
	}
	if next := prev * 2; next < maxAcceptDelay {
		return next
	}
	return maxAcceptDelay
}
