package server

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

// Job is one accepted connection waiting to be served.
type Job interface {
	// Process runs the full request pipeline and writes the response.
	Process() error
	// CloseBeforeProcess rejects the connection without running the pipeline.
	CloseBeforeProcess() error
}

// Strategy decides where and when each accepted Job runs. Dispatch is called
// from the accept loop; it blocks the loop for as long as the strategy
// wants to delay the next accept.
type Strategy interface {
	Name() string
	Dispatch(job Job)
	// Wait blocks until every dispatched job has finished.
	Wait()
}

// NewStrategy builds the strategy for a configured mode. Unrecognised modes
// run as Single.
func NewStrategy(mode config.Mode, maxThreads int) Strategy {
	switch config.NormaliseMode(mode) {
	case config.ModeThread:
		return &PerConnection{}
	case config.ModeThreadPool:
		return NewPool(maxThreads)
	default:
		return Single{}
	}
}

// Single serves each connection on the accept goroutine. While one request
// is in progress further connections wait in the OS accept backlog.
type Single struct{}

func (Single) Name() string { return "Single Process" }

func (Single) Dispatch(job Job) { runJob(job) }

func (Single) Wait() {}

// PerConnection serves every connection on its own goroutine, without bound.
type PerConnection struct {
	wg sync.WaitGroup
}

func (p *PerConnection) Name() string { return "Thread" }

func (p *PerConnection) Dispatch(job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		runJob(job)
	}()
}

func (p *PerConnection) Wait() { p.wg.Wait() }

// Pool serves connections on at most Limit goroutines. A connection arriving
// while every slot is busy is rejected immediately with 429 rather than queued.
type Pool struct {
	limit int
	group errgroup.Group
}

// NewPool creates a pool of maxThreads slots. A value that cannot be honoured
// falls back to GOMAXPROCS.
func NewPool(maxThreads int) *Pool {
	if maxThreads < 1 {
		fallback := runtime.GOMAXPROCS(0)
		logger.Warnf("MaxThreads %d in config is too low, using system default %d", maxThreads, fallback)
		maxThreads = fallback
	}
	logger.Infof("max threads = %d", maxThreads)

	p := &Pool{limit: maxThreads}
	p.group.SetLimit(maxThreads)
	return p
}

func (p *Pool) Name() string { return "ThreadPool" }

// Limit returns the number of concurrent slots.
func (p *Pool) Limit() int { return p.limit }

// Dispatch admits the job if a slot is free at this moment, otherwise it
// sends the rejection on the accept goroutine and drops the job.
func (p *Pool) Dispatch(job Job) {
	admitted := p.group.TryGo(func() error {
		runJob(job)
		return nil
	})
	if !admitted {
		rejectJob(job)
	}
}

func (p *Pool) Wait() { _ = p.group.Wait() }

// runJob is the per-connection failure boundary: nothing a single connection
// does may stop the accept loop.
func runJob(job Job) {
	defer recoverJob()
	if err := job.Process(); err != nil {
		logger.Warnf("connection closed before response: %v", err)
	}
}

func rejectJob(job Job) {
	defer recoverJob()
	if err := job.CloseBeforeProcess(); err != nil {
		logger.Warnf("failed to reject connection: %v", err)
	}
}

func recoverJob() {
	if r := recover(); r != nil {
		logger.Errorf("recovered from panic while serving connection: %v", r)
	}
}
