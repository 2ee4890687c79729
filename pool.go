package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
)

const (
	DefaultPoolSize   = 1
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// sessionFactory builds one model session; replaced in tests.
type sessionFactory func(cfg detections.SessionConfig) (sessionRunner, error)

// sessionRunner is the part of a model session the pool drives.
type sessionRunner interface {
	Run(input []float32) ([]float32, []int64, error)
	Destroy()
}

// ModelSessionPool hands out ONNX Runtime sessions and implements
// pipeline.Inference on top of them.
type ModelSessionPool struct {
	sessions   chan sessionRunner
	size       int
	cfg        detections.SessionConfig
	newSession sessionFactory
	log        logrus.FieldLogger

	mu         sync.Mutex
	closed     bool
	done       chan struct{}
	metrics    *PoolMetrics
	lastErrors []error
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

func NewModelSessionPool(cfg detections.SessionConfig, size int, log logrus.FieldLogger) (*ModelSessionPool, error) {
	return newPool(cfg, size, log, func(c detections.SessionConfig) (sessionRunner, error) {
		return detections.NewModelSession(c)
	})
}

func newPool(cfg detections.SessionConfig, size int, log logrus.FieldLogger, factory sessionFactory) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	pool := &ModelSessionPool{
		sessions:   make(chan sessionRunner, size),
		size:       size,
		cfg:        cfg,
		newSession: factory,
		log:        log,
		done:       make(chan struct{}),
		metrics:    &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory(cfg)
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *ModelSessionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *ModelSessionPool) Acquire(ctx context.Context) (sessionRunner, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session sessionRunner) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Infer runs one input on a pooled session. When ctx ends first the call
// returns at once and the session goes back to the pool after the run finishes.
func (p *ModelSessionPool) Infer(ctx context.Context, input pipeline.Tensor) (pipeline.Tensor, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return pipeline.Tensor{}, err
	}

	type result struct {
		out pipeline.Tensor
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer p.Release(session)
		data, dims, err := session.Run(input.Data)
		done <- result{out: pipeline.Tensor{Data: data, Shape: dims}, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return pipeline.Tensor{}, ctx.Err()
	}
}

func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *ModelSessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		p.metrics.mu.RLock()
		inUse := p.metrics.inUse
		p.metrics.mu.RUnlock()

		p.mu.Lock()
		missing := p.size - len(p.sessions) - inUse
		p.mu.Unlock()

		if missing > 0 {
			p.replenishSessions(missing)
		}
	}
}

func (p *ModelSessionPool) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := p.newSession(p.cfg)
		if err != nil {
			p.recordError(err)
			p.log.WithError(err).Warn("failed to replenish model session")
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *ModelSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// PoolStats is the JSON view of the pool.
type PoolStats struct {
	Size            int     `json:"pool_size"`
	InUse           int     `json:"sessions_in_use"`
	TotalAcquired   int64   `json:"total_acquired"`
	TotalReleased   int64   `json:"total_released"`
	AcquireFailures int64   `json:"acquire_failures"`
	WaitTimeMs      float64 `json:"wait_time_ms"`
	RecentErrors    int     `json:"recent_errors"`
}

func (p *ModelSessionPool) GetMetrics() PoolStats {
	p.metrics.mu.RLock()
	s := PoolStats{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTimeMs:      float64(p.metrics.waitTime.Microseconds()) / 1000,
	}
	p.metrics.mu.RUnlock()

	p.mu.Lock()
	s.RecentErrors = len(p.lastErrors)
	p.mu.Unlock()
	return s
}
