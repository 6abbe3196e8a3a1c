// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package monitor periodically samples bridge status and pushes it to
// connected observers.
package monitor

import (
	"context"
	"sync"
	"time"

	"grimm.is/tcbridge/internal/bridge"
	"grimm.is/tcbridge/internal/logging"
)

// EventBridgeStatus is the event type carrying a bridge snapshot.
const EventBridgeStatus = "bridge_status_update"

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval         = 2 * time.Second
	DefaultIterationTimeout = 10 * time.Second
)

// Event is one push message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusEvent wraps a snapshot for pushing.
func StatusEvent(s bridge.Snapshot) Event {
	return Event{Type: EventBridgeStatus, Data: s}
}

// Broadcaster delivers an event to every observer. Implementations must not
// block on a slow observer.
type Broadcaster interface {
	Broadcast(ev Event)
}

// StatusSource is the part of the bridge manager the loop needs.
type StatusSource interface {
	Active() bool
	Status(ctx context.Context) bridge.Snapshot
}

// Options configures a Service.
type Options struct {
	Interval         time.Duration
	IterationTimeout time.Duration
	Logger           *logging.Logger
}

// Service runs the status push loop.
type Service struct {
	source   StatusSource
	sink     Broadcaster
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new monitoring service.
func NewService(source StatusSource, sink Broadcaster, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.IterationTimeout <= 0 {
		opts.IterationTimeout = DefaultIterationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("monitor")
	}
	return &Service{
		source:   source,
		sink:     sink,
		interval: opts.Interval,
		timeout:  opts.IterationTimeout,
		logger:   opts.Logger,
	}
}

// Start runs the loop in the background until Stop is called or ctx ends.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop cancels the loop started by Start and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Run blocks, sampling every interval, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("Starting status monitor", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Status monitor stopped")
			return
		}
	}
}

// Tick performs one iteration: when the bridge is active, sample its status
// under the iteration timeout and broadcast it. It reports whether an
// event was sent.
func (s *Service) Tick(ctx context.Context) bool {
	if !s.source.Active() {
		return false
	}

	iterCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap := s.source.Status(iterCtx)
	if snap.Status == bridge.StatusError {
		s.logger.Warn("bridge status probe failed", "error", snap.Error)
	}

	s.sink.Broadcast(StatusEvent(snap))
	return true
}
