/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ramp-quote-go/internal/aggregator"
	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"go.uber.org/zap"
)

var (
	ErrQuoteNotFound = errors.New("quote not found")
	ErrQuoteExpired  = errors.New("quote has expired")
	ErrFlowNotFound  = errors.New("approval flow not found")
)

const defaultSweepInterval = 30 * time.Second

// EventLog is the read side of the flow-event audit log.
type EventLog interface {
	GetFlowEvents(ctx context.Context, flowId string) ([]models.FlowEvent, error)
}

// HealthChecker is implemented by backing stores that can be probed.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RampServiceConfig contains configuration for RampService
type RampServiceConfig struct {
	Aggregator   *aggregator.Aggregator
	Orchestrator *approval.Orchestrator
	Events       EventLog
	Health       HealthChecker

	SweepInterval  time.Duration
	WarmupInterval time.Duration
	Now            func() time.Time
}

// RampService is the engine surface: it keeps fetched quotes by id so they
// can be approved or closed later, and routes inbound deeplinks.
type RampService struct {
	agg    *aggregator.Aggregator
	orch   *approval.Orchestrator
	events EventLog
	health HealthChecker
	now    func() time.Time

	sweepInterval  time.Duration
	warmupInterval time.Duration

	mutex  sync.RWMutex
	quotes map[string]*providers.Quote

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewRampService(cfg RampServiceConfig) (*RampService, error) {
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RampService{
		agg:            cfg.Aggregator,
		orch:           cfg.Orchestrator,
		events:         cfg.Events,
		health:         cfg.Health,
		now:            cfg.Now,
		sweepInterval:  cfg.SweepInterval,
		warmupInterval: cfg.WarmupInterval,
		quotes:         make(map[string]*providers.Quote),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}, nil
}

func (s *RampService) HealthCheck(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	if err := s.health.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Providers lists the configured providers in registration order.
func (s *RampService) Providers() []providers.Info {
	return s.agg.Providers()
}

// Start launches the quote sweep and, when an interval is set, the support
// warmup loop. Provider support data is warmed once before the first tick.
func (s *RampService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mutex.Lock()
		s.started = true
		s.mutex.Unlock()

		zap.L().Info("Starting ramp service",
			zap.Duration("sweep_interval", s.sweepInterval),
			zap.Duration("warmup_interval", s.warmupInterval),
			zap.Int("providers", len(s.agg.Providers())))
		go s.runLoop(ctx)
	})
}

// Stop ends the background loops, closes every quote in the book and cancels
// live approval flows. Safe to call more than once.
func (s *RampService) Stop() {
	s.stopOnce.Do(func() {
		zap.L().Info("Stopping ramp service")
		close(s.stopChan)

		s.mutex.Lock()
		started := s.started
		quotes := s.quotes
		s.quotes = make(map[string]*providers.Quote)
		s.mutex.Unlock()

		if started {
			<-s.doneChan
		}
		for _, q := range quotes {
			q.Close()
		}
		s.orch.Close()
		zap.L().Info("Ramp service stopped", zap.Int("closed_quotes", len(quotes)))
	})
}

func (s *RampService) runLoop(ctx context.Context) {
	defer close(s.doneChan)

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	var warmup <-chan time.Time
	if s.warmupInterval > 0 {
		ticker := time.NewTicker(s.warmupInterval)
		defer ticker.Stop()
		warmup = ticker.C
		s.warm(ctx)
	}

	for {
		select {
		case <-sweep.C:
			s.Sweep()
		case <-warmup:
			s.warm(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *RampService) warm(ctx context.Context) {
	if err := s.agg.Warm(ctx); err != nil {
		zap.L().Warn("Support warmup incomplete", zap.Error(err))
	}
}
