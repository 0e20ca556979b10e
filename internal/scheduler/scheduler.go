// Package scheduler runs background maintenance. Calendar pushes always need
// a user-held token, so there is no periodic sync here; the scheduler only
// keeps the sync run history within its retention window.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/victorlcs87/gsv-sync/internal/store"
)

const (
	defaultCleanupInterval = 24 * time.Hour
	defaultRetentionDays   = 30
)

// Scheduler manages background maintenance jobs.
type Scheduler struct {
	db *store.DB

	cleanupInterval time.Duration
	retentionDays   int

	mu      sync.Mutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCleanupInterval sets how often the cleanup pass runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithRetentionDays sets how long sync runs are kept.
func WithRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// New creates a new scheduler.
func New(database *store.DB, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		db:              database,
		cleanupInterval: defaultCleanupInterval,
		retentionDays:   defaultRetentionDays,
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the maintenance goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.cleanupRoutine()

	log.Printf("Scheduler started (cleanup every %v, retention %d days)",
		s.cleanupInterval, s.retentionDays)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// cleanupRoutine runs periodic cleanup of old sync runs.
func (s *Scheduler) cleanupRoutine() {
	defer s.wg.Done()

	// Run once at startup so a long-stopped instance catches up immediately.
	s.cleanupOldRuns()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldRuns()
		}
	}
}

// cleanupOldRuns deletes sync runs older than the retention period.
func (s *Scheduler) cleanupOldRuns() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.db.CleanOldSyncRuns(cutoff)
	if err != nil {
		log.Printf("Failed to clean old sync runs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleaned %d old sync runs", deleted)
	}
}
