// Package session keeps one grid per page visit, replacing page-level globals
// with an explicit context that handlers look up by id.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gnemet/tablegrid"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCapacity = errors.New("session pool capacity reached")
)

// Session is the state of one page visit.
type Session struct {
	ID            string
	Page          string
	Grid          *tablegrid.Grid
	Searches      *tablegrid.SearchLibrary
	ActiveSection string
	CreatedAt     time.Time
	LastUsed      time.Time
	mu            sync.Mutex
}

// Options tune a Pool.
type Options struct {
	MaxSessions     int
	IdleTimeout     time.Duration
	AbsTimeout      time.Duration
	CleanupInterval time.Duration
	// Latency delays submitted mutations to model a backend round trip.
	Latency time.Duration
	Store   tablegrid.KeyValueStore
	Logger  *slog.Logger
}

// Pool owns the live sessions and expires them.
type Pool struct {
	sessions    map[string]*Session
	mu          sync.Mutex
	opts        Options
	logger      *slog.Logger
	cleanupStop chan struct{}
	stopOnce    sync.Once
}

// NewPool creates a pool and starts its cleanup routine.
func NewPool(opts Options) *Pool {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		sessions:    make(map[string]*Session),
		opts:        opts,
		logger:      logger,
		cleanupStop: make(chan struct{}),
	}
	p.startCleanupRoutine()
	return p
}

// Close stops the cleanup routine.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.cleanupStop) })
}

func (p *Pool) startCleanupRoutine() {
	ticker := time.NewTicker(p.opts.CleanupInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				p.cleanupTimeouts(time.Now())
			case <-p.cleanupStop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (p *Pool) expired(s *Session, now time.Time) bool {
	if p.opts.AbsTimeout > 0 && now.Sub(s.CreatedAt) > p.opts.AbsTimeout {
		return true
	}
	return p.opts.IdleTimeout > 0 && now.Sub(s.LastUsed) > p.opts.IdleTimeout
}

func (p *Pool) cleanupTimeouts(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, s := range p.sessions {
		s.mu.Lock()
		if p.expired(s, now) {
			p.logger.Info("Cleaning up expired session", "session", id, "page", s.Page)
			delete(p.sessions, id)
		}
		s.mu.Unlock()
	}
}

// Open starts a session on a fresh grid for def seeded with seed.
func (p *Pool) Open(def *tablegrid.Definition, seed []tablegrid.Record) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.MaxSessions > 0 && len(p.sessions) >= p.opts.MaxSessions {
		return nil, fmt.Errorf("%w (max %d)", ErrCapacity, p.opts.MaxSessions)
	}

	g := tablegrid.New(def, tablegrid.WithLogger(p.logger))
	if seed != nil {
		g.Initialize(seed, def.Defaults.PageSize)
	}
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Page:      def.Name,
		Grid:      g,
		CreatedAt: now,
		LastUsed:  now,
	}
	if p.opts.Store != nil {
		s.Searches = tablegrid.NewSearchLibrary(p.opts.Store, def.Name)
	}
	p.sessions[s.ID] = s
	p.logger.Debug("Session opened", "session", s.ID, "page", def.Name)
	return s, nil
}

// Get returns a live session.
func (p *Pool) Get(id string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Do runs fn with exclusive access to the session.
func (p *Pool) Do(id string, fn func(*Session) error) error {
	s, err := p.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastUsed = time.Now()
	return fn(s)
}

// Submit runs fn like Do after the pool's simulated latency.
func (p *Pool) Submit(id string, fn func(*Session) error) *tablegrid.Task[struct{}] {
	return tablegrid.Go(p.opts.Latency, func() (struct{}, error) {
		return struct{}{}, p.Do(id, fn)
	})
}

// Remove ends a session.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, id)
}

// Count returns the number of live sessions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
