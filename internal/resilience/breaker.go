// Package resilience provides retry and circuit breaking for provider calls.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned for calls skipped because their provider
// failed too many times in a row.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a provider's circuit opens.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables breaking.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before letting one
	// probe through. Further calls are rejected while the probe runs.
	Cooldown time.Duration
}

// Breakers tracks consecutive failures per provider.
type Breakers struct {
	cfg BreakerConfig
	now func() time.Time

	mu    sync.Mutex
	state map[string]*breaker
}

type breaker struct {
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreakers creates a per-provider breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breakers{cfg: cfg, now: time.Now, state: make(map[string]*breaker)}
}

// Allow returns ErrCircuitOpen when provider's circuit is open.
func (b *Breakers) Allow(provider string) error {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[provider]
	if !ok || s.failures < b.cfg.FailureThreshold {
		return nil
	}
	if !s.probing && b.now().Sub(s.openedAt) >= b.cfg.Cooldown {
		// Half-open: a single probe until it is recorded.
		s.probing = true
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "provider %s", provider)
}

// Record updates provider's failure count with the outcome of a call.
func (b *Breakers) Record(provider string, err error) {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[provider]
	if !ok {
		s = &breaker{}
		b.state[provider] = s
	}
	s.probing = false
	if err == nil {
		s.failures = 0
		return
	}
	s.failures++
	if s.failures >= b.cfg.FailureThreshold {
		s.openedAt = b.now()
	}
}

// Open lists providers whose circuits are currently open.
func (b *Breakers) Open() []string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name, s := range b.state {
		if b.cfg.FailureThreshold > 0 && s.failures >= b.cfg.FailureThreshold && b.now().Sub(s.openedAt) < b.cfg.Cooldown {
			out = append(out, name)
		}
	}
	return out
}
