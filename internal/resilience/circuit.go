// Package resilience provides retry and circuit breaker patterns for the
// calls that leave the process: source downloads and forecast providers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the position of a breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var stateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned when a call is rejected without being made.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when a breaker opens and how it recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the run of consecutive tripping errors that opens
	// the breaker.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before it lets a
	// single probe through.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count. Nil counts every error.
	ShouldTrip func(err error) bool

	// OnStateChange is called with the breaker's lock held.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// ProviderBreakerConfig is DefaultCircuitBreakerConfig with the non-zero
// arguments applied. A nil trip counts every error.
func ProviderBreakerConfig(failureThreshold int, reset time.Duration, trip func(error) bool) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if reset > 0 {
		cfg.ResetTimeout = reset
	}
	cfg.ShouldTrip = trip
	return cfg
}

// CircuitBreaker guards one dependency. While half-open exactly one probe
// is in flight; concurrent callers are rejected until it settles.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed breaker. Zero config fields take the
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal runs fn unless the breaker is open and records the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := cb.acquire()
	if err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.settle(probe, err)
	return val, err
}

// State reports the breaker position. An open breaker whose reset timeout
// has passed reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.cooled() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.moveTo(CircuitClosed)
}

func (cb *CircuitBreaker) cooled() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// acquire admits a call. probe is true when the call is the half-open probe.
func (cb *CircuitBreaker) acquire() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitOpen:
		if !cb.cooled() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(CircuitHalfOpen)
	}
	if cb.probing {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if probe {
			cb.moveTo(CircuitClosed)
		}
		return
	}

	cb.failures++
	if probe || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		cb.moveTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) moveTo(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ProviderBreakers keeps one breaker per forecast provider.
type ProviderBreakers struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewProviderBreakers creates an empty registry. Every breaker it hands
// out shares cfg and logs its transitions.
func NewProviderBreakers(cfg CircuitBreakerConfig) *ProviderBreakers {
	return &ProviderBreakers{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for provider, creating it on first use.
func (pb *ProviderBreakers) Get(provider string) *CircuitBreaker {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if cb, ok := pb.breakers[provider]; ok {
		return cb
	}

	cfg := pb.cfg
	user := cfg.OnStateChange
	cfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("resilience: circuit state change",
			zap.String("provider", provider),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if user != nil {
			user(from, to)
		}
	}
	cb := NewCircuitBreaker(cfg)
	pb.breakers[provider] = cb
	return cb
}

// States snapshots every provider's position for health reporting.
func (pb *ProviderBreakers) States() map[string]string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	states := make(map[string]string, len(pb.breakers))
	for name, cb := range pb.breakers {
		states[name] = cb.State().String()
	}
	return states
}
