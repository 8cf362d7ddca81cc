package payment

import (
	"math/rand"
	"sync"
	"time"
)

// Simulation decides settlement latency and outcome in place of an acquirer.
type Simulation interface {
	PaymentDelay() time.Duration
	RefundDelay() time.Duration
	Succeeds(method string) bool
}

type SimulatorConfig struct {
	TestMode bool
	// TestDelay replaces the random latency in test mode.
	TestDelay time.Duration
	// TestSuccess forces the payment outcome in test mode.
	TestSuccess bool
}

// Simulator draws random latency and outcomes, or fixed ones in test mode.
type Simulator struct {
	cfg SimulatorConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ Simulation = (*Simulator)(nil)

func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSource replaces the random source used for latency and outcomes.
func (s *Simulator) WithSource(src rand.Source) *Simulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = rand.New(src)
	return s
}

// PaymentDelay is uniform in [5s, 10s) outside test mode.
func (s *Simulator) PaymentDelay() time.Duration {
	if s.cfg.TestMode {
		return s.cfg.TestDelay
	}
	return s.between(5000, 10000)
}

// RefundDelay is uniform in [3s, 5s) outside test mode.
func (s *Simulator) RefundDelay() time.Duration {
	if s.cfg.TestMode {
		return s.cfg.TestDelay
	}
	return s.between(3000, 5000)
}

// Succeeds approves upi with probability 0.90 and other methods with 0.95.
func (s *Simulator) Succeeds(method string) bool {
	if s.cfg.TestMode {
		return s.cfg.TestSuccess
	}
	p := 0.95
	if method == MethodUPI {
		p = 0.90
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < p
}

func (s *Simulator) between(minMS, maxMS int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(minMS+s.rnd.Intn(maxMS-minMS)) * time.Millisecond
}
