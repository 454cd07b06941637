package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/browsermcp/pkg/backoff"
)

// SectionIDPortReclaim is the identifier for the port reclaim section
const SectionIDPortReclaim = "port_reclaim"

// PortReclaimSection controls how a stale listener on the executor port is
// evicted at startup.
type PortReclaimSection struct {
	KillExisting bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	mu           sync.RWMutex
}

// NewPortReclaimSection creates a port reclaim section with default settings.
func NewPortReclaimSection() *PortReclaimSection {
	s := &PortReclaimSection{}
	s.Reset()
	return s
}

func (s *PortReclaimSection) ID() string    { return SectionIDPortReclaim }
func (s *PortReclaimSection) Title() string { return "Port Reclaim" }

func (s *PortReclaimSection) Description() string {
	return "Kill whatever holds the executor port at startup, then poll with backoff until it is free or max_attempts is reached."
}

func (s *PortReclaimSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"kill_existing": s.KillExisting,
		"max_attempts":  s.MaxAttempts,
		"initial_delay": s.InitialDelay.String(),
		"max_delay":     s.MaxDelay.String(),
		"multiplier":    s.Multiplier,
	}
}

func (s *PortReclaimSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if v, ok := data["kill_existing"]; ok {
		if s.KillExisting, err = asBool("kill_existing", v); err != nil {
			return err
		}
	}
	if v, ok := data["max_attempts"]; ok {
		if s.MaxAttempts, err = asInt("max_attempts", v); err != nil {
			return err
		}
	}
	if v, ok := data["initial_delay"]; ok {
		if s.InitialDelay, err = asDuration("initial_delay", v); err != nil {
			return err
		}
	}
	if v, ok := data["max_delay"]; ok {
		if s.MaxDelay, err = asDuration("max_delay", v); err != nil {
			return err
		}
	}
	if v, ok := data["multiplier"]; ok {
		if s.Multiplier, err = asFloat("multiplier", v); err != nil {
			return err
		}
	}
	return nil
}

func (s *PortReclaimSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if s.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be positive")
	}
	if s.MaxDelay < s.InitialDelay {
		return fmt.Errorf("max_delay must not be shorter than initial_delay")
	}
	if s.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	return nil
}

func (s *PortReclaimSection) Reset() {
	def := backoff.DefaultConfig()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.KillExisting = true
	s.MaxAttempts = 20
	s.InitialDelay = def.InitialDelay
	s.MaxDelay = def.MaxDelay
	s.Multiplier = def.Multiplier
}

// Backoff returns the polling schedule as a backoff configuration.
func (s *PortReclaimSection) Backoff() backoff.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return backoff.Config{
		InitialDelay: s.InitialDelay,
		Multiplier:   s.Multiplier,
		MaxDelay:     s.MaxDelay,
	}
}

// Settings returns kill_existing and max_attempts.
func (s *PortReclaimSection) Settings() (killExisting bool, maxAttempts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.KillExisting, s.MaxAttempts
}
