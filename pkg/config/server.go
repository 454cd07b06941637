package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDServer is the identifier for the server section
	SectionIDServer = "server"

	DefaultHost           = "127.0.0.1"
	DefaultPort           = 9222
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxConnections = 4
	DefaultWriteTimeout   = 10 * time.Second
)

// ServerSection configures the executor listener and call deadlines.
type ServerSection struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxConnections int
	MetricsEnabled bool
	WriteTimeout   time.Duration
	mu             sync.RWMutex
}

// NewServerSection creates a server section with default settings.
func NewServerSection() *ServerSection {
	s := &ServerSection{}
	s.Reset()
	return s
}

func (s *ServerSection) ID() string    { return SectionIDServer }
func (s *ServerSection) Title() string { return "Server" }

func (s *ServerSection) Description() string {
	return "Where the executor connects and how long tool calls may wait for a reply. Durations accept Go syntax (\"30s\") or milliseconds."
}

func (s *ServerSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"host":            s.Host,
		"port":            s.Port,
		"request_timeout": s.RequestTimeout.String(),
		"max_connections": s.MaxConnections,
		"metrics_enabled": s.MetricsEnabled,
		"write_timeout":   s.WriteTimeout.String(),
	}
}

func (s *ServerSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["host"]; ok {
		host, isString := v.(string)
		if !isString {
			return fmt.Errorf("host: expected string, got %T", v)
		}
		s.Host = host
	}
	if v, ok := data["port"]; ok {
		port, err := asInt("port", v)
		if err != nil {
			return err
		}
		s.Port = port
	}
	if v, ok := data["request_timeout"]; ok {
		d, err := asDuration("request_timeout", v)
		if err != nil {
			return err
		}
		s.RequestTimeout = d
	}
	if v, ok := data["max_connections"]; ok {
		n, err := asInt("max_connections", v)
		if err != nil {
			return err
		}
		s.MaxConnections = n
	}
	if v, ok := data["metrics_enabled"]; ok {
		b, err := asBool("metrics_enabled", v)
		if err != nil {
			return err
		}
		s.MetricsEnabled = b
	}
	if v, ok := data["write_timeout"]; ok {
		d, err := asDuration("write_timeout", v)
		if err != nil {
			return err
		}
		s.WriteTimeout = d
	}
	return nil
}

func (s *ServerSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	return nil
}

func (s *ServerSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Host = DefaultHost
	s.Port = DefaultPort
	s.RequestTimeout = DefaultRequestTimeout
	s.MaxConnections = DefaultMaxConnections
	s.MetricsEnabled = true
	s.WriteTimeout = DefaultWriteTimeout
}

// Snapshot returns a copy of the current values.
func (s *ServerSection) Snapshot() ServerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ServerSettings{
		Host:           s.Host,
		Port:           s.Port,
		RequestTimeout: s.RequestTimeout,
		MaxConnections: s.MaxConnections,
		MetricsEnabled: s.MetricsEnabled,
		WriteTimeout:   s.WriteTimeout,
	}
}

// ServerSettings is an immutable copy of ServerSection.
type ServerSettings struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxConnections int
	MetricsEnabled bool
	WriteTimeout   time.Duration
}
