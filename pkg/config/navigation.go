package config

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gobwas/glob"
)

// SectionIDNavigation is the identifier for the navigation rules section
const SectionIDNavigation = "navigation"

// NavigationSection holds URL glob rules for browser_navigate. Denied
// patterns win; an empty allow list allows every URL not denied.
type NavigationSection struct {
	AllowedURLs []string
	DeniedURLs  []string
	mu          sync.RWMutex
}

// NewNavigationSection creates a navigation section that allows everything.
func NewNavigationSection() *NavigationSection {
	return &NavigationSection{}
}

func (s *NavigationSection) ID() string    { return SectionIDNavigation }
func (s *NavigationSection) Title() string { return "Navigation Rules" }

func (s *NavigationSection) Description() string {
	return "Glob patterns (e.g. \"https://*.example.com/**\") limiting which URLs browser_navigate may open."
}

func (s *NavigationSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"allowed_urls": slices.Clone(s.AllowedURLs),
		"denied_urls":  slices.Clone(s.DeniedURLs),
	}
}

func (s *NavigationSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["allowed_urls"]; ok {
		allowed, err := asStrings("allowed_urls", v)
		if err != nil {
			return err
		}
		s.AllowedURLs = allowed
	}
	if v, ok := data["denied_urls"]; ok {
		denied, err := asStrings("denied_urls", v)
		if err != nil {
			return err
		}
		s.DeniedURLs = denied
	}
	return nil
}

// Validate checks that every pattern compiles.
func (s *NavigationSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pattern := range s.AllowedURLs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
	}
	for _, pattern := range s.DeniedURLs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
	}
	return nil
}

func (s *NavigationSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AllowedURLs = nil
	s.DeniedURLs = nil
}

// Patterns returns copies of the allow and deny lists.
func (s *NavigationSection) Patterns() (allowed, denied []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.AllowedURLs), slices.Clone(s.DeniedURLs)
}
