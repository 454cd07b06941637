package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// NavigationGuard decides which URLs browser_navigate may open. Denied
// patterns take precedence; with no allowed patterns every URL that is not
// denied is allowed. A nil guard allows everything.
type NavigationGuard struct {
	allowed []glob.Glob
	denied  []glob.Glob
	raw     []string
}

// NewNavigationGuard compiles the allow and deny globs.
func NewNavigationGuard(allowed, denied []string) (*NavigationGuard, error) {
	g := &NavigationGuard{raw: append([]string(nil), allowed...)}

	for _, pattern := range allowed {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		g.allowed = append(g.allowed, compiled)
	}
	for _, pattern := range denied {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		g.denied = append(g.denied, compiled)
	}
	return g, nil
}

// Check returns an error describing why rawURL may not be opened.
func (g *NavigationGuard) Check(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("invalid URL %q: must be absolute, e.g. https://example.com", rawURL)
	}
	if g == nil {
		return nil
	}

	target := parsed.String()
	for _, pattern := range g.denied {
		if pattern.Match(target) {
			return fmt.Errorf("navigation to %s is blocked by the navigation rules", target)
		}
	}
	if len(g.allowed) == 0 {
		return nil
	}
	for _, pattern := range g.allowed {
		if pattern.Match(target) {
			return nil
		}
	}
	return fmt.Errorf("navigation to %s is not in the allowed list (%s)", target, strings.Join(g.raw, ", "))
}
