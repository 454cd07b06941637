// Package port makes sure the executor port is free before the transport
// binds it, evicting a stale server left over from an earlier run.
package port

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/entrhq/browsermcp/pkg/backoff"
	"github.com/entrhq/browsermcp/pkg/logging"
)

// ErrPortUnavailable is returned when the port is still bound after every
// reclaim attempt has been used.
var ErrPortUnavailable = errors.New("port: still in use")

// DefaultMaxAttempts bounds the polling loop in EnsureAvailable.
const DefaultMaxAttempts = 20

// Killer terminates whatever process is listening on a TCP port.
type Killer interface {
	// Kill is best effort. It returns the PIDs it signalled.
	Kill(ctx context.Context, port int) ([]int, error)
}

// Options configures a Reclaimer.
type Options struct {
	// Host is the interface the transport will bind; probes use the same address
	Host string

	// KillExisting enables evicting the current holder of the port
	KillExisting bool

	// MaxAttempts bounds the number of availability probes (0 means DefaultMaxAttempts)
	MaxAttempts int

	// Backoff controls the delay between probes
	Backoff backoff.Config

	// Killer overrides the platform process killer
	Killer Killer

	// Logger receives reclaim progress
	Logger *logging.Logger
}

// Reclaimer guarantees a port is free before it is bound.
type Reclaimer struct {
	host         string
	killExisting bool
	maxAttempts  int
	backoff      backoff.Config
	killer       Killer
	logger       *logging.Logger
	rng          *rand.Rand
	rngMu        sync.Mutex
}

// portLocks serializes kill-then-probe sequences per port within the process.
var portLocks sync.Map // map[int]*sync.Mutex

func lockPort(port int) func() {
	v, _ := portLocks.LoadOrStore(port, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// New creates a Reclaimer. Zero-valued options fall back to defaults.
func New(opts Options) *Reclaimer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	defaults := backoff.DefaultConfig()
	if opts.Backoff.InitialDelay <= 0 {
		opts.Backoff.InitialDelay = defaults.InitialDelay
	}
	if opts.Backoff.Multiplier <= 0 {
		opts.Backoff.Multiplier = defaults.Multiplier
	}
	if opts.Backoff.MaxDelay <= 0 {
		opts.Backoff.MaxDelay = defaults.MaxDelay
	}
	if opts.Killer == nil {
		opts.Killer = NewProcessKiller()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Reclaimer{
		host:         opts.Host,
		killExisting: opts.KillExisting,
		maxAttempts:  opts.MaxAttempts,
		backoff:      opts.Backoff,
		killer:       opts.Killer,
		logger:       opts.Logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// IsBound reports whether binding host:port fails because the address is
// already in use. The probe listener is always released.
func (r *Reclaimer) IsBound(port int) bool {
	return IsBound(r.host, port)
}

// IsBound probes host:port with a throwaway listener.
func IsBound(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if ln != nil {
		_ = ln.Close()
	}
	if err == nil {
		return false
	}
	return IsAddrInUse(err)
}

// IsAddrInUse reports whether err is an address-in-use bind failure.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows reports WSAEADDRINUSE, which does not match syscall.EADDRINUSE.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "only one usage of each socket address")
}

// EnsureAvailable returns once port is verified free. It evicts the current
// holder when configured to, then probes with backoff until the port frees
// up, the attempt budget runs out (ErrPortUnavailable), or ctx ends.
func (r *Reclaimer) EnsureAvailable(ctx context.Context, port int) error {
	if port == 0 {
		return nil
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port: invalid port %d", port)
	}

	unlock := lockPort(port)
	defer unlock()

	if !r.IsBound(port) {
		return nil
	}

	if r.killExisting {
		pids, err := r.killer.Kill(ctx, port)
		switch {
		case err != nil:
			r.logger.Warnf("could not evict process on port %d: %v", port, err)
		case len(pids) > 0:
			r.logger.Infof("evicted pid(s) %v holding port %d", pids, port)
		}
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if !r.IsBound(port) {
			r.logger.Debugf("port %d free after %d probe(s)", port, attempt)
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		if err := backoff.Sleep(ctx, r.nextDelay(attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: port %d after %d attempts", ErrPortUnavailable, port, r.maxAttempts)
}

func (r *Reclaimer) nextDelay(attempt int) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return backoff.NextDelay(r.backoff, attempt, r.rng)
}
