package port

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// ProcessKiller finds listeners with the platform's socket tools and kills them.
type ProcessKiller struct {
	// lookup returns the PIDs listening on a port; replaced in tests
	lookup func(ctx context.Context, port int) ([]int, error)
}

// NewProcessKiller returns a killer for the current platform.
func NewProcessKiller() *ProcessKiller {
	if runtime.GOOS == "windows" {
		return &ProcessKiller{lookup: netstatPIDs}
	}
	return &ProcessKiller{lookup: lsofPIDs}
}

// Kill terminates every process listening on port, except this one.
func (k *ProcessKiller) Kill(ctx context.Context, port int) ([]int, error) {
	pids, err := k.lookup(ctx, port)
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	var killed []int
	var errs []error
	for _, pid := range pids {
		if pid == self || pid <= 0 {
			continue
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := proc.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
			continue
		}
		killed = append(killed, pid)
	}

	if len(errs) > 0 {
		return killed, fmt.Errorf("errors killing processes on port %d: %v", port, errs)
	}
	return killed, nil
}

// lsofPIDs lists listeners via `lsof -ti tcp:<port> -sTCP:LISTEN`.
func lsofPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-t", "-i", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		// lsof exits 1 when nothing matches
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof: %w", err)
	}
	return parseLsof(out), nil
}

func parseLsof(out []byte) []int {
	var pids []int
	seen := make(map[int]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// netstatPIDs lists listeners via `netstat -ano -p tcp`.
func netstatPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return nil, fmt.Errorf("netstat: %w", err)
	}
	return parseNetstat(out, port), nil
}

// parseNetstat extracts PIDs of LISTENING rows whose local address ends in :port.
func parseNetstat(out []byte, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	seen := make(map[int]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Proto  Local Address  Foreign Address  State  PID
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}
