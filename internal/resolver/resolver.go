// Package resolver maps target processes to their debug-service endpoints.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/skobkin/lspreport/internal/procscan"
)

// State is a step of the resolution state machine.
type State int

const (
	// StateResolving refreshes ports and companions and matches endpoints.
	StateResolving State = iota
	// StatePartiallyResolved has unresolved targets awaiting remediation.
	StatePartiallyResolved
	// StateResolved is terminal: every target has an endpoint.
	StateResolved
	// StateExhausted is terminal: attempts ran out with targets unresolved.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StatePartiallyResolved:
		return "partially_resolved"
	case StateResolved:
		return "resolved"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes the resolution loop.
type Options struct {
	CompanionFilter string
	MaxAttempts     int
	RetryDelay      time.Duration

	// Wait blocks between attempts. Defaults to a context-aware sleep.
	Wait func(ctx context.Context, d time.Duration) error
	// OnAttempt is called after each attempt with the observed ports and
	// the pids still unresolved.
	OnAttempt func(attempt int, ports procscan.PortOwnership, unresolved []int)
}

// Result is the outcome of Resolve.
type Result struct {
	State     State
	Attempts  int
	Endpoints map[int]string
	// Remediations counts signals sent per pid, failed ones included.
	Remediations map[int]int
	// Ports is the port ownership observed by the last attempt.
	Ports procscan.PortOwnership
}

// Unresolved lists target pids without an endpoint, in ascending order.
func (r Result) Unresolved(targets []procscan.ProcessRecord) []int {
	var out []int
	for _, t := range targets {
		if _, ok := r.Endpoints[t.PID]; !ok {
			out = append(out, t.PID)
		}
	}
	sort.Ints(out)
	return out
}

// Resolver correlates companions with targets through port ownership.
type Resolver struct {
	inventory  procscan.Inventory
	ports      procscan.PortMapper
	remediator Remediator
	opts       Options
	logger     *slog.Logger
}

// New constructs a Resolver.
func New(inventory procscan.Inventory, ports procscan.PortMapper, remediator Remediator, opts Options, logger *slog.Logger) (*Resolver, error) {
	if inventory == nil || ports == nil {
		return nil, fmt.Errorf("inventory and port mapper are required")
	}
	if remediator == nil {
		return nil, fmt.Errorf("remediator is required")
	}
	if opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be > 0")
	}
	if opts.RetryDelay < 0 {
		return nil, fmt.Errorf("retry delay must be >= 0")
	}
	if opts.Wait == nil {
		opts.Wait = sleepContext
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		inventory:  inventory,
		ports:      ports,
		remediator: remediator,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Resolve runs the bounded resolution loop for targets. Only failures to
// list processes or ports are returned as errors, along with context
// cancellation; everything else degrades into a partial endpoint map.
func (r *Resolver) Resolve(ctx context.Context, targets []procscan.ProcessRecord) (Result, error) {
	res := Result{
		State:        StateResolving,
		Endpoints:    make(map[int]string),
		Remediations: make(map[int]int),
	}
	targetPIDs := make(map[int]struct{}, len(targets))
	for _, t := range targets {
		targetPIDs[t.PID] = struct{}{}
	}
	if len(targetPIDs) == 0 {
		res.State = StateResolved
		return res, nil
	}

	var unresolved []int
	for {
		switch res.State {
		case StateResolving:
			res.Attempts++
			ports, err := r.attempt(ctx, targetPIDs, res.Endpoints)
			if err != nil {
				return res, err
			}
			res.Ports = ports
			unresolved = res.Unresolved(targets)
			r.logger.Debug("resolution attempt finished",
				"attempt", res.Attempts,
				"resolved", len(res.Endpoints),
				"unresolved", len(unresolved))
			if r.opts.OnAttempt != nil {
				r.opts.OnAttempt(res.Attempts, ports, unresolved)
			}
			if len(unresolved) == 0 {
				res.State = StateResolved
			} else {
				res.State = StatePartiallyResolved
			}

		case StatePartiallyResolved:
			r.remediate(ctx, unresolved, res.Remediations)
			if res.Attempts >= r.opts.MaxAttempts {
				res.State = StateExhausted
				continue
			}
			if err := r.opts.Wait(ctx, r.opts.RetryDelay); err != nil {
				return res, fmt.Errorf("wait for endpoints: %w", err)
			}
			res.State = StateResolving

		case StateResolved, StateExhausted:
			r.logger.Info("endpoint resolution finished",
				"state", res.State.String(),
				"attempts", res.Attempts,
				"resolved", len(res.Endpoints),
				"targets", len(targetPIDs))
			return res, nil
		}
	}
}

func (r *Resolver) attempt(ctx context.Context, targets map[int]struct{}, endpoints map[int]string) (procscan.PortOwnership, error) {
	ports, err := r.ports.ListListeningPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list listening ports: %w", err)
	}

	procs, err := r.inventory.ListProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	companions := procscan.FilterByCommandSubstring(procs, r.opts.CompanionFilter)

	for _, companion := range companions {
		u, err := CompanionEndpoint(companion.CommandLine)
		if err != nil {
			parseErr := &EndpointParseError{PID: companion.PID, CommandLine: companion.CommandLine, Err: err}
			if errors.Is(err, ErrNoServiceURI) {
				r.logger.Debug("companion skipped", "pid", companion.PID, "err", parseErr)
			} else {
				r.logger.Warn("companion skipped", "pid", companion.PID, "err", parseErr)
			}
			continue
		}

		port, _ := strconv.Atoi(u.Port())
		owner, ok := ports[port]
		if !ok {
			r.logger.Debug("companion endpoint port not listening", "pid", companion.PID, "port", port)
			continue
		}
		if _, isTarget := targets[owner]; !isTarget {
			r.logger.Debug("companion endpoint owned by non-target", "pid", companion.PID, "port", port, "owner", owner)
			continue
		}
		if _, exists := endpoints[owner]; exists {
			continue
		}
		endpoints[owner] = WebSocketURI(u)
		r.logger.Info("endpoint resolved", "pid", owner, "companion_pid", companion.PID, "uri", endpoints[owner])
	}
	return ports, nil
}

func (r *Resolver) remediate(ctx context.Context, pids []int, counts map[int]int) {
	for _, pid := range pids {
		counts[pid]++
		if err := r.remediator.Remediate(ctx, pid); err != nil {
			r.logger.Warn("remediation failed", "pid", pid, "err", &RemediationError{PID: pid, Err: err})
			continue
		}
		r.logger.Info("remediation signal sent", "pid", pid)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
