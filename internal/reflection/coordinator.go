package reflection

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/grpcweb-inspector/core/internal/registry"
)

// State is the per-origin reflection state machine: Unknown → InFlight →
// Ready | Failed (spec §4.1, §4.6).
type State int

const (
	StateUnknown State = iota
	StateInFlight
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Coordinator drives ServerReflectionInfo round trips and feeds discovered
// descriptors into a Registry, coalescing concurrent callers against the
// same origin onto a single in-flight fetch (spec §4.6 "Concurrency
// discipline"). Coalescing itself is delegated to singleflight.Group; this
// type layers the Unknown/InFlight/Ready/Failed state machine and the
// per-origin cached error on top of it.
type Coordinator struct {
	mu     sync.Mutex
	states map[string]State
	errs   map[string]error
	group  singleflight.Group

	reg      *registry.Registry
	client   *client
	timeout  time.Duration
	onStatus func(origin string, state State)
}

// New builds a Coordinator that registers discovered descriptors into reg
// and reports state transitions to onStatus (may be nil).
func New(reg *registry.Registry, timeout time.Duration, onStatus func(origin string, state State)) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		states:   make(map[string]State),
		errs:     make(map[string]error),
		reg:      reg,
		client:   newClient(),
		timeout:  timeout,
		onStatus: onStatus,
	}
}

// State returns the current reflection state for origin.
func (c *Coordinator) State(origin string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[origin]
}

// EnsureReflected obtains (or awaits an in-flight fetch of) descriptors for
// origin. Per spec §4.6 "Short-circuit", callers should skip calling this
// at all when the registry already resolves the method in question; this
// method itself does not perform that check, since it has no method path
// to test against.
func (c *Coordinator) EnsureReflected(ctx context.Context, origin string) error {
	c.mu.Lock()
	switch c.states[origin] {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateFailed:
		err := c.errs[origin]
		c.mu.Unlock()
		return err
	case StateInFlight:
		c.mu.Unlock()
	default:
		c.states[origin] = StateInFlight
		c.mu.Unlock()
		c.notify(origin, StateInFlight)
	}

	_, err, _ := c.group.Do(origin, func() (interface{}, error) {
		// A caller that observed InFlight can reach Do after the fetch it
		// was waiting on has already finished; that outcome stands.
		c.mu.Lock()
		if st := c.states[origin]; st == StateReady || st == StateFailed {
			err := c.errs[origin]
			c.mu.Unlock()
			return nil, err
		}
		c.mu.Unlock()
		err := c.fetch(ctx, origin)
		c.mu.Lock()
		if err != nil {
			c.states[origin] = StateFailed
			c.errs[origin] = err
		} else {
			c.states[origin] = StateReady
			c.errs[origin] = nil
		}
		c.mu.Unlock()
		return nil, err
	})

	c.mu.Lock()
	final := c.states[origin]
	c.mu.Unlock()
	c.notify(origin, final)
	return err
}

func (c *Coordinator) notify(origin string, state State) {
	if c.onStatus != nil {
		c.onStatus(origin, state)
	}
}

// fetch performs the full reflection closure for origin: list services,
// fetch the descriptor files containing each (skipping the reflection
// services themselves), then follow dependency edges until every
// transitive file has been retrieved.
func (c *Coordinator) fetch(ctx context.Context, origin string) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	servicePath, services, err := c.listServices(deadlineCtx, origin)
	if err != nil {
		return err
	}
	host := originHost(origin)

	seenFiles := make(map[string]bool)
	var files []*descriptorpb.FileDescriptorProto
	var pendingDeps []string

	for _, svc := range services {
		if isReflectionService(svc) {
			continue
		}
		resp, err := c.client.call(deadlineCtx, origin, servicePath, fileContainingSymbolRequest(host, svc))
		if err != nil {
			// Dependency/service fetch failure is tolerated; the partial
			// registry is still built (spec §4.6 "Failure modes").
			continue
		}
		for _, fb := range resp.FileDescriptorProtos {
			var f descriptorpb.FileDescriptorProto
			if err := proto.Unmarshal(fb, &f); err != nil || seenFiles[f.GetName()] {
				continue
			}
			seenFiles[f.GetName()] = true
			files = append(files, &f)
			pendingDeps = append(pendingDeps, f.GetDependency()...)
		}
	}

	for len(pendingDeps) > 0 {
		dep := pendingDeps[0]
		pendingDeps = pendingDeps[1:]
		if seenFiles[dep] || isWellKnownPath(dep) {
			continue
		}
		resp, err := c.client.call(deadlineCtx, origin, servicePath, fileByFilenameRequest(host, dep))
		if err != nil {
			// Dependency marked unresolved by simply never being added;
			// the registry's own topo sort tolerates the gap.
			continue
		}
		for _, fb := range resp.FileDescriptorProtos {
			var f descriptorpb.FileDescriptorProto
			if err := proto.Unmarshal(fb, &f); err != nil || seenFiles[f.GetName()] {
				continue
			}
			seenFiles[f.GetName()] = true
			files = append(files, &f)
			pendingDeps = append(pendingDeps, f.GetDependency()...)
		}
	}

	if len(files) == 0 {
		return &TransportError{Origin: origin, Reason: "no descriptors obtained from reflection"}
	}
	return c.reg.RegisterFileDescriptorProtos(files)
}

// listServices tries the v1 ServerReflection service path, falling back to
// v1alpha on failure (spec §4.6 "Protocol"). It returns the service path
// that succeeded so subsequent calls in the same fetch reuse it.
func (c *Coordinator) listServices(ctx context.Context, origin string) (string, []string, error) {
	var lastErr error
	for _, path := range reflectionServicePaths {
		resp, err := c.client.call(ctx, origin, path, listServicesRequest(originHost(origin)))
		if err != nil {
			lastErr = err
			continue
		}
		sort.Strings(resp.Services)
		return path, resp.Services, nil
	}
	return "", nil, lastErr
}

// originHost returns the host[:port] of origin, sent as the
// ServerReflectionRequest host field.
func originHost(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}

func isReflectionService(fullName string) bool {
	return fullName == "grpc.reflection.v1.ServerReflection" || fullName == "grpc.reflection.v1alpha.ServerReflection"
}

// isWellKnownPath reports a google/protobuf/*.proto dependency, which the
// registry always has available locally (spec §4.6 "Well-known-type
// augmentation") and so never needs fetching over reflection.
func isWellKnownPath(name string) bool {
	return strings.HasPrefix(name, "google/protobuf/")
}
