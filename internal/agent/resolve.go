package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ResolutionError means the agent target is unusable. It is fatal for the
// whole sweep: resolution happens once, before any world is scheduled.
type ResolutionError struct {
	Locator string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving agent %q: %v", e.Locator, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Factory builds an agent from constructor kwargs. The returned value may
// implement either calling convention.
type Factory func(kwargs map[string]any) (any, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
	instances  = map[string]any{}
)

// RegisterFactory installs a named constructor, covering both the "class to
// instantiate" and "factory callable" shapes.
func RegisterFactory(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// RegisterInstance installs an already-constructed agent. Instance-backed
// handles are serialized unless the instance declares itself stateless via
// the Stateful interface.
func RegisterInstance(name string, agent any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	instances[name] = agent
}

// Registered lists known agent names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories)+len(instances))
	for name := range factories {
		names = append(names, name)
	}
	for name := range instances {
		if _, dup := factories[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve turns an agent locator into a Handle. Supported locator forms:
//
//	name            registered factory or instance
//	builtin:name    same, explicit scheme
//	cmd:/path/bin   external subprocess agent speaking the NDJSON protocol
//	docker:image    external agent inside a container
//
// kwargs are passed to the constructor (factories) or the external process
// (init frame); they are ignored for live instances.
func Resolve(locator string, kwargs map[string]any) (*Handle, error) {
	scheme, rest, hasScheme := strings.Cut(locator, ":")
	if !hasScheme {
		scheme, rest = "builtin", locator
	}

	switch scheme {
	case "builtin":
		return resolveRegistered(locator, rest, kwargs)
	case "cmd":
		if rest == "" {
			return nil, &ResolutionError{Locator: locator, Err: fmt.Errorf("empty command path")}
		}
		ext := newCommandAgent(rest, kwargs)
		return &Handle{name: "cmd:" + rest, agent: ext}, nil
	case "docker":
		if rest == "" {
			return nil, &ResolutionError{Locator: locator, Err: fmt.Errorf("empty image reference")}
		}
		ext := newDockerAgent(rest, kwargs)
		return &Handle{name: "docker:" + rest, agent: ext}, nil
	default:
		return nil, &ResolutionError{Locator: locator, Err: fmt.Errorf("unknown locator scheme %q", scheme)}
	}
}

func resolveRegistered(locator, name string, kwargs map[string]any) (*Handle, error) {
	registryMu.RLock()
	factory, haveFactory := factories[name]
	instance, haveInstance := instances[name]
	registryMu.RUnlock()

	switch {
	case haveFactory:
		built, err := factory(kwargs)
		if err != nil {
			return nil, &ResolutionError{Locator: locator, Err: fmt.Errorf("constructing: %w", err)}
		}
		agent, err := adapt(built)
		if err != nil {
			return nil, &ResolutionError{Locator: locator, Err: err}
		}
		if n, ok := built.(Named); ok {
			name = n.AgentName()
		}
		return &Handle{name: name, agent: agent, serialize: isStateful(built)}, nil
	case haveInstance:
		agent, err := adapt(instance)
		if err != nil {
			return nil, &ResolutionError{Locator: locator, Err: err}
		}
		// A shared live instance is assumed stateful unless it says otherwise.
		serialize := true
		if s, ok := instance.(Stateful); ok {
			serialize = s.Stateful()
		}
		return &Handle{name: name, agent: agent, serialize: serialize}, nil
	default:
		return nil, &ResolutionError{Locator: locator, Err: fmt.Errorf("no agent registered under %q", name)}
	}
}
