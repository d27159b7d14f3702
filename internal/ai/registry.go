package ai

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	// EngineEnvVar selects the default editorial engine.
	EngineEnvVar = "TB_AI_ENGINE"
	// DefaultEngineName is used when TB_AI_ENGINE is unset.
	DefaultEngineName = "heuristic"
)

// Engine bundles the scoring and generation contracts one backend provides.
type Engine interface {
	Scorer
	Generator
	Name() string
}

// Registry stores editorial engines and resolves a default engine.
type Registry struct {
	engines       map[string]Engine
	defaultEngine string
}

func NewRegistry(defaultEngine string) *Registry {
	normalizedDefault := normalizeEngineName(defaultEngine)
	if normalizedDefault == "" {
		normalizedDefault = DefaultEngineName
	}

	return &Registry{
		engines:       make(map[string]Engine),
		defaultEngine: normalizedDefault,
	}
}

// NewRegistryFromEnv creates an engine registry from environment configuration.
func NewRegistryFromEnv() *Registry {
	registry := NewRegistry(os.Getenv(EngineEnvVar))
	_ = registry.Register(NewHeuristicEngine())
	_ = registry.Register(NewChatEngineFromEnv())

	if _, exists := registry.engines[registry.defaultEngine]; !exists {
		registry.defaultEngine = DefaultEngineName
	}

	return registry
}

// Register adds one engine.
func (r *Registry) Register(engine Engine) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if engine == nil {
		return fmt.Errorf("engine is nil")
	}
	name := normalizeEngineName(engine.Name())
	if name == "" {
		return fmt.Errorf("engine name is required")
	}
	r.engines[name] = engine
	return nil
}

// Engine resolves an engine by name. Empty names use the configured default.
func (r *Registry) Engine(name string) (Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.engines) == 0 {
		return nil, fmt.Errorf("no editorial engines are registered")
	}

	resolvedName := normalizeEngineName(name)
	if resolvedName == "" {
		resolvedName = r.defaultEngine
	}
	engine, ok := r.engines[resolvedName]
	if ok {
		return engine, nil
	}

	return nil, fmt.Errorf("editorial engine %q is not registered (available: %s)", resolvedName, strings.Join(r.EngineNames(), ", "))
}

func (r *Registry) DefaultEngine() string {
	if r == nil {
		return ""
	}
	return r.defaultEngine
}

func (r *Registry) EngineNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeEngineName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
