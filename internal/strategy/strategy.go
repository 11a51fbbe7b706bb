// Package strategy defines the Logic interface for trading strategies and
// provides a Registry that builds Logic instances from persisted strategy
// definitions.
package strategy

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"buffet/internal/domain"
)

// Logic is a stateful, per-strategy signal generator. It consumes one bar at
// a time and is not safe for concurrent use; each instance is owned by a
// single component.
type Logic interface {
	// Name returns the algorithm identifier (e.g. "sma-cross").
	Name() string

	// Update feeds bar into the strategy. The second return value is false
	// while the strategy has insufficient history to produce a signal.
	Update(bar domain.Bar) (domain.SignalType, bool)
}

// Factory builds a fresh Logic from a strategy's parameter document. The
// document is parsed once, here, never per bar.
type Factory func(params []byte) (Logic, error)

// Registry maps strategy types to the factories that build them.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.StrategyType]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.StrategyType]Factory),
	}
}

// Register installs the factory for typ, replacing any existing one.
func (r *Registry) Register(typ domain.StrategyType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Get retrieves the factory for typ. The second return value indicates
// whether the type is supported.
func (r *Registry) Get(typ domain.StrategyType) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// List returns a sorted slice of all supported strategy types.
func (r *Registry) List() []domain.StrategyType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.StrategyType, 0, len(r.factories))
	for typ := range r.factories {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New builds a Logic for typ from params. Unsupported types and malformed
// parameters yield domain.ErrInvalidInput.
func (r *Registry) New(typ domain.StrategyType, params []byte) (Logic, error) {
	f, ok := r.Get(typ)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported strategy type %q", domain.ErrInvalidInput, typ)
	}
	return f(params)
}

// Build is New applied to a persisted strategy definition.
func (r *Registry) Build(s *domain.Strategy) (Logic, error) {
	logic, err := r.New(s.Type, s.Parameters)
	if err != nil {
		return nil, fmt.Errorf("building strategy %s: %w", s.ID, err)
	}
	return logic, nil
}

// DecodeParams unmarshals a parameter document into dst. An empty or null
// document leaves dst untouched so callers can pre-populate defaults.
func DecodeParams(params []byte, dst any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("%w: decoding strategy parameters: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
