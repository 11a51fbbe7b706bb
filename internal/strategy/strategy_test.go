package strategy

import (
	"errors"
	"testing"

	"buffet/internal/domain"
)

// stubLogic is a minimal Logic implementation used in registry tests.
type stubLogic struct {
	name string
}

func (s *stubLogic) Name() string                                  { return s.name }
func (s *stubLogic) Update(_ domain.Bar) (domain.SignalType, bool) { return domain.SignalTypeHold, true }

func stubFactory(name string) Factory {
	return func([]byte) (Logic, error) { return &stubLogic{name: name}, nil }
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.StrategyTypeRuleBased, stubFactory("test-strategy"))

	f, ok := r.Get(domain.StrategyTypeRuleBased)
	if !ok {
		t.Fatal("Get returned false for registered type")
	}
	logic, err := f(nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if logic.Name() != "test-strategy" {
		t.Errorf("factory built Name() = %q, want %q", logic.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(domain.StrategyTypeModelBased); ok {
		t.Error("Get returned true for unregistered type")
	}
	_, err := r.New(domain.StrategyTypeModelBased, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("New(unregistered) err = %v, want ErrInvalidInput", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.StrategyTypeStatistical, stubFactory("beta"))
	r.Register(domain.StrategyTypeRuleBased, stubFactory("alpha"))

	types := r.List()
	if len(types) != 2 {
		t.Fatalf("List returned %d types, want 2", len(types))
	}
	if types[0] != domain.StrategyTypeRuleBased || types[1] != domain.StrategyTypeStatistical {
		t.Errorf("List returned %v, want [rule_based statistical]", types)
	}
}

func TestDecodeParams(t *testing.T) {
	type params struct {
		Window int `json:"window"`
	}

	for _, raw := range []string{"", "null", "  "} {
		p := params{Window: 7}
		if err := DecodeParams([]byte(raw), &p); err != nil || p.Window != 7 {
			t.Errorf("DecodeParams(%q) = %+v, %v; want defaults kept", raw, p, err)
		}
	}

	p := params{Window: 7}
	if err := DecodeParams([]byte(`{"window":3}`), &p); err != nil || p.Window != 3 {
		t.Errorf("DecodeParams = %+v, %v", p, err)
	}
	if err := DecodeParams([]byte(`[1,2`), &p); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("DecodeParams(malformed) err = %v, want ErrInvalidInput", err)
	}
}
