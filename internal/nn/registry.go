package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

// builtins are available to every genome. Mutation picks from the full
// registry unless a run narrows the choice.
var builtins = map[string]ActivationFunc{
	"identity": func(x float64) float64 { return x },
	"relu":     func(x float64) float64 { return math.Max(0, x) },
	"tanh":     math.Tanh,
	"sigmoid":  func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	"gaussian": func(x float64) float64 {
		x = clampUnit(x, 10)
		return math.Exp(-x * x)
	},
	"sin": math.Sin,
	"abs": math.Abs,
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationFunc
}{
	m: make(map[string]ActivationFunc),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	for name, fn := range builtins {
		MustRegisterActivation(name, fn)
	}
}

// RegisterActivation adds a named activation. Names are unique.
func RegisterActivation(name string, fn ActivationFunc) error {
	switch {
	case name == "":
		return errors.New("activation name is required")
	case fn == nil:
		return fmt.Errorf("activation %s: function is required", name)
	}
	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()
	if _, taken := activationRegistry.m[name]; taken {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (ActivationFunc, error) {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()
	if fn, ok := activationRegistry.m[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
}

// ListActivations returns the registered names in sorted order.
func ListActivations() []string {
	activationRegistry.mu.RLock()
	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	activationRegistry.mu.RUnlock()
	sort.Strings(names)
	return names
}

// clampUnit clamps x to [-limit, limit].
func clampUnit(x, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, x))
}
