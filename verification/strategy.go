package verification

import (
	"crypto/ed25519"
	"strings"
)

// Strategy checks signature over message with publicKey. It reports a
// mismatch, including malformed input, as false.
type Strategy interface {
	Verify(signature, message, publicKey []byte) bool
}

type StrategyFunc func(signature, message, publicKey []byte) bool

func (fn StrategyFunc) Verify(signature, message, publicKey []byte) bool {
	return fn(signature, message, publicKey)
}

const AlgorithmEd25519 = "ed25519"

type Ed25519Strategy struct{}

func (Ed25519Strategy) Verify(signature, message, publicKey []byte) bool {
	// ed25519.Verify panics on a wrong key length.
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// Registry maps lower-cased algorithm names to strategies. It is read-only
// once built; With returns an extended copy.
type Registry struct {
	strategies map[string]Strategy
}

func DefaultRegistry() Registry {
	return Registry{strategies: map[string]Strategy{AlgorithmEd25519: Ed25519Strategy{}}}
}

func (r Registry) With(name string, strategy Strategy) Registry {
	next := make(map[string]Strategy, len(r.strategies)+1)
	for key, value := range r.strategies {
		next[key] = value
	}
	name = normalizeAlgorithm(name)
	if name != "" && strategy != nil {
		next[name] = strategy
	}
	return Registry{strategies: next}
}

func (r Registry) Lookup(name string) (Strategy, bool) {
	strategy, ok := r.strategies[normalizeAlgorithm(name)]
	return strategy, ok
}

func (r Registry) Algorithms() []string {
	out := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		out = append(out, name)
	}
	return out
}

func normalizeAlgorithm(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
