package guard

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/dreamer/internal/store"
)

// ErrPolicyViolation is wrapped by every Violation.
var ErrPolicyViolation = errors.New("policy violation")

// Policy defines the limits applied to inbound chat traffic.
type Policy struct {
	MaxMessageLength      int `json:"max_message_length" yaml:"max_message_length"`
	MaxRecall             int `json:"max_recall" yaml:"max_recall"`
	MaxFactsPerExtraction int `json:"max_facts_per_extraction" yaml:"max_facts_per_extraction"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxMessageLength:      4000,
	MaxRecall:             20,
	MaxFactsPerExtraction: 10,
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

func (v *Violation) Unwrap() error {
	return ErrPolicyViolation
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckMessage rejects blank messages and messages longer than the limit,
// counted in runes. A zero limit disables the length check.
func (g *Guard) CheckMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return &Violation{Rule: "empty_message", Message: "message must not be empty"}
	}
	if max := g.policy.MaxMessageLength; max > 0 && utf8.RuneCountInString(msg) > max {
		return &Violation{Rule: "max_message_length", Message: fmt.Sprintf("message exceeds %d characters", max)}
	}
	return nil
}

// ClampRecall bounds n to [0, MaxRecall].
func (g *Guard) ClampRecall(n int) int {
	if n < 0 {
		return 0
	}
	if max := g.policy.MaxRecall; max > 0 && n > max {
		return max
	}
	return n
}

// LimitFacts truncates an extraction result to MaxFactsPerExtraction.
func (g *Guard) LimitFacts(facts []store.Fact) []store.Fact {
	if max := g.policy.MaxFactsPerExtraction; max > 0 && len(facts) > max {
		return facts[:max]
	}
	return facts
}
