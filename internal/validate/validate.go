// Package validate implements the fixed-order validator chain a candidate
// session must pass before placement (spec.md §4.5). Instead of validators
// raising exceptions for a fail verdict, each returns a tagged Decision —
// the corpus's own preference for struct-returning checks over throwing
// (teacher's quota.Enforcer.CheckSessionCreation returns a result value,
// never an error, for a policy rejection).
package validate

import (
	"context"

	"github.com/lablup/baimgr-core/internal/model"
	"github.com/lablup/baimgr-core/internal/store"
)

// Decision is the tagged-union result of one validator.
type Decision struct {
	Pass bool
	Kind model.FailureKind // zero value when Pass
	Info string
}

func passDecision() Decision { return Decision{Pass: true} }

func failDecision(kind model.FailureKind, info string) Decision {
	return Decision{Pass: false, Kind: kind, Info: info}
}

// Validator is one predicate in the chain.
type Validator interface {
	// Name identifies the validator for logging and status_info.
	Name() string
	// Private reports whether this validator also runs for SYSTEM
	// sessions (the "starred" validators in spec.md §4.5).
	Private() bool
	// Validate checks sess against policies using tx's live snapshot.
	Validate(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision
}

// Chain runs validators in the fixed order they were constructed with.
type Chain struct {
	validators []Validator
}

// NewChain builds a chain in the exact order given. DefaultChain returns
// the spec.md §4.5 order; tests may build a narrower chain.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// DefaultChain is the full spec.md §4.5 validator sequence.
func DefaultChain() *Chain {
	return NewChain(
		DependencyValidator{},
		ReservedBatchValidator{},
		ConcurrencyValidator{},
		PendingQuotaValidator{},
		DomainResourceValidator{},
		GroupResourceValidator{},
		KeyPairResourceValidator{},
		SessionTypeValidator{},
	)
}

// Run executes the chain against sess, short-circuiting on the first
// failure. For a private (SYSTEM) session, only starred validators run;
// every other validator is skipped and counted as passing.
func (c *Chain) Run(ctx context.Context, sess model.Session, policies model.PolicyBundle, tx store.SchedulingTx) Decision {
	for _, v := range c.validators {
		if sess.IsPrivate() && !v.Private() {
			continue
		}
		d := v.Validate(ctx, sess, policies, tx)
		if !d.Pass {
			return d
		}
	}
	return passDecision()
}
