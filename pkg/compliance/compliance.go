// Package compliance evaluates the audit trail against regulatory
// frameworks. Checks are named objects in a per-framework registry, so
// deployments can register their own alongside the built-in set. A
// report is evidence plus check verdicts plus aggregates; generating
// one is itself an auditable operation.
package compliance

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
)

// Evidence is everything a check may inspect, gathered once per
// report so every check sees the same snapshot.
type Evidence struct {
	// Framework the report is for.
	Framework audit.Framework
	// Window bounds; zero values mean unbounded.
	WindowStart time.Time
	WindowEnd   time.Time

	// Entries in the window tagged with the framework, sequence-ordered,
	// unmasked. Checks only read sensitivity flags, never raw values.
	Entries []*audit.Entry
	// WindowEntries is every entry in the window regardless of tags.
	// The structural checks (chain, sequence, timestamps) run over this
	// set: a tagged subset is not a contiguous chain.
	WindowEntries []*audit.Entry
	// Tombstones within the window's sequence range.
	Tombstones map[uint64]audit.Tombstone
	// Chain is the verification report over the whole window.
	Chain *hashchain.Report
	// Policies currently configured, highest priority first.
	Policies []*audit.RetentionPolicy

	GatheredAt time.Time
}

// CheckResult is one check's verdict.
type CheckResult struct {
	CheckID     string `json:"check_id"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	// Detail explains a failure or qualifies a pass.
	Detail string `json:"detail,omitempty"`
	// Evidence counts how many entries or facts supported the verdict.
	Evidence int `json:"evidence,omitempty"`
}

// Check is a named compliance check. Implementations must be safe for
// concurrent use; Evaluate must not mutate the evidence.
type Check interface {
	ID() string
	Description() string
	Evaluate(ctx context.Context, ev *Evidence) CheckResult
}

// checkFunc adapts a function to the Check interface, which is how the
// built-in checks are defined.
type checkFunc struct {
	id   string
	desc string
	fn   func(ctx context.Context, ev *Evidence) CheckResult
}

func (c *checkFunc) ID() string          { return c.id }
func (c *checkFunc) Description() string { return c.desc }
func (c *checkFunc) Evaluate(ctx context.Context, ev *Evidence) CheckResult {
	res := c.fn(ctx, ev)
	res.CheckID = c.id
	res.Description = c.desc
	return res
}

// NewCheck builds a Check from a function.
func NewCheck(id, description string, fn func(ctx context.Context, ev *Evidence) CheckResult) Check {
	return &checkFunc{id: id, desc: description, fn: fn}
}

// Registry maps frameworks to their checks. The zero value is empty;
// NewRegistry installs the built-in set.
type Registry struct {
	checks map[audit.Framework][]Check
}

// NewRegistry returns a registry with the built-in checks for every
// supported framework.
func NewRegistry() *Registry {
	r := &Registry{checks: make(map[audit.Framework][]Check)}
	for _, f := range audit.AllFrameworks() {
		for _, c := range genericChecks() {
			r.Register(f, c)
		}
	}
	for _, c := range gdprChecks() {
		r.Register(audit.FrameworkGDPR, c)
	}
	for _, c := range soc2Checks() {
		r.Register(audit.FrameworkSOC2, c)
	}
	for _, c := range hipaaChecks() {
		r.Register(audit.FrameworkHIPAA, c)
	}
	for _, c := range pciChecks() {
		r.Register(audit.FrameworkPCIDSS, c)
	}
	return r
}

// NewEmptyRegistry returns a registry with no checks installed.
func NewEmptyRegistry() *Registry {
	return &Registry{checks: make(map[audit.Framework][]Check)}
}

// Register adds a check for a framework.
func (r *Registry) Register(f audit.Framework, c Check) {
	r.checks[f] = append(r.checks[f], c)
}

// Checks returns the checks registered for a framework.
func (r *Registry) Checks(f audit.Framework) []Check {
	return r.checks[f]
}
