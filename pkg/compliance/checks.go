package compliance

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
	"github.com/dd0wney/cluso-audit/pkg/masking"
)

// genericChecks apply to every framework: they assert the structural
// guarantees of the trail itself.
func genericChecks() []Check {
	return []Check{
		NewCheck("GEN-CHAIN-01", "Hash chain verifies over the report window",
			func(ctx context.Context, ev *Evidence) CheckResult {
				if ev.Chain == nil {
					return CheckResult{Passed: false, Detail: "no chain verification report gathered"}
				}
				contentOK := true
				for _, v := range ev.Chain.Violations {
					if v.Reason != hashchain.ReasonSequenceGap {
						contentOK = false
						break
					}
				}
				if !contentOK {
					return CheckResult{
						Passed:   false,
						Detail:   fmt.Sprintf("%d chain violations in window", len(ev.Chain.Violations)),
						Evidence: ev.Chain.EntriesChecked,
					}
				}
				return CheckResult{Passed: true, Evidence: ev.Chain.EntriesChecked}
			}),
		NewCheck("GEN-SEQ-01", "Sequence numbers are continuous, accounting for tombstones",
			func(ctx context.Context, ev *Evidence) CheckResult {
				if ev.Chain == nil {
					return CheckResult{Passed: false, Detail: "no chain verification report gathered"}
				}
				gaps := 0
				for _, v := range ev.Chain.Violations {
					if v.Reason == hashchain.ReasonSequenceGap {
						gaps++
					}
				}
				if gaps > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d sequence positions with neither entry nor tombstone", gaps),
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.WindowEntries) + len(ev.Tombstones)}
			}),
		NewCheck("GEN-TS-01", "Timestamps never regress along the chain",
			func(ctx context.Context, ev *Evidence) CheckResult {
				for i := 1; i < len(ev.WindowEntries); i++ {
					if ev.WindowEntries[i].Timestamp.Before(ev.WindowEntries[i-1].Timestamp) {
						return CheckResult{
							Passed: false,
							Detail: fmt.Sprintf("timestamp regression at sequence %d", ev.WindowEntries[i].SequenceNum),
						}
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.WindowEntries)}
			}),
		NewCheck("GEN-ACT-01", "Window covers the required action kinds",
			func(ctx context.Context, ev *Evidence) CheckResult {
				if len(ev.Entries) == 0 {
					return CheckResult{Passed: true}
				}
				unknown := 0
				var mutation, access bool
				for _, e := range ev.Entries {
					if !e.Action.Valid() {
						unknown++
						continue
					}
					switch e.Action {
					case audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete,
						audit.ActionImport, audit.ActionAnonymize, audit.ActionArchive,
						audit.ActionBatchOperation:
						mutation = true
					case audit.ActionRead, audit.ActionSearch, audit.ActionExport,
						audit.ActionShare, audit.ActionLogin, audit.ActionLogout:
						access = true
					}
				}
				if unknown > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d entries with unrecognized action kinds", unknown),
					}
				}
				if !mutation && !access {
					return CheckResult{Passed: false, Detail: "no mutating or access actions recorded in window"}
				}
				return CheckResult{Passed: true, Evidence: len(ev.Entries)}
			}),
		NewCheck("GEN-MASK-01", "Sensitive change values carry the sensitivity flag",
			func(ctx context.Context, ev *Evidence) CheckResult {
				unflagged := 0
				for _, e := range ev.Entries {
					for _, c := range e.Changes {
						if !c.Sensitive && masking.IsSensitiveField(c.FieldPath) {
							unflagged++
						}
					}
				}
				if unflagged > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d change records on sensitive field paths lack the sensitive flag", unflagged),
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.Entries)}
			}),
		NewCheck("GEN-RET-01", "Framework-tagged entries are covered by an enabled retention policy",
			func(ctx context.Context, ev *Evidence) CheckResult {
				uncovered := make(map[string]bool)
				for _, e := range ev.Entries {
					if !coveredByPolicy(ev.Policies, e) {
						uncovered[e.EntityKind] = true
					}
				}
				if len(uncovered) > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d entity kinds tagged %s have no enabled retention policy", len(uncovered), ev.Framework),
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.Policies)}
			}),
	}
}

func coveredByPolicy(policies []*audit.RetentionPolicy, e *audit.Entry) bool {
	for _, p := range policies {
		if p.Enabled && p.AppliesTo(e) {
			return true
		}
	}
	return false
}

func gdprChecks() []Check {
	return []Check{
		NewCheck("GDPR-PII-01", "Entries carrying personal data are flagged with their PII field paths",
			func(ctx context.Context, ev *Evidence) CheckResult {
				flagged := 0
				inconsistent := 0
				for _, e := range ev.Entries {
					if e.ContainsPII {
						flagged++
						if len(e.PIIFields) == 0 {
							inconsistent++
						}
					}
				}
				if inconsistent > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d entries flagged as PII without field paths", inconsistent),
					}
				}
				return CheckResult{Passed: true, Evidence: flagged}
			}),
		NewCheck("GDPR-ERASE-01", "An enabled anonymization or deletion policy exists (right to erasure)",
			func(ctx context.Context, ev *Evidence) CheckResult {
				for _, p := range ev.Policies {
					if p.Enabled && (p.Action == audit.RetentionAnonymize || p.Action == audit.RetentionDelete) {
						return CheckResult{Passed: true, Evidence: 1}
					}
				}
				return CheckResult{Passed: false, Detail: "no enabled anonymize or delete retention policy"}
			}),
	}
}

func soc2Checks() []Check {
	return []Check{
		NewCheck("SOC2-LOG-01", "Access operations (read, search, export) are recorded",
			func(ctx context.Context, ev *Evidence) CheckResult {
				access := 0
				for _, e := range ev.Entries {
					switch e.Action {
					case audit.ActionRead, audit.ActionSearch, audit.ActionExport, audit.ActionLogin:
						access++
					}
				}
				if len(ev.Entries) > 0 && access == 0 {
					return CheckResult{Passed: false, Detail: "no access operations recorded in window"}
				}
				return CheckResult{Passed: true, Evidence: access}
			}),
		NewCheck("SOC2-LOGIN-01", "Failed logins stay below 20% of login attempts",
			func(ctx context.Context, ev *Evidence) CheckResult {
				logins := 0
				failed := 0
				for _, e := range ev.Entries {
					if e.Action != audit.ActionLogin {
						continue
					}
					logins++
					if !e.Success {
						failed++
					}
				}
				if logins == 0 {
					return CheckResult{Passed: true}
				}
				ratio := float64(failed) / float64(logins)
				if ratio >= 0.2 {
					return CheckResult{
						Passed:   false,
						Detail:   fmt.Sprintf("%.0f%% of %d login attempts failed", ratio*100, logins),
						Evidence: failed,
					}
				}
				return CheckResult{Passed: true, Evidence: logins}
			}),
		NewCheck("SOC2-APPROVE-01", "Shared documents carry approval decisions",
			func(ctx context.Context, ev *Evidence) CheckResult {
				shares := 0
				decisions := 0
				for _, e := range ev.Entries {
					switch e.Action {
					case audit.ActionShare:
						shares++
					case audit.ActionApprove, audit.ActionReject:
						decisions++
					}
				}
				if shares > 0 && decisions == 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d share operations with no approve or reject decision in window", shares),
					}
				}
				return CheckResult{Passed: true, Evidence: decisions}
			}),
		NewCheck("SOC2-FAIL-01", "Failed operations stay below 20% of the window",
			func(ctx context.Context, ev *Evidence) CheckResult {
				if len(ev.Entries) == 0 {
					return CheckResult{Passed: true}
				}
				failed := 0
				for _, e := range ev.Entries {
					if !e.Success {
						failed++
					}
				}
				ratio := float64(failed) / float64(len(ev.Entries))
				if ratio >= 0.2 {
					return CheckResult{
						Passed:   false,
						Detail:   fmt.Sprintf("%.0f%% of operations in window failed", ratio*100),
						Evidence: failed,
					}
				}
				return CheckResult{Passed: true, Evidence: failed}
			}),
	}
}

func hipaaChecks() []Check {
	return []Check{
		NewCheck("HIPAA-ACTOR-01", "Every PII access names an accountable actor",
			func(ctx context.Context, ev *Evidence) CheckResult {
				anonymousAccess := 0
				for _, e := range ev.Entries {
					if e.ContainsPII && e.ActorID == "" {
						anonymousAccess++
					}
				}
				if anonymousAccess > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d PII entries with no actor", anonymousAccess),
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.Entries)}
			}),
	}
}

func pciChecks() []Check {
	return []Check{
		NewCheck("PCI-SENS-01", "Card-like field paths are always flagged sensitive",
			func(ctx context.Context, ev *Evidence) CheckResult {
				exposed := 0
				for _, e := range ev.Entries {
					for _, c := range e.Changes {
						if masking.IsSensitiveField(c.FieldPath) && !c.Sensitive {
							exposed++
						}
					}
				}
				if exposed > 0 {
					return CheckResult{
						Passed: false,
						Detail: fmt.Sprintf("%d card-like change records not flagged sensitive", exposed),
					}
				}
				return CheckResult{Passed: true, Evidence: len(ev.Entries)}
			}),
	}
}
