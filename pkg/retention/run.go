package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/masking"
	"github.com/dd0wney/cluso-audit/pkg/pubsub"
	"github.com/dd0wney/cluso-audit/pkg/security"
)

// PolicyConflict reports an entry a policy wanted to expire but could
// not touch because a protected framework pins it.
type PolicyConflict struct {
	SequenceNum uint64            `json:"sequence_num"`
	PolicyID    string            `json:"policy_id"`
	Frameworks  []audit.Framework `json:"frameworks"`
}

// RunReport summarizes one retention run.
type RunReport struct {
	StartedAt  time.Time        `json:"started_at"`
	Took       time.Duration    `json:"took"`
	Scanned    int              `json:"scanned"`
	Kept       int              `json:"kept"`
	Archived   int              `json:"archived"`
	Deleted    int              `json:"deleted"`
	Anonymized int              `json:"anonymized"`
	Conflicts  []PolicyConflict `json:"conflicts,omitempty"`
	Archives   []string         `json:"archives,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// Run sweeps the live trail once. Policies apply in priority order; the
// first enabled policy selecting an entry decides its fate. Protected
// entries are skipped and reported, never touched. At most one run
// executes at a time.
func (en *Engine) Run(ctx context.Context, sc *security.SecurityContext) (*RunReport, error) {
	if err := sc.Require(security.CapManageRetention); err != nil {
		en.metrics.RecordUnauthorized("retention.run")
		return nil, err
	}
	en.runMu.Lock()
	defer en.runMu.Unlock()

	report := &RunReport{StartedAt: time.Now().UTC()}
	policies := en.Policies()
	now := time.Now().UTC()

	// Group expired entries by winning policy and action.
	type job struct {
		policy  *audit.RetentionPolicy
		entries []*audit.Entry
	}
	archiveJobs := make(map[string]*job)
	var toDelete, toAnonymize []struct {
		entry  *audit.Entry
		policy *audit.RetentionPolicy
	}

	snapshot := en.trail.Index().Snapshot()
	report.Scanned = len(snapshot)

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		policy := winningPolicy(policies, e)
		if policy == nil {
			continue
		}
		if policy.Action == audit.RetentionKeep {
			report.Kept++
			continue
		}
		if !policy.Expired(e, now) {
			continue
		}
		if policy.Action != audit.RetentionArchive && policy.Protects(e) {
			report.Conflicts = append(report.Conflicts, PolicyConflict{
				SequenceNum: e.SequenceNum,
				PolicyID:    policy.ID,
				Frameworks:  e.Frameworks,
			})
			continue
		}

		switch policy.Action {
		case audit.RetentionArchive:
			j := archiveJobs[policy.ID]
			if j == nil {
				j = &job{policy: policy}
				archiveJobs[policy.ID] = j
			}
			j.entries = append(j.entries, e)
		case audit.RetentionDelete:
			toDelete = append(toDelete, struct {
				entry  *audit.Entry
				policy *audit.RetentionPolicy
			}{e, policy})
		case audit.RetentionAnonymize:
			toAnonymize = append(toAnonymize, struct {
				entry  *audit.Entry
				policy *audit.RetentionPolicy
			}{e, policy})
		}
	}

	for _, j := range archiveJobs {
		archiveID, count, err := en.archiveEntries(ctx, j.policy, j.entries)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("archive for policy %s: %v", j.policy.ID, err))
			en.logger.Error("archive job failed",
				logging.Error(err),
				logging.PolicyID(j.policy.ID),
			)
			continue
		}
		report.Archived += count
		report.Archives = append(report.Archives, archiveID)
	}

	for _, item := range toDelete {
		if _, err := en.trail.Remove(ctx, item.entry.SequenceNum, audit.DispositionDeleted, "", item.policy.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete sequence %d: %v", item.entry.SequenceNum, err))
			continue
		}
		report.Deleted++
	}

	for _, item := range toAnonymize {
		changed, err := en.anonymizeEntry(ctx, item.entry)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("anonymize sequence %d: %v", item.entry.SequenceNum, err))
			continue
		}
		if changed {
			report.Anonymized++
		}
	}

	report.Took = time.Since(report.StartedAt)

	status := "success"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	en.metrics.RecordRetentionRun(status, report.Took,
		report.Archived, report.Deleted, report.Anonymized, len(report.Conflicts))
	en.logger.Info("retention run complete",
		logging.Int("scanned", report.Scanned),
		logging.Int("archived", report.Archived),
		logging.Int("deleted", report.Deleted),
		logging.Int("anonymized", report.Anonymized),
		logging.Int("conflicts", len(report.Conflicts)),
		logging.Latency(report.Took),
	)
	if en.events != nil {
		en.events.Publish(pubsub.TopicRetentionRun, report)
	}

	en.trail.RecordSystem(
		audit.New(sc.Actor(), audit.ActionRetentionRun, "audit-trail", "retention").
			WithDescription("retention run: %d scanned, %d archived, %d deleted, %d anonymized, %d conflicts",
				report.Scanned, report.Archived, report.Deleted, report.Anonymized, len(report.Conflicts)),
	)
	return report, nil
}

// winningPolicy returns the highest-priority enabled policy that
// selects the entry, or nil.
func winningPolicy(policies []*audit.RetentionPolicy, e *audit.Entry) *audit.RetentionPolicy {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if p.AppliesTo(e) {
			return p
		}
	}
	return nil
}

// anonymizeEntry rewrites the hash-exempt identity fields of an entry
// and swaps the result into the trail. Idempotent: an already
// anonymized entry is left alone.
func (en *Engine) anonymizeEntry(ctx context.Context, e *audit.Entry) (bool, error) {
	if e.Anonymized && hashchain.IsAnonymized(e.ActorID) {
		return false, nil
	}
	anon := e.Clone()
	anon.ActorID = hashchain.AnonymizedAlias(e.ActorID)
	anon.ActorName = ""
	anon.ActorEmail = ""
	anon.ActorRoles = nil
	anon.ClientIP = ""
	anon.UserAgent = ""
	anon.Metadata = nil
	for i := range anon.Changes {
		if anon.Changes[i].Sensitive {
			anon.Changes[i].OldValue = masking.RedactedValue
			anon.Changes[i].NewValue = masking.RedactedValue
		}
	}
	anon.Anonymized = true

	if !hashchain.Verify(anon) {
		// The hash input must not cover any rewritten field; a failure
		// here means the entry was already tampered with.
		return false, fmt.Errorf("entry %d does not verify after anonymization", e.SequenceNum)
	}
	if err := en.trail.Replace(ctx, anon); err != nil {
		return false, err
	}
	return true, nil
}
