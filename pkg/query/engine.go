// Package query answers filtered, paginated searches over the live
// trail. Every read is capability-gated and masked by default;
// unmasked values require the view-sensitive capability and an
// explicit request. Searches by human principals are themselves
// recorded on the trail.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/masking"
	"github.com/dd0wney/cluso-audit/pkg/metrics"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/trail"
)

// Engine evaluates queries against the trail's live index.
type Engine struct {
	trail   *trail.Trail
	masker  *masking.Masker
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewEngine wires a query engine to a trail. A nil masker gets the
// default masking configuration.
func NewEngine(tr *trail.Trail, masker *masking.Masker, logger logging.Logger, reg *metrics.Registry) *Engine {
	if masker == nil {
		masker = masking.NewMasker(masking.DefaultMaskingConfig())
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Engine{
		trail:   tr,
		masker:  masker,
		logger:  logger.With(logging.Component("query")),
		metrics: reg,
	}
}

// Result is one page of matches.
type Result struct {
	Entries []*audit.Entry `json:"entries"`
	// Total is the number of matches before pagination.
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	// Masked reports whether sensitive values were redacted.
	Masked bool `json:"masked"`
	// Integrity carries the chain verification report when the query
	// asked for one.
	Integrity *hashchain.Report `json:"integrity,omitempty"`
	Took      time.Duration     `json:"took"`
}

// Search evaluates the query. Results are masked unless the caller
// holds the view-sensitive capability and asked for unmasked values.
func (en *Engine) Search(ctx context.Context, sc *security.SecurityContext, q *audit.Query) (*Result, error) {
	if err := sc.Require(security.CapViewAudit); err != nil {
		en.metrics.RecordUnauthorized("search")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == nil {
		q = &audit.Query{}
	}
	q.Normalize()

	start := time.Now()
	snapshot := en.trail.Index().Snapshot()

	matched := make([]*audit.Entry, 0, q.Limit)
	for _, e := range snapshot {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}
	sortEntries(matched, q.SortBy, q.SortDescending)

	total := len(matched)
	page := paginate(matched, q.Offset, q.Limit)

	unmask := q.IncludeSensitive && sc.Has(security.CapViewSensitive)
	maskedCount := 0
	if unmask {
		// Clone anyway so callers cannot mutate indexed entries.
		out := make([]*audit.Entry, len(page))
		for i, e := range page {
			out[i] = e.Clone()
		}
		page = out
	} else {
		page = en.masker.MaskEntries(page)
		maskedCount = len(page)
	}

	var report *hashchain.Report
	if q.VerifyIntegrity {
		report = en.verifyWindow(matched)
	}

	took := time.Since(start)
	en.metrics.RecordQuery("success", took, len(snapshot), maskedCount)
	en.logSearch(sc, q, total)

	return &Result{
		Entries:   page,
		Total:     total,
		Offset:    q.Offset,
		Limit:     q.Limit,
		Masked:    !unmask,
		Integrity: report,
		Took:      took,
	}, nil
}

// Get returns a single entry by ID, masked per the caller's
// capabilities.
func (en *Engine) Get(ctx context.Context, sc *security.SecurityContext, id string) (*audit.Entry, error) {
	if err := sc.Require(security.CapViewAudit); err != nil {
		en.metrics.RecordUnauthorized("get")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := en.trail.Index().Get(id)
	if e == nil {
		return nil, storage.ErrEntryNotFound
	}
	if sc.Has(security.CapViewSensitive) {
		return e.Clone(), nil
	}
	return en.masker.MaskEntry(e), nil
}

// VerifyRange runs chain verification over a sequence window and
// records the check on the trail. A zero toSeq means "to the tail".
func (en *Engine) VerifyRange(ctx context.Context, sc *security.SecurityContext, fromSeq, toSeq uint64) (*hashchain.Report, error) {
	if err := sc.Require(security.CapViewAudit); err != nil {
		en.metrics.RecordUnauthorized("verify")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	snapshot := en.trail.Index().Snapshot()
	window := make([]*audit.Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if fromSeq > 0 && e.SequenceNum < fromSeq {
			continue
		}
		if toSeq > 0 && e.SequenceNum > toSeq {
			continue
		}
		window = append(window, e)
	}
	tombstones := make(map[uint64]audit.Tombstone)
	for seq, t := range en.trail.Index().Tombstones() {
		if fromSeq > 0 && seq < fromSeq {
			continue
		}
		if toSeq > 0 && seq > toSeq {
			continue
		}
		tombstones[seq] = t
	}
	report := hashchain.VerifyChain(window, tombstones)
	if !report.Intact() {
		en.metrics.RecordIntegrityViolations(len(report.TamperedSequences()))
		en.logger.Error("chain verification found violations",
			logging.Int("violations", len(report.Violations)),
			logging.Sequence(report.FromSequence),
		)
	}

	if !sc.System {
		desc := fmt.Sprintf("verified sequences %d..%d: %d entries, %d violations",
			report.FromSequence, report.ToSequence, report.EntriesChecked, len(report.Violations))
		en.trail.RecordSystem(
			audit.New(sc.Actor(), audit.ActionIntegrityCheck, "audit-trail", "chain").
				WithDescription("%s", desc).
				WithSeverity(integritySeverity(report)),
		)
	}
	en.logger.Info("verified chain window",
		logging.Int("entries", report.EntriesChecked),
		logging.Int("tombstones", report.TombstonesSeen),
		logging.Int("violations", len(report.Violations)),
		logging.Latency(time.Since(start)),
	)
	return report, nil
}

// verifyWindow verifies the contiguous window spanned by the matched
// entries, tombstones included.
func (en *Engine) verifyWindow(matched []*audit.Entry) *hashchain.Report {
	if len(matched) == 0 {
		return hashchain.VerifyChain(nil, nil)
	}
	lo, hi := matched[0].SequenceNum, matched[0].SequenceNum
	for _, e := range matched {
		if e.SequenceNum < lo {
			lo = e.SequenceNum
		}
		if e.SequenceNum > hi {
			hi = e.SequenceNum
		}
	}
	window := make([]*audit.Entry, 0, hi-lo+1)
	for _, e := range en.trail.Index().Snapshot() {
		if e.SequenceNum >= lo && e.SequenceNum <= hi {
			window = append(window, e)
		}
	}
	tombstones := make(map[uint64]audit.Tombstone)
	for seq, t := range en.trail.Index().Tombstones() {
		if seq >= lo && seq <= hi {
			tombstones[seq] = t
		}
	}
	report := hashchain.VerifyChain(window, tombstones)
	if !report.Intact() {
		en.metrics.RecordIntegrityViolations(len(report.TamperedSequences()))
	}
	return report
}

// logSearch records the search itself. System contexts are exempt so
// engine-internal reads cannot recurse into the trail.
func (en *Engine) logSearch(sc *security.SecurityContext, q *audit.Query, total int) {
	if sc.System {
		return
	}
	en.trail.RecordSystem(
		audit.New(sc.Actor(), audit.ActionSearch, "audit-trail", "search").
			WithDescription("searched trail (%s): %d matches", q.Summary(), total),
	)
}

func integritySeverity(r *hashchain.Report) audit.Severity {
	if r.Intact() {
		return audit.SeverityInfo
	}
	return audit.SeverityCritical
}

// sortEntries orders matches. Ties fall back to sequence order so
// pagination is stable.
func sortEntries(entries []*audit.Entry, sortBy string, descending bool) {
	less := func(a, b *audit.Entry) bool { return a.SequenceNum < b.SequenceNum }
	switch sortBy {
	case audit.SortByTimestamp:
		less = func(a, b *audit.Entry) bool {
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.SequenceNum < b.SequenceNum
		}
	case audit.SortByActor:
		less = func(a, b *audit.Entry) bool {
			if c := strings.Compare(a.ActorID, b.ActorID); c != 0 {
				return c < 0
			}
			return a.SequenceNum < b.SequenceNum
		}
	case audit.SortByAction:
		less = func(a, b *audit.Entry) bool {
			if c := strings.Compare(string(a.Action), string(b.Action)); c != 0 {
				return c < 0
			}
			return a.SequenceNum < b.SequenceNum
		}
	case audit.SortBySeverity:
		less = func(a, b *audit.Entry) bool {
			if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
				return ra < rb
			}
			return a.SequenceNum < b.SequenceNum
		}
	}
	if descending {
		sort.SliceStable(entries, func(i, j int) bool { return less(entries[j], entries[i]) })
		return
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
}

func paginate(entries []*audit.Entry, offset, limit int) []*audit.Entry {
	if offset >= len(entries) {
		return []*audit.Entry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
