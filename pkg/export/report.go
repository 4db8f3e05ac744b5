package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/security"
)

// Statistics summarize a set of entries for the human-readable report.
type Statistics struct {
	TotalEntries int
	Failures     int
	WithPII      int
	BySeverity   map[audit.Severity]int
	ByAction     map[audit.Action]int
	TopActors    []ActorStat
	TopEntities  []EntityStat
	FirstAt      time.Time
	LastAt       time.Time
}

// ActorStat counts one actor's entries.
type ActorStat struct {
	ActorID string
	Count   int
}

// EntityStat counts entries touching one entity.
type EntityStat struct {
	EntityKind string
	EntityID   string
	Count      int
}

// Calculate builds statistics over a set of entries.
func Calculate(entries []*audit.Entry) Statistics {
	stats := Statistics{
		TotalEntries: len(entries),
		BySeverity:   make(map[audit.Severity]int),
		ByAction:     make(map[audit.Action]int),
	}
	actorCounts := make(map[string]int)
	entityCounts := make(map[string]int)

	for _, e := range entries {
		stats.BySeverity[e.Severity]++
		stats.ByAction[e.Action]++
		if !e.Success {
			stats.Failures++
		}
		if e.ContainsPII {
			stats.WithPII++
		}
		actorCounts[e.ActorID]++
		entityCounts[e.EntityKind+"/"+e.EntityID]++
		if stats.FirstAt.IsZero() || e.Timestamp.Before(stats.FirstAt) {
			stats.FirstAt = e.Timestamp
		}
		if e.Timestamp.After(stats.LastAt) {
			stats.LastAt = e.Timestamp
		}
	}

	for actor, count := range actorCounts {
		stats.TopActors = append(stats.TopActors, ActorStat{ActorID: actor, Count: count})
	}
	sort.Slice(stats.TopActors, func(i, j int) bool {
		if stats.TopActors[i].Count != stats.TopActors[j].Count {
			return stats.TopActors[i].Count > stats.TopActors[j].Count
		}
		return stats.TopActors[i].ActorID < stats.TopActors[j].ActorID
	})

	for key, count := range entityCounts {
		kind, id := key, ""
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				kind, id = key[:i], key[i+1:]
				break
			}
		}
		stats.TopEntities = append(stats.TopEntities, EntityStat{EntityKind: kind, EntityID: id, Count: count})
	}
	sort.Slice(stats.TopEntities, func(i, j int) bool {
		if stats.TopEntities[i].Count != stats.TopEntities[j].Count {
			return stats.TopEntities[i].Count > stats.TopEntities[j].Count
		}
		return stats.TopEntities[i].EntityID < stats.TopEntities[j].EntityID
	})

	return stats
}

// WriteReport renders a plain-text summary of the matching entries.
func (ex *Exporter) WriteReport(ctx context.Context, sc *security.SecurityContext, w io.Writer, q *audit.Query) error {
	if err := sc.Require(security.CapViewAudit, security.CapExportAudit); err != nil {
		return err
	}
	entries, q, err := ex.collect(ctx, sc, q)
	if err != nil {
		return err
	}
	stats := Calculate(entries)

	write := func(format string, args ...interface{}) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	}

	if err := write("Audit Trail Report\n==================\n\n"); err != nil {
		return err
	}
	if err := write("Filters: %s\n", q.Summary()); err != nil {
		return err
	}
	if stats.TotalEntries > 0 {
		if err := write("Period:  %s to %s\n",
			stats.FirstAt.UTC().Format(time.RFC3339),
			stats.LastAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if err := write("\nTotal entries: %d\nFailed operations: %d\nEntries with PII: %d\n",
		stats.TotalEntries, stats.Failures, stats.WithPII); err != nil {
		return err
	}

	if err := write("\nBy severity:\n"); err != nil {
		return err
	}
	for _, sev := range []audit.Severity{
		audit.SeverityDebug, audit.SeverityInfo, audit.SeverityWarning,
		audit.SeverityError, audit.SeverityCritical, audit.SeveritySecurity,
	} {
		if count := stats.BySeverity[sev]; count > 0 {
			if err := write("  %-10s %d\n", sev, count); err != nil {
				return err
			}
		}
	}

	if err := write("\nBy action:\n"); err != nil {
		return err
	}
	actions := make([]audit.Action, 0, len(stats.ByAction))
	for a := range stats.ByAction {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	for _, a := range actions {
		if err := write("  %-20s %d\n", a, stats.ByAction[a]); err != nil {
			return err
		}
	}

	if err := write("\nTop actors:\n"); err != nil {
		return err
	}
	for i, actor := range stats.TopActors {
		if i >= 10 {
			break
		}
		if err := write("  %-30s %d entries\n", actor.ActorID, actor.Count); err != nil {
			return err
		}
	}

	if err := write("\nTop entities:\n"); err != nil {
		return err
	}
	for i, entity := range stats.TopEntities {
		if i >= 10 {
			break
		}
		if err := write("  %s/%s: %d entries\n", entity.EntityKind, entity.EntityID, entity.Count); err != nil {
			return err
		}
	}

	ex.record(sc, "report", q, stats.TotalEntries)
	return nil
}
