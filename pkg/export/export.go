// Package export renders query results to interchange formats: JSON,
// JSON Lines, CSV, RFC 5424 syslog and XML, plus a human-readable
// summary report. Exports are capability-gated and recorded on the
// trail like any other operation against it.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/query"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/trail"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatJSONL  Format = "jsonl"
	FormatCSV    Format = "csv"
	FormatSyslog Format = "syslog"
	FormatXML    Format = "xml"
)

// Valid reports whether the format is supported.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatJSONL, FormatCSV, FormatSyslog, FormatXML:
		return true
	}
	return false
}

// Options control one export.
type Options struct {
	Format Format
	// Query filters what gets exported; nil exports everything the
	// caller may see.
	Query *audit.Query
	// Pretty indents JSON output.
	Pretty bool
}

// Exporter streams entries out of the trail through the query engine,
// so exports inherit its masking and capability rules.
type Exporter struct {
	queries *query.Engine
	trail   *trail.Trail
	logger  logging.Logger
}

// NewExporter wires an exporter to the query engine.
func NewExporter(queries *query.Engine, tr *trail.Trail, logger logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Exporter{
		queries: queries,
		trail:   tr,
		logger:  logger.With(logging.Component("export")),
	}
}

// Export writes all matching entries to the writer in the requested
// format and returns how many were written. The export itself is
// recorded on the trail.
func (ex *Exporter) Export(ctx context.Context, sc *security.SecurityContext, w io.Writer, opts *Options) (int, error) {
	if err := sc.Require(security.CapViewAudit, security.CapExportAudit); err != nil {
		return 0, err
	}
	if opts == nil || !opts.Format.Valid() {
		format := Format("")
		if opts != nil {
			format = opts.Format
		}
		return 0, fmt.Errorf("unsupported export format %q", format)
	}

	entries, q, err := ex.collect(ctx, sc, opts.Query)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	switch opts.Format {
	case FormatJSON:
		err = writeJSON(w, entries, opts.Pretty)
	case FormatJSONL:
		err = writeJSONL(w, entries)
	case FormatCSV:
		err = writeCSV(w, entries)
	case FormatSyslog:
		err = writeSyslog(w, entries)
	case FormatXML:
		err = writeXML(w, entries)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s export: %w", opts.Format, err)
	}

	ex.logger.Info("exported entries",
		logging.String("format", string(opts.Format)),
		logging.Count(len(entries)),
		logging.Latency(time.Since(start)),
	)
	ex.record(sc, opts.Format, q, len(entries))
	return len(entries), nil
}

// ExportToFile exports to a file, returning any close error so a short
// write cannot pass silently.
func (ex *Exporter) ExportToFile(ctx context.Context, sc *security.SecurityContext, filename string, opts *Options) (n int, retErr error) {
	f, err := os.Create(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close export file: %w", closeErr)
		}
	}()
	return ex.Export(ctx, sc, f, opts)
}

// collect pages through the query engine until every match is in hand.
// Sorting and masking happen inside the engine.
func (ex *Exporter) collect(ctx context.Context, sc *security.SecurityContext, q *audit.Query) ([]*audit.Entry, *audit.Query, error) {
	if q == nil {
		q = &audit.Query{}
	}
	page := *q
	page.Limit = audit.MaxQueryLimit
	page.Offset = 0

	var out []*audit.Entry
	for {
		res, err := ex.queries.Search(ctx, sc, &page)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, res.Entries...)
		if len(out) >= res.Total || len(res.Entries) == 0 {
			return out, q, nil
		}
		page.Offset += len(res.Entries)
	}
}

// record logs the export on the trail. System contexts are exempt.
func (ex *Exporter) record(sc *security.SecurityContext, format Format, q *audit.Query, count int) {
	if sc.System {
		return
	}
	ex.trail.RecordSystem(
		audit.New(sc.Actor(), audit.ActionExport, "audit-trail", "export").
			WithDescription("exported %d entries as %s (%s)", count, format, q.Summary()),
	)
}
