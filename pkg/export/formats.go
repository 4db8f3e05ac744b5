package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

func writeJSON(w io.Writer, entries []*audit.Entry, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(entries)
}

func writeJSONL(w io.Writer, entries []*audit.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []*audit.Entry) (retErr error) {
	cw := csv.NewWriter(w)
	defer func() {
		cw.Flush()
		if err := cw.Error(); err != nil && retErr == nil {
			retErr = fmt.Errorf("csv flush: %w", err)
		}
	}()

	header := []string{
		"sequence_num",
		"id",
		"timestamp",
		"actor_id",
		"actor_name",
		"action",
		"entity_kind",
		"entity_id",
		"entity_name",
		"severity",
		"success",
		"error_detail",
		"description",
		"correlation_id",
		"frameworks",
		"contains_pii",
		"current_hash",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, e := range entries {
		fws := make([]string, len(e.Frameworks))
		for i, f := range e.Frameworks {
			fws[i] = string(f)
		}
		record := []string{
			strconv.FormatUint(e.SequenceNum, 10),
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.ActorID,
			e.ActorName,
			string(e.Action),
			e.EntityKind,
			e.EntityID,
			e.EntityName,
			string(e.Severity),
			strconv.FormatBool(e.Success),
			e.ErrorDetail,
			e.Description,
			e.CorrelationID,
			strings.Join(fws, ";"),
			strconv.FormatBool(e.ContainsPII),
			e.CurrentHash,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	return nil
}

// writeSyslog renders RFC 5424 messages, one per entry, facility
// local0.
func writeSyslog(w io.Writer, entries []*audit.Entry) error {
	const facility = 16
	for _, e := range entries {
		severity := 6 // informational
		switch e.Severity {
		case audit.SeveritySecurity:
			severity = 1
		case audit.SeverityCritical:
			severity = 2
		case audit.SeverityError:
			severity = 3
		case audit.SeverityWarning:
			severity = 4
		case audit.SeverityDebug:
			severity = 7
		}
		if !e.Success && severity > 3 {
			severity = 3 // error
		}
		priority := facility*8 + severity

		msg := fmt.Sprintf("<%d>1 %s cluso-audit trail %d - [audit@cluso seq=\"%d\" actor=%q action=%q entity=%q success=\"%t\"] %s\n",
			priority,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.SequenceNum,
			e.SequenceNum,
			e.ActorID,
			string(e.Action),
			e.EntityKind+"/"+e.EntityID,
			e.Success,
			e.Description,
		)
		if _, err := io.WriteString(w, msg); err != nil {
			return err
		}
	}
	return nil
}

// xmlEntry flattens the parts of an entry that XML consumers (mostly
// SIEM imports) care about.
type xmlEntry struct {
	XMLName       xml.Name  `xml:"entry"`
	SequenceNum   uint64    `xml:"sequence,attr"`
	ID            string    `xml:"id,attr"`
	Timestamp     time.Time `xml:"timestamp"`
	ActorID       string    `xml:"actor>id"`
	ActorName     string    `xml:"actor>name,omitempty"`
	Action        string    `xml:"action"`
	EntityKind    string    `xml:"entity>kind"`
	EntityID      string    `xml:"entity>id"`
	Severity      string    `xml:"severity"`
	Success       bool      `xml:"success"`
	Description   string    `xml:"description,omitempty"`
	CorrelationID string    `xml:"correlation_id,omitempty"`
	PreviousHash  string    `xml:"previous_hash"`
	CurrentHash   string    `xml:"current_hash"`
}

func writeXML(w io.Writer, entries []*audit.Entry) error {
	if _, err := io.WriteString(w, xml.Header+"<audit_trail>\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("  ", "  ")
	for _, e := range entries {
		x := xmlEntry{
			SequenceNum:   e.SequenceNum,
			ID:            e.ID,
			Timestamp:     e.Timestamp.UTC(),
			ActorID:       e.ActorID,
			ActorName:     e.ActorName,
			Action:        string(e.Action),
			EntityKind:    e.EntityKind,
			EntityID:      e.EntityID,
			Severity:      string(e.Severity),
			Success:       e.Success,
			Description:   e.Description,
			CorrelationID: e.CorrelationID,
			PreviousHash:  e.PreviousHash,
			CurrentHash:   e.CurrentHash,
		}
		if err := enc.Encode(x); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n</audit_trail>\n")
	return err
}
