package hashchain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// AnonymousPrefix marks an actor id that has been replaced by its
// stable digest.
const AnonymousPrefix = "anonymized_"

// redactedPlaceholder stands in for sensitive change values in the
// hash input, so redacting them later does not alter the hash.
const redactedPlaceholder = "-"

// ActorDigest returns the stable digest of an actor id that the hash
// input covers instead of the raw id. For an already anonymized actor
// the digest is recovered from the alias, which is what keeps
// verification working across anonymization.
func ActorDigest(actorID string) string {
	if rest, ok := strings.CutPrefix(actorID, AnonymousPrefix); ok && rest != "" {
		return rest
	}
	sum := sha256.Sum256([]byte(actorID))
	return hex.EncodeToString(sum[:8])
}

// AnonymizedAlias returns the deterministic replacement for an actor
// id. Calling it on an alias returns the same alias.
func AnonymizedAlias(actorID string) string {
	return AnonymousPrefix + ActorDigest(actorID)
}

// IsAnonymized reports whether the actor id is already an alias.
func IsAnonymized(actorID string) bool {
	return strings.HasPrefix(actorID, AnonymousPrefix)
}

// ComputeHash computes the chained hash of an entry. The input covers
// the immutable fields plus the previous hash; it deliberately
// excludes everything the sanctioned anonymization path may rewrite:
// actor name, email, roles, client address, user agent, metadata and
// the values of sensitive change records. Change records are sorted
// by field path so the hash does not depend on insertion order.
func ComputeHash(e *audit.Entry) string {
	h := sha256.New()

	fmt.Fprintf(h, "%d|%q|%s|%q|%q|%q|%q|%d|%q|%t|%q|%q|%q|%q|%q",
		e.SequenceNum,
		e.ID,
		ActorDigest(e.ActorID),
		e.Action,
		e.EntityKind,
		e.EntityID,
		e.EntityName,
		e.Timestamp.UTC().UnixNano(),
		e.Severity,
		e.Success,
		e.ErrorDetail,
		e.Description,
		e.SessionID,
		e.CorrelationID,
		e.ParentID,
	)

	if len(e.Frameworks) > 0 {
		tags := make([]string, len(e.Frameworks))
		for i, f := range e.Frameworks {
			tags[i] = string(f)
		}
		sort.Strings(tags)
		fmt.Fprintf(h, "|f:%q", strings.Join(tags, ","))
	}

	if e.ContainsPII {
		paths := append([]string(nil), e.PIIFields...)
		sort.Strings(paths)
		fmt.Fprintf(h, "|p:%q", strings.Join(paths, ","))
	}

	for _, c := range sortedChanges(e.Changes) {
		oldVal, newVal := c.OldValue, c.NewValue
		if c.Sensitive {
			oldVal, newVal = redactedPlaceholder, redactedPlaceholder
		}
		fmt.Fprintf(h, "|c:%q,%q,%t,%q,%q", c.FieldPath, c.DataType, c.Sensitive, oldVal, newVal)
	}

	fmt.Fprintf(h, "|%s", e.PreviousHash)

	return hex.EncodeToString(h.Sum(nil))
}

// sortedChanges returns a copy of the change records ordered by field
// path. The copy keeps ComputeHash free of side effects on entries
// that concurrent readers may hold.
func sortedChanges(changes []audit.ChangeRecord) []audit.ChangeRecord {
	if len(changes) < 2 {
		return changes
	}
	out := append([]audit.ChangeRecord(nil), changes...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FieldPath < out[j].FieldPath
	})
	return out
}

// Verify recomputes the entry hash and compares it to the stored one
// in constant time. A false result is data about the entry, not an
// error condition.
func Verify(e *audit.Entry) bool {
	if e == nil || e.CurrentHash == "" {
		return false
	}
	want := ComputeHash(e)
	return subtle.ConstantTimeCompare([]byte(want), []byte(e.CurrentHash)) == 1
}
