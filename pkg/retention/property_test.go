package retention

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/encryption"
)

// TestArchiveSealProperties checks that sealing and opening an archive
// is lossless over arbitrary entry content, plain and encrypted.
func TestArchiveSealProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	plain := &Engine{cfg: Config{}}

	key, err := encryption.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	crypto, err := encryption.NewEngine(key)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sealed := &Engine{cfg: Config{EncryptArchives: true}, crypto: crypto}

	roundTrip := func(en *Engine, encrypted bool) func(actor, description string, n uint8) bool {
		return func(actor, description string, n uint8) bool {
			count := int(n%7) + 1
			entries := make([]*audit.Entry, count)
			for i := range entries {
				entries[i] = &audit.Entry{
					ID:          "id",
					SequenceNum: uint64(i + 1),
					Timestamp:   time.Unix(1700000000+int64(i), 0).UTC(),
					ActorID:     actor,
					Action:      audit.ActionUpdate,
					EntityKind:  "customer",
					EntityID:    "c-1",
					Description: description,
					Severity:    audit.SeverityInfo,
					Success:     true,
				}
			}

			blob, checksum, err := en.sealArchive(entries)
			if err != nil {
				return false
			}
			manifest := &audit.Archive{Checksum: checksum, Encrypted: encrypted}
			opened, err := en.openArchive(manifest, blob)
			if err != nil || len(opened) != count {
				return false
			}
			for i, e := range opened {
				if e.SequenceNum != entries[i].SequenceNum ||
					e.ActorID != actor ||
					e.Description != description ||
					!e.Timestamp.Equal(entries[i].Timestamp) {
					return false
				}
			}
			return true
		}
	}

	properties.Property("plain archives round-trip losslessly", prop.ForAll(
		roundTrip(plain, false),
		gen.Identifier(),
		gen.AnyString(),
		gen.UInt8(),
	))

	properties.Property("encrypted archives round-trip losslessly", prop.ForAll(
		roundTrip(sealed, true),
		gen.Identifier(),
		gen.AnyString(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
