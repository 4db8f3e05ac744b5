// Package security gates every read, export and retention-management
// operation on the trail. Callers present a SecurityContext carrying
// four capability flags; a nil or zero context is denied everything
// (fail closed).
package security

import "errors"

// ErrUnauthorized is returned whenever a caller lacks the capability an
// operation requires. It is never retried.
var ErrUnauthorized = errors.New("unauthorized")

// Capability names one permission over the audit trail.
type Capability string

const (
	CapViewAudit       Capability = "audit:view"
	CapExportAudit     Capability = "audit:export"
	CapManageRetention Capability = "audit:manage-retention"
	CapViewSensitive   Capability = "audit:view-sensitive"
)

// SecurityContext identifies a caller and what it may do. Contexts are
// immutable after construction; the engine never upgrades one.
type SecurityContext struct {
	PrincipalID string   `json:"principal_id"`
	Roles       []string `json:"roles,omitempty"`

	CanViewAudit       bool `json:"can_view_audit"`
	CanExportAudit     bool `json:"can_export_audit"`
	CanManageRetention bool `json:"can_manage_retention"`
	CanViewSensitive   bool `json:"can_view_sensitive"`

	// System marks engine-internal operations. System contexts skip
	// self-referential search logging so a search that records itself
	// cannot recurse.
	System bool `json:"system,omitempty"`
}

// Has reports whether the context carries the capability.
func (sc *SecurityContext) Has(cap Capability) bool {
	if sc == nil {
		return false
	}
	switch cap {
	case CapViewAudit:
		return sc.CanViewAudit
	case CapExportAudit:
		return sc.CanExportAudit
	case CapManageRetention:
		return sc.CanManageRetention
	case CapViewSensitive:
		return sc.CanViewSensitive
	}
	return false
}

// Require returns ErrUnauthorized unless the context carries every
// listed capability.
func (sc *SecurityContext) Require(caps ...Capability) error {
	for _, c := range caps {
		if !sc.Has(c) {
			return ErrUnauthorized
		}
	}
	return nil
}

// Actor returns the principal id, or "system" for system contexts
// without one. Recorded on self-referential audit entries.
func (sc *SecurityContext) Actor() string {
	if sc == nil {
		return ""
	}
	if sc.PrincipalID == "" && sc.System {
		return "system"
	}
	return sc.PrincipalID
}

// SystemContext returns the context the engine uses for its own
// operations: full capabilities, no self-logging.
func SystemContext() *SecurityContext {
	return &SecurityContext{
		PrincipalID:        "system",
		CanViewAudit:       true,
		CanExportAudit:     true,
		CanManageRetention: true,
		CanViewSensitive:   true,
		System:             true,
	}
}

// Roles understood by FromRoles. Auditors read and export, compliance
// officers additionally see sensitive values and manage retention.
const (
	RoleAdmin             = "admin"
	RoleComplianceOfficer = "compliance-officer"
	RoleAuditor           = "auditor"
	RoleViewer            = "viewer"
)

// FromRoles builds a context from a principal's role set. Unknown
// roles grant nothing.
func FromRoles(principalID string, roles ...string) *SecurityContext {
	sc := &SecurityContext{PrincipalID: principalID, Roles: roles}
	for _, role := range roles {
		switch role {
		case RoleAdmin, RoleComplianceOfficer:
			sc.CanViewAudit = true
			sc.CanExportAudit = true
			sc.CanManageRetention = true
			sc.CanViewSensitive = true
		case RoleAuditor:
			sc.CanViewAudit = true
			sc.CanExportAudit = true
		case RoleViewer:
			sc.CanViewAudit = true
		}
	}
	return sc
}
