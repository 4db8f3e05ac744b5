// Package audit defines the audit trail data model: entries, change
// records, tombstones, retention policies, archives and queries. The
// engines that chain, persist, search and expire entries live in their
// own packages and share these types.
package audit

// Action identifies what kind of operation an audit entry records.
type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionRead             Action = "read"
	ActionExport           Action = "export"
	ActionImport           Action = "import"
	ActionShare            Action = "share"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionLogin            Action = "login"
	ActionLogout           Action = "logout"
	ActionPermissionChange Action = "permission.change"
	ActionConfigChange     Action = "config.change"
	ActionSecurityAlert    Action = "security.alert"
	ActionBatchOperation   Action = "batch.operation"
	ActionArchive          Action = "archive"
	ActionAnonymize        Action = "anonymize"
	ActionRetentionRun     Action = "retention.run"
	ActionSearch           Action = "search"
	ActionIntegrityCheck   Action = "integrity.check"
)

// Valid reports whether the action is one of the defined constants.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionRead, ActionExport,
		ActionImport, ActionShare, ActionApprove, ActionReject,
		ActionLogin, ActionLogout, ActionPermissionChange, ActionConfigChange,
		ActionSecurityAlert, ActionBatchOperation,
		ActionArchive, ActionAnonymize, ActionRetentionRun, ActionSearch,
		ActionIntegrityCheck:
		return true
	}
	return false
}

// Severity classifies how much attention an entry deserves.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
	SeveritySecurity Severity = "security"
)

// Valid reports whether the severity is one of the defined constants.
func (s Severity) Valid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError,
		SeverityCritical, SeveritySecurity:
		return true
	}
	return false
}

// Rank orders severities for sorting; higher is more severe. Unknown
// severities rank with info.
func (s Severity) Rank() int {
	switch s {
	case SeverityDebug:
		return 0
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	case SeveritySecurity:
		return 5
	}
	return 1
}

// Framework names a regulatory framework an entry or policy is scoped to.
type Framework string

const (
	FrameworkGDPR     Framework = "GDPR"
	FrameworkSOC2     Framework = "SOC2"
	FrameworkHIPAA    Framework = "HIPAA"
	FrameworkPCIDSS   Framework = "PCI-DSS"
	FrameworkISO27001 Framework = "ISO-27001"
	FrameworkFIPS1402 Framework = "FIPS-140-2"
)

// Valid reports whether the framework is one of the defined constants.
func (f Framework) Valid() bool {
	switch f {
	case FrameworkGDPR, FrameworkSOC2, FrameworkHIPAA, FrameworkPCIDSS,
		FrameworkISO27001, FrameworkFIPS1402:
		return true
	}
	return false
}

// AllFrameworks returns the supported frameworks in a stable order.
func AllFrameworks() []Framework {
	return []Framework{
		FrameworkGDPR,
		FrameworkSOC2,
		FrameworkHIPAA,
		FrameworkPCIDSS,
		FrameworkISO27001,
		FrameworkFIPS1402,
	}
}

// Disposition records why a sequence number no longer has a live entry.
type Disposition string

const (
	DispositionArchived Disposition = "archived"
	DispositionDeleted  Disposition = "deleted"
)
