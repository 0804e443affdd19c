package sharing

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/labresult"
	"github.com/carelink/carelink/internal/domain/visit"
)

// Scope is the category of records a request or grant covers.
type Scope string

const (
	ScopeVisits     Scope = "visits"
	ScopeLabResults Scope = "lab_results"
	ScopeAll        Scope = "all"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeVisits, ScopeLabResults, ScopeAll:
		return true
	}
	return false
}

// Status is the lifecycle state of a share request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// ShareRequest is one ask by FromOrg to access ToOrg's records for a
// patient. Requests are never deleted, only status-transitioned.
type ShareRequest struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	FromOrgID   uuid.UUID  `db:"from_org_id" json:"from_org_id"`
	ToOrgID     uuid.UUID  `db:"to_org_id" json:"to_org_id"`
	RequestedBy uuid.UUID  `db:"requested_by" json:"requested_by"`
	Scope       Scope      `db:"scope" json:"scope"`
	Urgent      bool       `db:"urgent" json:"urgent"`
	Reason      *string    `db:"reason" json:"reason,omitempty"`
	Status      Status     `db:"status" json:"status"`
	GrantID     *uuid.UUID `db:"grant_id" json:"grant_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ShareGrant is the immutable ledger entry for a confirmed release.
// SourceOrgID owns the records; TargetOrgID received access.
type ShareGrant struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	SourceOrgID uuid.UUID `db:"source_org_id" json:"source_org_id"`
	TargetOrgID uuid.UUID `db:"target_org_id" json:"target_org_id"`
	RequestID   uuid.UUID `db:"request_id" json:"request_id"`
	Scope       Scope     `db:"scope" json:"scope"`
	VisitCount  int       `db:"visit_count" json:"visit_count"`
	LabCount    int       `db:"lab_count" json:"lab_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CandidateSet holds the records a reviewer may include in a share.
// Visits and lab results are fetched independently, never joined.
type CandidateSet struct {
	Visits     []*visit.Visit         `json:"visits"`
	LabResults []*labresult.LabResult `json:"lab_results"`
}

// deriveScope maps the selection shape onto the grant scope.
func deriveScope(visitCount, labCount int) Scope {
	switch {
	case visitCount > 0 && labCount > 0:
		return ScopeAll
	case labCount > 0:
		return ScopeLabResults
	default:
		return ScopeVisits
	}
}
