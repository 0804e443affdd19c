package sharing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/audit"
	"github.com/carelink/carelink/internal/domain/labresult"
	"github.com/carelink/carelink/internal/domain/organization"
	"github.com/carelink/carelink/internal/domain/patient"
	"github.com/carelink/carelink/internal/domain/visit"
	"github.com/carelink/carelink/internal/platform/metrics"
)

// TxRunner executes fn inside a single storage transaction. Repositories
// called from fn pick the transaction up from the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction. Used in tests and by
// callers that already hold one.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ScopeRunner invokes fn once per storage scope the caller can see. The
// server passes a runner that visits every tenant schema with a bound
// connection; requests never need one because their connection is bound
// per request.
type ScopeRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Notifier delivers best-effort user notifications.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, typ, title, message string, actionURL *string, metadata map[string]string)
}

// AuditRecorder writes best-effort audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, actor audit.Actor, action, details, resourceType string, resourceID uuid.UUID, metadata map[string]string)
}

// PatientLookup resolves patient ids. Satisfied by the patient repository.
type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// ReviewerLookup lists the reviewers of an organization. Satisfied by the
// organization service.
type ReviewerLookup interface {
	ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*organization.Member, error)
}

// Service implements the inter-hospital record sharing workflow: request
// creation and tracking, candidate review, grant recording, and the
// status transitions between them.
type Service struct {
	requests  RequestRepository
	grants    GrantRepository
	visits    visit.Repository
	labs      labresult.Repository
	patients  PatientLookup
	reviewers ReviewerLookup
	notifier  Notifier
	trail     AuditRecorder
	runTx     TxRunner
	log       zerolog.Logger
}

func NewService(
	requests RequestRepository,
	grants GrantRepository,
	visits visit.Repository,
	labs labresult.Repository,
	patients PatientLookup,
	reviewers ReviewerLookup,
	notifier Notifier,
	trail AuditRecorder,
	runTx TxRunner,
	log zerolog.Logger,
) *Service {
	return &Service{
		requests:  requests,
		grants:    grants,
		visits:    visits,
		labs:      labs,
		patients:  patients,
		reviewers: reviewers,
		notifier:  notifier,
		trail:     trail,
		runTx:     runTx,
		log:       log,
	}
}

// CreateRequestInput carries the fields of a new share request.
type CreateRequestInput struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FromOrgID   uuid.UUID `json:"from_org_id"`
	ToOrgID     uuid.UUID `json:"to_org_id"`
	RequestedBy uuid.UUID `json:"-"`
	Scope       Scope     `json:"scope"`
	Urgent      bool      `json:"urgent"`
	Reason      *string   `json:"reason,omitempty"`
}

// CreateRequest validates and persists a new pending request, then
// notifies every reviewer of the requested-from organization.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*ShareRequest, error) {
	if in.PatientID == uuid.Nil {
		return nil, validationErr("patient_id", "required")
	}
	if in.FromOrgID == uuid.Nil || in.ToOrgID == uuid.Nil {
		return nil, validationErr("organization", "both organizations are required")
	}
	if in.FromOrgID == in.ToOrgID {
		return nil, validationErr("organization", "cannot request records from own organization")
	}
	if !in.Scope.Valid() {
		return nil, validationErr("scope", fmt.Sprintf("unknown scope %q", in.Scope))
	}
	if in.RequestedBy == uuid.Nil {
		return nil, validationErr("requested_by", "required")
	}
	if _, err := s.patients.GetByID(ctx, in.PatientID); err != nil {
		return nil, validationErr("patient_id", "unknown patient")
	}

	sr := &ShareRequest{
		PatientID:   in.PatientID,
		FromOrgID:   in.FromOrgID,
		ToOrgID:     in.ToOrgID,
		RequestedBy: in.RequestedBy,
		Scope:       in.Scope,
		Urgent:      in.Urgent,
		Reason:      in.Reason,
		Status:      StatusPending,
	}
	if err := s.requests.Create(ctx, sr); err != nil {
		return nil, storageErr("creating share request", err)
	}

	metrics.ShareRequestsCreated.WithLabelValues(string(sr.Scope)).Inc()
	s.trail.Record(ctx, audit.UserActor(in.RequestedBy), "share_request.create",
		fmt.Sprintf("requested %s for patient %s", sr.Scope, sr.PatientID),
		"share_request", sr.ID, map[string]string{
			"from_org": sr.FromOrgID.String(),
			"to_org":   sr.ToOrgID.String(),
		})
	s.notifyReviewers(ctx, sr)

	return sr, nil
}

func (s *Service) notifyReviewers(ctx context.Context, sr *ShareRequest) {
	admins, err := s.reviewers.ListAdmins(ctx, sr.ToOrgID)
	if err != nil {
		s.log.Error().Err(err).
			Str("request_id", sr.ID.String()).
			Msg("failed to list reviewers for share request notification")
		return
	}
	title := "New record sharing request"
	if sr.Urgent {
		title = "Urgent record sharing request"
	}
	url := "/share-requests/" + sr.ID.String()
	for _, admin := range admins {
		s.notifier.Notify(ctx, admin.UserID, "share_request", title,
			fmt.Sprintf("A hospital requested %s records for one of your patients.", sr.Scope),
			&url, map[string]string{"request_id": sr.ID.String()})
	}
}

// GetRequest returns a single request.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*ShareRequest, error) {
	sr, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return sr, nil
}

// ListIncoming returns requests addressed to the organization, newest first.
func (s *Service) ListIncoming(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	return s.requests.ListIncoming(ctx, orgID, limit, offset)
}

// ListOutgoing returns requests created by the organization, newest first.
func (s *Service) ListOutgoing(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	return s.requests.ListOutgoing(ctx, orgID, limit, offset)
}

// Resolve transitions a pending request to approved or rejected. Only a
// reviewer of the organization the request was addressed to may resolve
// it. Any other target status, or a request that is no longer pending,
// is an error and leaves the stored status untouched.
func (s *Service) Resolve(ctx context.Context, requestID uuid.UUID, status Status, grantID *uuid.UUID, reviewer, reviewerOrg uuid.UUID) error {
	if status != StatusApproved && status != StatusRejected {
		return validationErr("status", fmt.Sprintf("cannot resolve to %q", status))
	}

	sr, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return ErrNotFound
	}
	if sr.ToOrgID != reviewerOrg {
		return ErrForbidden
	}

	ok, err := s.requests.ResolvePending(ctx, requestID, status, grantID)
	if err != nil {
		return storageErr("resolving share request", err)
	}
	if !ok {
		return ErrInvalidState
	}

	metrics.ShareRequestsResolved.WithLabelValues(string(status)).Inc()

	if status == StatusRejected {
		s.trail.Record(ctx, audit.UserActor(reviewer), "share_request.reject",
			fmt.Sprintf("rejected request for patient %s", sr.PatientID),
			"share_request", sr.ID, nil)
		url := "/share-requests/" + sr.ID.String()
		s.notifier.Notify(ctx, sr.RequestedBy, "share_result", "Sharing request rejected",
			"Your record sharing request was rejected.", &url,
			map[string]string{"request_id": sr.ID.String()})
	}
	return nil
}

// ListCandidates returns the records the owning organization may release
// for the patient under the given scope. Visits and lab results are two
// independent reads.
func (s *Service) ListCandidates(ctx context.Context, patientID, ownerOrg uuid.UUID, scope Scope) (*CandidateSet, error) {
	if !scope.Valid() {
		return nil, validationErr("scope", fmt.Sprintf("unknown scope %q", scope))
	}

	set := &CandidateSet{
		Visits:     []*visit.Visit{},
		LabResults: []*labresult.LabResult{},
	}
	if scope == ScopeVisits || scope == ScopeAll {
		visits, err := s.visits.ListByPatientOrg(ctx, patientID, ownerOrg)
		if err != nil {
			return nil, storageErr("listing candidate visits", err)
		}
		if visits != nil {
			set.Visits = visits
		}
	}
	if scope == ScopeLabResults || scope == ScopeAll {
		labs, err := s.labs.ListByPatientOrg(ctx, patientID, ownerOrg)
		if err != nil {
			return nil, storageErr("listing candidate lab results", err)
		}
		if labs != nil {
			set.LabResults = labs
		}
	}
	return set, nil
}

// RequestCandidates resolves a request and lists its candidates. Only a
// reviewer of the organization holding the records may see them.
func (s *Service) RequestCandidates(ctx context.Context, requestID, reviewerOrg uuid.UUID) (*CandidateSet, error) {
	sr, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if sr.ToOrgID != reviewerOrg {
		return nil, ErrForbidden
	}
	return s.ListCandidates(ctx, sr.PatientID, sr.ToOrgID, sr.Scope)
}

// ConfirmShare releases the selected records to the requesting
// organization. The reviewer must belong to the organization the request
// was addressed to. The grant insert, record tagging, and request transition
// run in one transaction; if the request is no longer pending the whole
// sequence rolls back with ErrInvalidState. Notification and audit happen
// after commit and are best-effort.
func (s *Service) ConfirmShare(ctx context.Context, requestID uuid.UUID, visitIDs, labResultIDs []uuid.UUID, reviewer, reviewerOrg uuid.UUID) (*ShareGrant, error) {
	if len(visitIDs) == 0 && len(labResultIDs) == 0 {
		return nil, ErrEmptySelection
	}

	sr, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if sr.ToOrgID != reviewerOrg {
		return nil, ErrForbidden
	}
	if sr.Status != StatusPending {
		return nil, ErrInvalidState
	}

	var grant *ShareGrant
	err = s.runTx(ctx, func(ctx context.Context) error {
		g, err := s.RecordGrant(ctx, sr.PatientID, sr.ToOrgID, sr.FromOrgID, sr.ID,
			len(visitIDs), len(labResultIDs))
		if err != nil {
			return err
		}

		if err := s.visits.AppendSharedWith(ctx, visitIDs, sr.FromOrgID); err != nil {
			return storageErr("tagging shared visits", err)
		}
		if err := s.labs.AppendSharedWith(ctx, labResultIDs, sr.FromOrgID); err != nil {
			return storageErr("tagging shared lab results", err)
		}

		ok, err := s.requests.ResolvePending(ctx, sr.ID, StatusApproved, &g.ID)
		if err != nil {
			return storageErr("resolving share request", err)
		}
		if !ok {
			return ErrInvalidState
		}

		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ShareGrantsRecorded.Inc()
	metrics.ShareRequestsResolved.WithLabelValues(string(StatusApproved)).Inc()

	s.trail.Record(ctx, audit.UserActor(reviewer), "share_patient_records",
		fmt.Sprintf("shared %d visits and %d lab results for patient %s",
			grant.VisitCount, grant.LabCount, grant.PatientID),
		"share_grant", grant.ID, map[string]string{
			"request_id": sr.ID.String(),
			"scope":      string(grant.Scope),
		})

	url := "/share-requests/" + sr.ID.String()
	s.notifier.Notify(ctx, sr.RequestedBy, "share_result", "Sharing request approved",
		fmt.Sprintf("%d records were shared with your organization.",
			grant.VisitCount+grant.LabCount),
		&url, map[string]string{
			"request_id": sr.ID.String(),
			"grant_id":   grant.ID.String(),
		})

	return grant, nil
}

// RecordGrant appends a ledger entry for a confirmed release. Scope is
// derived from which record types the selection contained.
func (s *Service) RecordGrant(ctx context.Context, patientID, sourceOrg, targetOrg, requestID uuid.UUID, visitCount, labCount int) (*ShareGrant, error) {
	if visitCount < 0 || labCount < 0 {
		return nil, validationErr("count", "counts must be non-negative")
	}
	if visitCount == 0 && labCount == 0 {
		return nil, ErrEmptySelection
	}

	g := &ShareGrant{
		PatientID:   patientID,
		SourceOrgID: sourceOrg,
		TargetOrgID: targetOrg,
		RequestID:   requestID,
		Scope:       deriveScope(visitCount, labCount),
		VisitCount:  visitCount,
		LabCount:    labCount,
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return nil, storageErr("recording share grant", err)
	}
	return g, nil
}

// ListGrants returns grants received by targetOrg, newest first. A zero
// patientID returns grants for all patients.
func (s *Service) ListGrants(ctx context.Context, targetOrg, patientID uuid.UUID, limit, offset int) ([]*ShareGrant, int, error) {
	return s.grants.ListByTarget(ctx, targetOrg, patientID, limit, offset)
}

// ExpireStale transitions pending requests older than ttl to expired.
// Returns the number of requests expired.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := s.requests.ExpireStale(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, storageErr("expiring stale requests", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	metrics.ShareRequestsExpired.Add(float64(len(ids)))
	s.trail.Record(ctx, audit.SystemActor("expiry-sweeper"), "share_request.expire",
		fmt.Sprintf("expired %d stale requests", len(ids)),
		"share_request", uuid.Nil, map[string]string{
			"count": strconv.Itoa(len(ids)),
		})
	return len(ids), nil
}

// RunExpiryLoop runs ExpireStale on a fixed interval until ctx is done.
// Each tick sweeps every scope the runner yields, so a multi-tenant
// deployment expires requests in all tenant schemas.
func (s *Service) RunExpiryLoop(ctx context.Context, interval, ttl time.Duration, scopes ScopeRunner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := scopes(ctx, func(ctx context.Context) error {
				n, err := s.ExpireStale(ctx, ttl)
				if err != nil {
					return err
				}
				if n > 0 {
					s.log.Info().Int("expired", n).Msg("expired stale share requests")
				}
				return nil
			})
			if err != nil {
				s.log.Error().Err(err).Msg("share request expiry sweep failed")
			}
		}
	}
}
