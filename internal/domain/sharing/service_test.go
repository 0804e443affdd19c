package sharing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/audit"
	"github.com/carelink/carelink/internal/domain/labresult"
	"github.com/carelink/carelink/internal/domain/organization"
	"github.com/carelink/carelink/internal/domain/patient"
	"github.com/carelink/carelink/internal/domain/visit"
)

// -- Mock Repositories --

type mockRequestRepo struct {
	items map[uuid.UUID]*ShareRequest
	seq   int
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{items: make(map[uuid.UUID]*ShareRequest)}
}

func (m *mockRequestRepo) Create(_ context.Context, sr *ShareRequest) error {
	sr.ID = uuid.New()
	m.seq++
	sr.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	m.items[sr.ID] = sr
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*ShareRequest, error) {
	sr, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *sr
	return &cp, nil
}

func (m *mockRequestRepo) list(match func(*ShareRequest) bool) []*ShareRequest {
	var result []*ShareRequest
	for _, sr := range m.items {
		if match(sr) {
			cp := *sr
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (m *mockRequestRepo) ListIncoming(_ context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	result := m.list(func(sr *ShareRequest) bool { return sr.ToOrgID == orgID })
	return result, len(result), nil
}

func (m *mockRequestRepo) ListOutgoing(_ context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	result := m.list(func(sr *ShareRequest) bool { return sr.FromOrgID == orgID })
	return result, len(result), nil
}

func (m *mockRequestRepo) ResolvePending(_ context.Context, id uuid.UUID, status Status, grantID *uuid.UUID) (bool, error) {
	sr, ok := m.items[id]
	if !ok || sr.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	sr.Status = status
	sr.GrantID = grantID
	sr.ResolvedAt = &now
	return true, nil
}

func (m *mockRequestRepo) ExpireStale(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, sr := range m.items {
		if sr.Status == StatusPending && sr.CreatedAt.Before(before) {
			now := time.Now()
			sr.Status = StatusExpired
			sr.ResolvedAt = &now
			ids = append(ids, sr.ID)
		}
	}
	return ids, nil
}

type mockGrantRepo struct {
	items map[uuid.UUID]*ShareGrant
	seq   int
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{items: make(map[uuid.UUID]*ShareGrant)}
}

func (m *mockGrantRepo) Create(_ context.Context, g *ShareGrant) error {
	g.ID = uuid.New()
	m.seq++
	g.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	m.items[g.ID] = g
	return nil
}

func (m *mockGrantRepo) ListByTarget(_ context.Context, targetOrg, patientID uuid.UUID, limit, offset int) ([]*ShareGrant, int, error) {
	var result []*ShareGrant
	for _, g := range m.items {
		if g.TargetOrgID != targetOrg {
			continue
		}
		if patientID != uuid.Nil && g.PatientID != patientID {
			continue
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, len(result), nil
}

type mockVisitRepo struct {
	items map[uuid.UUID]*visit.Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{items: make(map[uuid.UUID]*visit.Visit)}
}

func (m *mockVisitRepo) Create(_ context.Context, v *visit.Visit) error {
	v.ID = uuid.New()
	if v.SharedWith == nil {
		v.SharedWith = []uuid.UUID{}
	}
	m.items[v.ID] = v
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockVisitRepo) Update(_ context.Context, v *visit.Visit) error { return nil }
func (m *mockVisitRepo) Delete(_ context.Context, id uuid.UUID) error  { return nil }

func (m *mockVisitRepo) List(_ context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*visit.Visit, int, error) {
	return nil, 0, nil
}

func (m *mockVisitRepo) ListByPatientOrg(_ context.Context, patientID, orgID uuid.UUID) ([]*visit.Visit, error) {
	var result []*visit.Visit
	for _, v := range m.items {
		if v.PatientID == patientID && v.OrganizationID == orgID {
			result = append(result, v)
		}
	}
	return result, nil
}

func (m *mockVisitRepo) AppendSharedWith(_ context.Context, ids []uuid.UUID, orgID uuid.UUID) error {
	for _, id := range ids {
		v, ok := m.items[id]
		if !ok {
			continue
		}
		seen := false
		for _, o := range v.SharedWith {
			if o == orgID {
				seen = true
			}
		}
		if !seen {
			v.SharedWith = append(v.SharedWith, orgID)
		}
	}
	return nil
}

type mockLabRepo struct {
	items map[uuid.UUID]*labresult.LabResult
}

func newMockLabRepo() *mockLabRepo {
	return &mockLabRepo{items: make(map[uuid.UUID]*labresult.LabResult)}
}

func (m *mockLabRepo) Create(_ context.Context, lr *labresult.LabResult) error {
	lr.ID = uuid.New()
	if lr.SharedWith == nil {
		lr.SharedWith = []uuid.UUID{}
	}
	m.items[lr.ID] = lr
	return nil
}

func (m *mockLabRepo) GetByID(_ context.Context, id uuid.UUID) (*labresult.LabResult, error) {
	lr, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return lr, nil
}

func (m *mockLabRepo) Update(_ context.Context, lr *labresult.LabResult) error { return nil }
func (m *mockLabRepo) Delete(_ context.Context, id uuid.UUID) error           { return nil }

func (m *mockLabRepo) List(_ context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*labresult.LabResult, int, error) {
	return nil, 0, nil
}

func (m *mockLabRepo) ListByPatientOrg(_ context.Context, patientID, orgID uuid.UUID) ([]*labresult.LabResult, error) {
	var result []*labresult.LabResult
	for _, lr := range m.items {
		if lr.PatientID == patientID && lr.OrganizationID == orgID {
			result = append(result, lr)
		}
	}
	return result, nil
}

func (m *mockLabRepo) AppendSharedWith(_ context.Context, ids []uuid.UUID, orgID uuid.UUID) error {
	for _, id := range ids {
		lr, ok := m.items[id]
		if !ok {
			continue
		}
		seen := false
		for _, o := range lr.SharedWith {
			if o == orgID {
				seen = true
			}
		}
		if !seen {
			lr.SharedWith = append(lr.SharedWith, orgID)
		}
	}
	return nil
}

type mockPatients struct {
	known map[uuid.UUID]bool
}

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if !m.known[id] {
		return nil, fmt.Errorf("not found")
	}
	return &patient.Patient{ID: id}, nil
}

type mockReviewers struct {
	admins map[uuid.UUID][]uuid.UUID // orgID -> admin user ids
}

func (m *mockReviewers) ListAdmins(_ context.Context, orgID uuid.UUID) ([]*organization.Member, error) {
	var result []*organization.Member
	for _, uid := range m.admins[orgID] {
		result = append(result, &organization.Member{OrgID: orgID, UserID: uid, Role: "admin", Active: true})
	}
	return result, nil
}

type notifyCall struct {
	recipient uuid.UUID
	typ       string
	title     string
}

type mockNotifier struct {
	calls []notifyCall
}

func (m *mockNotifier) Notify(_ context.Context, recipientID uuid.UUID, typ, title, _ string, _ *string, _ map[string]string) {
	m.calls = append(m.calls, notifyCall{recipient: recipientID, typ: typ, title: title})
}

type auditCall struct {
	actor  audit.Actor
	action string
}

type mockTrail struct {
	calls []auditCall
}

func (m *mockTrail) Record(_ context.Context, actor audit.Actor, action, _, _ string, _ uuid.UUID, _ map[string]string) {
	m.calls = append(m.calls, auditCall{actor: actor, action: action})
}

func (m *mockTrail) countAction(action string) int {
	n := 0
	for _, c := range m.calls {
		if c.action == action {
			n++
		}
	}
	return n
}

// -- Fixture --

type fixture struct {
	svc       *Service
	requests  *mockRequestRepo
	grants    *mockGrantRepo
	visits    *mockVisitRepo
	labs      *mockLabRepo
	patients  *mockPatients
	reviewers *mockReviewers
	notifier  *mockNotifier
	trail     *mockTrail

	patientID uuid.UUID
	orgA      uuid.UUID // requesting org
	orgB      uuid.UUID // record-owning org
	requester uuid.UUID // user at orgA
	reviewer  uuid.UUID // admin at orgB
}

func newFixture() *fixture {
	f := &fixture{
		requests:  newMockRequestRepo(),
		grants:    newMockGrantRepo(),
		visits:    newMockVisitRepo(),
		labs:      newMockLabRepo(),
		patientID: uuid.New(),
		orgA:      uuid.New(),
		orgB:      uuid.New(),
		requester: uuid.New(),
		reviewer:  uuid.New(),
	}
	f.patients = &mockPatients{known: map[uuid.UUID]bool{f.patientID: true}}
	f.reviewers = &mockReviewers{admins: map[uuid.UUID][]uuid.UUID{f.orgB: {f.reviewer}}}
	f.notifier = &mockNotifier{}
	f.trail = &mockTrail{}
	f.svc = NewService(f.requests, f.grants, f.visits, f.labs, f.patients,
		f.reviewers, f.notifier, f.trail, PassthroughTx, zerolog.Nop())
	return f
}

func (f *fixture) createRequest(t *testing.T, scope Scope) *ShareRequest {
	t.Helper()
	sr, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		PatientID:   f.patientID,
		FromOrgID:   f.orgA,
		ToOrgID:     f.orgB,
		RequestedBy: f.requester,
		Scope:       scope,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return sr
}

func (f *fixture) addVisit(t *testing.T) *visit.Visit {
	t.Helper()
	v := &visit.Visit{PatientID: f.patientID, OrganizationID: f.orgB, Status: "finished", StartedAt: time.Now()}
	if err := f.visits.Create(context.Background(), v); err != nil {
		t.Fatalf("creating visit: %v", err)
	}
	return v
}

func (f *fixture) addLabResult(t *testing.T) *labresult.LabResult {
	t.Helper()
	lr := &labresult.LabResult{PatientID: f.patientID, OrganizationID: f.orgB,
		TestCode: "718-7", TestName: "Hemoglobin", Status: "final", EffectiveAt: time.Now()}
	if err := f.labs.Create(context.Background(), lr); err != nil {
		t.Fatalf("creating lab result: %v", err)
	}
	return lr
}

// -- Tests --

func TestCreateRequest_PendingAndListable(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)

	if sr.Status != StatusPending {
		t.Errorf("expected pending, got %s", sr.Status)
	}

	outgoing, _, err := f.svc.ListOutgoing(context.Background(), f.orgA, 20, 0)
	if err != nil {
		t.Fatalf("ListOutgoing: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].ID != sr.ID {
		t.Errorf("request not listed in outgoing for requesting org")
	}

	incoming, _, err := f.svc.ListIncoming(context.Background(), f.orgB, 20, 0)
	if err != nil {
		t.Fatalf("ListIncoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != sr.ID {
		t.Errorf("request not listed in incoming for requested-from org")
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name string
		in   CreateRequestInput
	}{
		{"same org", CreateRequestInput{PatientID: f.patientID, FromOrgID: f.orgA, ToOrgID: f.orgA, RequestedBy: f.requester, Scope: ScopeAll}},
		{"unknown patient", CreateRequestInput{PatientID: uuid.New(), FromOrgID: f.orgA, ToOrgID: f.orgB, RequestedBy: f.requester, Scope: ScopeAll}},
		{"missing patient", CreateRequestInput{FromOrgID: f.orgA, ToOrgID: f.orgB, RequestedBy: f.requester, Scope: ScopeAll}},
		{"bad scope", CreateRequestInput{PatientID: f.patientID, FromOrgID: f.orgA, ToOrgID: f.orgB, RequestedBy: f.requester, Scope: "everything"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRequest(context.Background(), tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateRequest_NotifiesReviewers(t *testing.T) {
	f := newFixture()
	second := uuid.New()
	f.reviewers.admins[f.orgB] = append(f.reviewers.admins[f.orgB], second)

	f.createRequest(t, ScopeLabResults)

	if len(f.notifier.calls) != 2 {
		t.Fatalf("expected 2 reviewer notifications, got %d", len(f.notifier.calls))
	}
	recipients := map[uuid.UUID]bool{}
	for _, call := range f.notifier.calls {
		if call.typ != "share_request" {
			t.Errorf("unexpected notification type %q", call.typ)
		}
		recipients[call.recipient] = true
	}
	if !recipients[f.reviewer] || !recipients[second] {
		t.Error("not all reviewers notified")
	}
}

func TestResolve_NonPendingFails(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)

	if err := f.svc.Resolve(context.Background(), sr.ID, StatusRejected, nil, f.reviewer, f.orgB); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	err := f.svc.Resolve(context.Background(), sr.ID, StatusApproved, nil, f.reviewer, f.orgB)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	got, err := f.svc.GetRequest(context.Background(), sr.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status changed by failed resolve: %s", got.Status)
	}
}

func TestResolve_InvalidTargetStatus(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)

	for _, status := range []Status{StatusPending, StatusExpired, "bogus"} {
		err := f.svc.Resolve(context.Background(), sr.ID, status, nil, f.reviewer, f.orgB)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("resolve to %q: expected ValidationError, got %v", status, err)
		}
	}
}

func TestConfirmShare_EmptySelection(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeAll)
	v := f.addVisit(t)

	_, err := f.svc.ConfirmShare(context.Background(), sr.ID, nil, nil, f.reviewer, f.orgB)
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusPending {
		t.Errorf("request transitioned on empty selection: %s", got.Status)
	}
	if len(f.grants.items) != 0 {
		t.Error("grant created on empty selection")
	}
	if len(v.SharedWith) != 0 {
		t.Error("record tagged on empty selection")
	}
}

func TestConfirmShare_Visits(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)
	v1 := f.addVisit(t)
	v2 := f.addVisit(t)

	grant, err := f.svc.ConfirmShare(context.Background(), sr.ID,
		[]uuid.UUID{v1.ID, v2.ID}, nil, f.reviewer, f.orgB)
	if err != nil {
		t.Fatalf("ConfirmShare: %v", err)
	}

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if got.GrantID == nil || *got.GrantID != grant.ID {
		t.Error("request not linked to grant")
	}

	if grant.VisitCount != 2 || grant.LabCount != 0 {
		t.Errorf("wrong counts: visits=%d labs=%d", grant.VisitCount, grant.LabCount)
	}
	if grant.Scope != ScopeVisits {
		t.Errorf("expected derived scope visits, got %s", grant.Scope)
	}

	for _, v := range []*visit.Visit{v1, v2} {
		found := false
		for _, o := range v.SharedWith {
			if o == f.orgA {
				found = true
			}
		}
		if !found {
			t.Errorf("visit %s not tagged with target org", v.ID)
		}
	}
}

func TestConfirmShare_SecondCallFails(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)
	v := f.addVisit(t)

	if _, err := f.svc.ConfirmShare(context.Background(), sr.ID, []uuid.UUID{v.ID}, nil, f.reviewer, f.orgB); err != nil {
		t.Fatalf("first ConfirmShare: %v", err)
	}

	_, err := f.svc.ConfirmShare(context.Background(), sr.ID, []uuid.UUID{v.ID}, nil, f.reviewer, f.orgB)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second confirm, got %v", err)
	}
	if len(f.grants.items) != 1 {
		t.Errorf("expected exactly 1 grant, got %d", len(f.grants.items))
	}
	if len(v.SharedWith) != 1 {
		t.Errorf("shared_with duplicated: %v", v.SharedWith)
	}
}

func TestReviewRestrictedToOwningOrg(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)
	v := f.addVisit(t)
	requesterAdmin := uuid.New() // admin at the requesting org

	if _, err := f.svc.RequestCandidates(context.Background(), sr.ID, f.orgA); !errors.Is(err, ErrForbidden) {
		t.Errorf("candidates: expected ErrForbidden for requesting org, got %v", err)
	}

	_, err := f.svc.ConfirmShare(context.Background(), sr.ID, []uuid.UUID{v.ID}, nil, requesterAdmin, f.orgA)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("confirm: expected ErrForbidden for requesting org, got %v", err)
	}

	err = f.svc.Resolve(context.Background(), sr.ID, StatusRejected, nil, requesterAdmin, f.orgA)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("reject: expected ErrForbidden for requesting org, got %v", err)
	}

	// The foreign-org attempts must leave no trace.
	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusPending {
		t.Errorf("status changed by forbidden review: %s", got.Status)
	}
	if len(f.grants.items) != 0 {
		t.Error("forbidden confirm recorded a grant")
	}
	if len(v.SharedWith) != 0 {
		t.Error("forbidden confirm tagged records")
	}

	// The owning organization's reviewer still can.
	if _, err := f.svc.ConfirmShare(context.Background(), sr.ID, []uuid.UUID{v.ID}, nil, f.reviewer, f.orgB); err != nil {
		t.Fatalf("owning org confirm: %v", err)
	}
}

func TestConfirmShare_UrgentLabScenario(t *testing.T) {
	// Hospital A requests lab results from Hospital B, urgent, pre-op
	// clearance. B reviews 3 candidates and releases 2.
	f := newFixture()
	reason := "pre-op clearance"
	sr, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		PatientID:   f.patientID,
		FromOrgID:   f.orgA,
		ToOrgID:     f.orgB,
		RequestedBy: f.requester,
		Scope:       ScopeLabResults,
		Urgent:      true,
		Reason:      &reason,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	l1 := f.addLabResult(t)
	l2 := f.addLabResult(t)
	f.addLabResult(t)

	set, err := f.svc.RequestCandidates(context.Background(), sr.ID, f.orgB)
	if err != nil {
		t.Fatalf("RequestCandidates: %v", err)
	}
	if len(set.LabResults) != 3 {
		t.Fatalf("expected 3 candidate lab results, got %d", len(set.LabResults))
	}
	if len(set.Visits) != 0 {
		t.Fatalf("lab_results scope must not return visits")
	}

	f.notifier.calls = nil // drop the reviewer notifications from create

	grant, err := f.svc.ConfirmShare(context.Background(), sr.ID, nil,
		[]uuid.UUID{l1.ID, l2.ID}, f.reviewer, f.orgB)
	if err != nil {
		t.Fatalf("ConfirmShare: %v", err)
	}

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if grant.SourceOrgID != f.orgB || grant.TargetOrgID != f.orgA {
		t.Errorf("grant orgs wrong: source=%s target=%s", grant.SourceOrgID, grant.TargetOrgID)
	}
	if grant.Scope != ScopeLabResults || grant.LabCount != 2 || grant.VisitCount != 0 {
		t.Errorf("grant shape wrong: %+v", grant)
	}

	if len(f.notifier.calls) != 1 {
		t.Fatalf("expected exactly 1 notification to the requester, got %d", len(f.notifier.calls))
	}
	if f.notifier.calls[0].recipient != f.requester {
		t.Error("notification sent to wrong user")
	}

	if n := f.trail.countAction("share_patient_records"); n != 1 {
		t.Errorf("expected exactly 1 share_patient_records audit entry, got %d", n)
	}

	// Round trip through the ledger.
	grants, _, err := f.svc.ListGrants(context.Background(), f.orgA, f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListGrants: %v", err)
	}
	if len(grants) != 1 || grants[0].ID != grant.ID {
		t.Errorf("ledger round trip failed: %+v", grants)
	}
}

func TestConfirmShare_AllScope(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeAll)
	v := f.addVisit(t)
	l := f.addLabResult(t)

	grant, err := f.svc.ConfirmShare(context.Background(), sr.ID,
		[]uuid.UUID{v.ID}, []uuid.UUID{l.ID}, f.reviewer, f.orgB)
	if err != nil {
		t.Fatalf("ConfirmShare: %v", err)
	}
	if grant.Scope != ScopeAll {
		t.Errorf("expected derived scope all, got %s", grant.Scope)
	}
}

func TestReject_NoGrantNoTagging(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)
	v := f.addVisit(t)

	if err := f.svc.Resolve(context.Background(), sr.ID, StatusRejected, nil, f.reviewer, f.orgB); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(f.grants.items) != 0 {
		t.Error("rejection produced a ledger entry")
	}
	if len(v.SharedWith) != 0 {
		t.Error("rejection mutated shared_with")
	}

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	// Requester learns about the rejection.
	found := false
	for _, call := range f.notifier.calls {
		if call.recipient == f.requester && call.typ == "share_result" {
			found = true
		}
	}
	if !found {
		t.Error("requester not notified of rejection")
	}
}

func TestListCandidates_ScopeFiltering(t *testing.T) {
	f := newFixture()
	f.addVisit(t)
	f.addLabResult(t)
	f.addLabResult(t)

	visits, err := f.svc.ListCandidates(context.Background(), f.patientID, f.orgB, ScopeVisits)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(visits.Visits) != 1 || len(visits.LabResults) != 0 {
		t.Errorf("visits scope wrong: %d visits, %d labs", len(visits.Visits), len(visits.LabResults))
	}

	labs, err := f.svc.ListCandidates(context.Background(), f.patientID, f.orgB, ScopeLabResults)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(labs.Visits) != 0 || len(labs.LabResults) != 2 {
		t.Errorf("lab_results scope wrong: %d visits, %d labs", len(labs.Visits), len(labs.LabResults))
	}

	all, err := f.svc.ListCandidates(context.Background(), f.patientID, f.orgB, ScopeAll)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(all.Visits) != 1 || len(all.LabResults) != 2 {
		t.Errorf("all scope wrong: %d visits, %d labs", len(all.Visits), len(all.LabResults))
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)

	// Backdate the stored request past the TTL.
	f.requests.items[sr.ID].CreatedAt = time.Now().Add(-40 * 24 * time.Hour)
	fresh := f.createRequest(t, ScopeVisits)

	n, err := f.svc.ExpireStale(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
	gotFresh, _ := f.svc.GetRequest(context.Background(), fresh.ID)
	if gotFresh.Status != StatusPending {
		t.Errorf("fresh request must stay pending, got %s", gotFresh.Status)
	}

	// Sweep is attributed to the system, not a user.
	found := false
	for _, call := range f.trail.calls {
		if call.action == "share_request.expire" {
			found = true
			if call.actor.Kind != audit.ActorSystem || call.actor.Subsystem != "expiry-sweeper" {
				t.Errorf("expiry audited with wrong actor: %+v", call.actor)
			}
		}
	}
	if !found {
		t.Error("expiry sweep not audited")
	}
}

func TestRunExpiryLoop_SweepsEachScope(t *testing.T) {
	f := newFixture()
	sr := f.createRequest(t, ScopeVisits)
	f.requests.items[sr.ID].CreatedAt = time.Now().Add(-40 * 24 * time.Hour)

	swept := make(chan struct{}, 1)
	scopes := func(ctx context.Context, fn func(ctx context.Context) error) error {
		err := fn(ctx)
		select {
		case swept <- struct{}{}:
		default:
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.RunExpiryLoop(ctx, 5*time.Millisecond, 30*24*time.Hour, scopes)
	}()

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("expiry loop never swept")
	}
	cancel()
	<-done

	got, _ := f.svc.GetRequest(context.Background(), sr.ID)
	if got.Status != StatusExpired {
		t.Errorf("expected expired after sweep, got %s", got.Status)
	}
}

func TestDeriveScope(t *testing.T) {
	tests := []struct {
		visits, labs int
		want         Scope
	}{
		{2, 0, ScopeVisits},
		{0, 3, ScopeLabResults},
		{1, 1, ScopeAll},
	}
	for _, tt := range tests {
		if got := deriveScope(tt.visits, tt.labs); got != tt.want {
			t.Errorf("deriveScope(%d, %d) = %s, want %s", tt.visits, tt.labs, got, tt.want)
		}
	}
}

func TestStatusAndScopeValidity(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected, StatusExpired} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("done").Valid() {
		t.Error("unknown status accepted")
	}
	if StatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []Status{StatusApproved, StatusRejected, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, sc := range []Scope{ScopeVisits, ScopeLabResults, ScopeAll} {
		if !sc.Valid() {
			t.Errorf("%s should be valid", sc)
		}
	}
	if Scope("everything").Valid() {
		t.Error("unknown scope accepted")
	}
}
