package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/model"
	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/repo"
)

// fakeGateway is an in-memory identity provider. acceptRoles narrows the
// role vocabulary the provider accepts; visibilityDelay makes fresh
// membership writes invisible to that many subsequent list calls, modeling
// the provider's eventual consistency.
type fakeGateway struct {
	mu              sync.Mutex
	orgs            map[string]*identity.Organization
	memberships     map[string][]identity.Membership
	invitations     []identity.Invitation
	acceptRoles     []string
	visibilityDelay int
	delayed         map[string]int
	createOrgErr    error
	updateMetaErr   error
	inviteErr       error
	nextID          int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orgs:        map[string]*identity.Organization{},
		memberships: map[string][]identity.Membership{},
		delayed:     map[string]int{},
	}
}

func (g *fakeGateway) roleAccepted(role string) bool {
	if len(g.acceptRoles) == 0 {
		return true
	}
	for _, r := range g.acceptRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (g *fakeGateway) CreateOrganization(_ context.Context, name string, metadata identity.MetadataPatch) (*identity.Organization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createOrgErr != nil {
		return nil, g.createOrgErr
	}
	g.nextID++
	org := &identity.Organization{
		ID:   fmt.Sprintf("org_%d", g.nextID),
		Name: name,
		Metadata: identity.OrgMetadata{
			Private: cloneMeta(metadata.Private),
			Public:  cloneMeta(metadata.Public),
		},
	}
	g.orgs[org.ID] = org
	return org, nil
}

func (g *fakeGateway) GetOrganization(_ context.Context, orgID string) (*identity.Organization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	org, ok := g.orgs[orgID]
	if !ok {
		return nil, &identity.ProviderError{Op: "getOrganization", StatusCode: http.StatusNotFound, Message: "not found"}
	}
	out := *org
	out.Metadata = identity.OrgMetadata{Private: cloneMeta(org.Metadata.Private), Public: cloneMeta(org.Metadata.Public)}
	return &out, nil
}

func (g *fakeGateway) UpdateOrganizationMetadata(_ context.Context, orgID string, patch identity.MetadataPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateMetaErr != nil {
		return g.updateMetaErr
	}
	org, ok := g.orgs[orgID]
	if !ok {
		return &identity.ProviderError{Op: "updateOrganization", StatusCode: http.StatusNotFound, Message: "not found"}
	}
	org.Metadata.Private = applyPatch(org.Metadata.Private, patch.Private)
	org.Metadata.Public = applyPatch(org.Metadata.Public, patch.Public)
	return nil
}

func (g *fakeGateway) CreateMembership(_ context.Context, orgID, userID string, candidateRoles []string) (*identity.Membership, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var attempts []identity.RoleAttempt
	for _, role := range candidateRoles {
		if !g.roleAccepted(role) {
			attempts = append(attempts, identity.RoleAttempt{Role: role, Reason: "role not accepted"})
			continue
		}
		g.nextID++
		m := identity.Membership{
			ID:             fmt.Sprintf("mem_%d", g.nextID),
			OrganizationID: orgID,
			UserID:         userID,
			Role:           role,
		}
		g.memberships[userID] = append(g.memberships[userID], m)
		if g.visibilityDelay > 0 {
			g.delayed[m.ID] = g.visibilityDelay
		}
		return &m, nil
	}
	return nil, &identity.MembershipError{OrganizationID: orgID, UserID: userID, Attempts: attempts}
}

func (g *fakeGateway) UpdateMembershipRole(_ context.Context, orgID, membershipID string, candidateRoles []string) (*identity.Membership, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var attempts []identity.RoleAttempt
	for _, role := range candidateRoles {
		if !g.roleAccepted(role) {
			attempts = append(attempts, identity.RoleAttempt{Role: role, Reason: "role not accepted"})
			continue
		}
		for userID, list := range g.memberships {
			for i := range list {
				if list[i].ID == membershipID {
					g.memberships[userID][i].Role = role
					out := g.memberships[userID][i]
					return &out, nil
				}
			}
		}
		return nil, &identity.ProviderError{Op: "updateMembership", StatusCode: http.StatusNotFound, Message: "membership not found"}
	}
	return nil, &identity.MembershipError{OrganizationID: orgID, Attempts: attempts}
}

func (g *fakeGateway) ListMemberships(_ context.Context, userID string) ([]identity.Membership, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []identity.Membership
	for _, m := range g.memberships[userID] {
		if g.delayed[m.ID] > 0 {
			g.delayed[m.ID]--
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *fakeGateway) CreateInvitation(_ context.Context, orgID, email, role string) (*identity.Invitation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inviteErr != nil {
		return nil, g.inviteErr
	}
	g.nextID++
	inv := identity.Invitation{
		ID:             fmt.Sprintf("inv_%d", g.nextID),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		Status:         "pending",
	}
	g.invitations = append(g.invitations, inv)
	return &inv, nil
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// applyPatch mirrors the provider's merge semantics: supplied keys
// overwrite, a nil value deletes the key, unsupplied keys are kept.
func applyPatch(base, patch map[string]interface{}) map[string]interface{} {
	if patch == nil {
		return base
	}
	out := cloneMeta(base)
	if out == nil {
		out = map[string]interface{}{}
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

type fakeSchoolRepo struct {
	mu      sync.Mutex
	schools map[string]*model.School
}

func newFakeSchoolRepo(schools ...*model.School) *fakeSchoolRepo {
	r := &fakeSchoolRepo{schools: map[string]*model.School{}}
	for _, s := range schools {
		copied := *s
		r.schools[s.SchoolId] = &copied
	}
	return r
}

func (r *fakeSchoolRepo) GetBySchoolID(_ context.Context, schoolID string) (*model.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schools[schoolID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (r *fakeSchoolRepo) Claim(_ context.Context, schoolID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schools[schoolID]
	if !ok {
		return repo.ErrNotFound
	}
	if s.Claimed {
		return repo.ErrSchoolAlreadyClaimed
	}
	s.Claimed = true
	s.ClaimedByUserId = userID
	return nil
}

func (r *fakeSchoolRepo) LinkOrganization(_ context.Context, schoolID, orgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schools[schoolID]
	if !ok {
		return repo.ErrNotFound
	}
	s.ClerkOrgId = orgID
	return nil
}

// fakeSubRepo is an in-memory subscription store. corruptNextWrites drops
// the provider ids from that many upcoming writes, modeling the concurrent
// partial overwrite the verify-and-repair pass defends against.
type fakeSubRepo struct {
	mu                sync.Mutex
	rows              map[string]*model.Subscription
	corruptNextWrites int
}

func newFakeSubRepo(rows ...*model.Subscription) *fakeSubRepo {
	r := &fakeSubRepo{rows: map[string]*model.Subscription{}}
	for _, row := range rows {
		copied := *row
		r.rows[row.SchoolId] = &copied
	}
	return r
}

func (r *fakeSubRepo) GetBySchoolID(_ context.Context, schoolID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[schoolID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (r *fakeSubRepo) GetByStripeSubscriptionID(_ context.Context, subscriptionID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.StripeSubscriptionId == subscriptionID {
			out := *row
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *fakeSubRepo) Create(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sub
	if r.corruptNextWrites > 0 {
		r.corruptNextWrites--
		copied.StripeCustomerId = ""
		copied.StripeSubscriptionId = ""
	}
	r.rows[sub.SchoolId] = &copied
	return nil
}

func (r *fakeSubRepo) Update(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[sub.SchoolId]
	if !ok {
		return repo.ErrNotFound
	}
	row.Status = sub.Status
	row.StripeCustomerId = sub.StripeCustomerId
	row.StripeSubscriptionId = sub.StripeSubscriptionId
	row.TotalTeacherSeats = sub.TotalTeacherSeats
	row.TotalStudentSeats = sub.TotalStudentSeats
	row.CurrentPeriodEnd = sub.CurrentPeriodEnd
	if r.corruptNextWrites > 0 {
		r.corruptNextWrites--
		row.StripeCustomerId = ""
		row.StripeSubscriptionId = ""
	}
	return nil
}

func (r *fakeSubRepo) SetProviderIDs(_ context.Context, schoolID, customerID, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[schoolID]
	if !ok {
		return repo.ErrNotFound
	}
	row.StripeCustomerId = customerID
	row.StripeSubscriptionId = subscriptionID
	return nil
}

func (r *fakeSubRepo) SetStatusBySubscriptionID(_ context.Context, subscriptionID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.StripeSubscriptionId == subscriptionID {
			row.Status = status
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r *fakeSubRepo) ConsumeTeacherSeat(_ context.Context, schoolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[schoolID]
	if !ok {
		return repo.ErrNotFound
	}
	if row.UsedTeacherSeats >= row.TotalTeacherSeats {
		return repo.ErrNoSeatsAvailable
	}
	row.UsedTeacherSeats++
	return nil
}

type fakeOrgRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Organization
}

func newFakeOrgRepo() *fakeOrgRepo {
	return &fakeOrgRepo{rows: map[string]*model.Organization{}}
}

func (r *fakeOrgRepo) GetByOrgID(_ context.Context, orgID string) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[orgID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (r *fakeOrgRepo) GetBySchoolID(_ context.Context, schoolID string) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SchoolId == schoolID {
			out := *row
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *fakeOrgRepo) Upsert(_ context.Context, org *model.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *org
	r.rows[org.OrgId] = &copied
	return nil
}

type fakeProfileRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{rows: map[string]*model.Profile{}}
}

func (r *fakeProfileRepo) GetByUserID(_ context.Context, userID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (r *fakeProfileRepo) Upsert(_ context.Context, profile *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *profile
	r.rows[profile.UserId] = &copied
	return nil
}

type fakePayments struct {
	mu               sync.Mutex
	sessions         map[string]*payments.CheckoutSession
	subs             map[string]*payments.ProviderSubscription
	retrieveSubCalls int
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		sessions: map[string]*payments.CheckoutSession{},
		subs:     map[string]*payments.ProviderSubscription{},
	}
}

func (p *fakePayments) CreateCheckoutSession(_ context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session := &payments.CheckoutSession{
		ID:  fmt.Sprintf("cs_%d", len(p.sessions)+1),
		URL: "https://pay.example/session",
		Metadata: map[string]string{
			"schoolId":     params.SchoolID,
			"teacherSeats": fmt.Sprintf("%d", params.TeacherSeats),
			"studentSeats": fmt.Sprintf("%d", params.StudentSeats),
		},
	}
	p.sessions[session.ID] = session
	return session, nil
}

func (p *fakePayments) RetrieveCheckoutSession(_ context.Context, sessionID string) (*payments.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[sessionID]
	if !ok {
		return nil, &payments.PaymentError{Op: "retrieveCheckoutSession", StatusCode: http.StatusNotFound, Message: "not found"}
	}
	out := *session
	return &out, nil
}

func (p *fakePayments) RetrieveSubscription(_ context.Context, subscriptionID string) (*payments.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieveSubCalls++
	sub, ok := p.subs[subscriptionID]
	if !ok {
		return nil, &payments.PaymentError{Op: "retrieveSubscription", StatusCode: http.StatusNotFound, Message: "not found"}
	}
	out := *sub
	return &out, nil
}

func (p *fakePayments) UpdateSeatQuantities(_ context.Context, subscriptionID string, teacherSeats, studentSeats int) (*payments.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[subscriptionID]
	if !ok {
		return nil, &payments.PaymentError{Op: "updateSeatQuantities", StatusCode: http.StatusNotFound, Message: "not found"}
	}
	for i := range sub.Items {
		switch sub.Items[i].PriceID {
		case testTeacherPrice:
			sub.Items[i].Quantity = teacherSeats
		case testStudentPrice:
			sub.Items[i].Quantity = studentSeats
		}
	}
	out := *sub
	return &out, nil
}

const (
	testTeacherPrice = "price_teacher"
	testStudentPrice = "price_student"
)

func testPaymentsConf() payments.Conf {
	return payments.Conf{
		TeacherSeatPriceID: testTeacherPrice,
		StudentSeatPriceID: testStudentPrice,
	}
}
