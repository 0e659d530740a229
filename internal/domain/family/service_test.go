package family

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// =========== Mock Repository ===========

type mockRepo struct {
	families    map[uuid.UUID]*Family
	members     map[uuid.UUID]*FamilyMember
	invitations map[uuid.UUID]*FamilyInvitation
	clock       time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		families:    make(map[uuid.UUID]*Family),
		members:     make(map[uuid.UUID]*FamilyMember),
		invitations: make(map[uuid.UUID]*FamilyInvitation),
		clock:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *mockRepo) CreateFamily(_ context.Context, f *Family) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = m.tick()
	m.families[f.ID] = f
	return nil
}

func (m *mockRepo) GetFamily(_ context.Context, id uuid.UUID) (*Family, error) {
	f, ok := m.families[id]
	if !ok {
		return nil, errs.NotFound("family %s", id)
	}
	return f, nil
}

func (m *mockRepo) SetFamilyOwner(_ context.Context, familyID, newOwner uuid.UUID) error {
	f, ok := m.families[familyID]
	if !ok {
		return errs.NotFound("family %s", familyID)
	}
	f.CreatedBy = newOwner
	return nil
}

func (m *mockRepo) DeleteFamily(_ context.Context, id uuid.UUID) error {
	delete(m.families, id)
	return nil
}

func (m *mockRepo) AddMember(_ context.Context, mem *FamilyMember) error {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	for _, other := range m.members {
		if other.FamilyID == mem.FamilyID && other.UserID == mem.UserID {
			return errs.Conflict("user %s is already a family member", mem.UserID)
		}
	}
	if mem.AddedAt.IsZero() {
		mem.AddedAt = m.tick()
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *mockRepo) GetMember(_ context.Context, familyID, userID uuid.UUID) (*FamilyMember, error) {
	for _, mem := range m.members {
		if mem.FamilyID == familyID && mem.UserID == userID {
			return mem, nil
		}
	}
	return nil, errs.NotFound("member %s in family %s", userID, familyID)
}

func (m *mockRepo) ListMembers(_ context.Context, familyID uuid.UUID) ([]*FamilyMember, error) {
	var out []*FamilyMember
	for _, mem := range m.members {
		if mem.FamilyID == familyID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (m *mockRepo) RemoveMember(_ context.Context, familyID, userID uuid.UUID) error {
	for id, mem := range m.members {
		if mem.FamilyID == familyID && mem.UserID == userID {
			delete(m.members, id)
			return nil
		}
	}
	return errs.Conflict("member %s is no longer in family %s", userID, familyID)
}

func (m *mockRepo) CreateInvitation(_ context.Context, inv *FamilyInvitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for _, other := range m.invitations {
		if other.FamilyID == inv.FamilyID && other.InvitedUserID == inv.InvitedUserID && other.Status == StatusPending {
			return errs.Conflict("a pending invitation for user %s already exists", inv.InvitedUserID)
		}
	}
	m.invitations[inv.ID] = inv
	return nil
}

func (m *mockRepo) GetInvitation(_ context.Context, id uuid.UUID) (*FamilyInvitation, error) {
	inv, ok := m.invitations[id]
	if !ok {
		return nil, errs.NotFound("invitation %s", id)
	}
	return inv, nil
}

func (m *mockRepo) ListInvitationsForUser(_ context.Context, userID uuid.UUID) ([]*FamilyInvitation, error) {
	var out []*FamilyInvitation
	for _, inv := range m.invitations {
		if inv.InvitedUserID == userID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockRepo) HasPendingInvitation(_ context.Context, familyID, userID uuid.UUID) (bool, error) {
	for _, inv := range m.invitations {
		if inv.FamilyID == familyID && inv.InvitedUserID == userID && inv.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) TransitionInvitation(_ context.Context, id uuid.UUID, from, to string) error {
	inv, ok := m.invitations[id]
	if !ok || inv.Status != from {
		return errs.Conflict("invitation %s is no longer %s", id, from)
	}
	inv.Status = to
	return nil
}

func (m *mockRepo) DeleteInvitationsForUser(_ context.Context, userID uuid.UUID) error {
	for id, inv := range m.invitations {
		if inv.InvitedUserID == userID || inv.InvitedBy == userID {
			delete(m.invitations, id)
		}
	}
	return nil
}

// =========== Mock UserDirectory ===========

type mockDirectory struct {
	users map[uuid.UUID]*identity.User
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: make(map[uuid.UUID]*identity.User)}
}

func (d *mockDirectory) add(firstName, lastName, email string) *identity.User {
	u := &identity.User{
		ID:        uuid.New(),
		Role:      identity.RolePatient,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}
	d.users[u.ID] = u
	return u
}

func (d *mockDirectory) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, errs.NotFound("user %s", id)
	}
	return u, nil
}

func (d *mockDirectory) ResolveIdentifier(_ context.Context, identifier string) (*identity.User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, identifier) {
			return u, nil
		}
	}
	return nil, errs.NotFound("no patient matches %q", identifier)
}

func (d *mockDirectory) SetFamilyID(_ context.Context, userID uuid.UUID, familyID *uuid.UUID) error {
	u, ok := d.users[userID]
	if !ok {
		return errs.NotFound("user %s", userID)
	}
	u.FamilyID = familyID
	return nil
}

// =========== Helpers ===========

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *mockRepo, *mockDirectory) {
	repo := newMockRepo()
	dir := newMockDirectory()
	svc := NewService(repo, dir, passthroughTx{}, nil)
	return svc, repo, dir
}

func mustCreateFamily(t *testing.T, svc *Service, creator uuid.UUID, name string) *Family {
	t.Helper()
	f, err := svc.CreateFamily(context.Background(), creator, name)
	if err != nil {
		t.Fatalf("creating family: %v", err)
	}
	return f
}

func mustInvite(t *testing.T, svc *Service, familyID, inviter uuid.UUID, identifier, relation string) *FamilyInvitation {
	t.Helper()
	inv, err := svc.InviteMember(context.Background(), familyID, inviter, identifier, relation)
	if err != nil {
		t.Fatalf("inviting member: %v", err)
	}
	return inv
}

// =========== Tests ===========

func TestCreateFamily(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")

	f := mustCreateFamily(t, svc, ana.ID, "Silva household")

	if f.CreatedBy != ana.ID {
		t.Errorf("expected creator %s, got %s", ana.ID, f.CreatedBy)
	}
	if ana.FamilyID == nil || *ana.FamilyID != f.ID {
		t.Error("creator's family pointer not set")
	}
	m, err := repo.GetMember(context.Background(), f.ID, ana.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Relation != RelationSelf || m.Status != StatusAccepted {
		t.Errorf("expected accepted self member, got %s/%s", m.Relation, m.Status)
	}
}

func TestCreateFamily_DefaultName(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")

	f := mustCreateFamily(t, svc, ana.ID, "")
	if f.Name != "Ana Silva family" {
		t.Errorf("unexpected default name %q", f.Name)
	}
}

func TestCreateFamily_AlreadyInFamily(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	mustCreateFamily(t, svc, ana.ID, "first")

	if _, err := svc.CreateFamily(context.Background(), ana.ID, "second"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestInviteMember(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")

	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	if inv.InvitedUserID != bea.ID || inv.InvitedBy != ana.ID {
		t.Error("invitation parties wrong")
	}
	if inv.Status != StatusPending {
		t.Errorf("expected pending, got %s", inv.Status)
	}
	if want := inv.CreatedAt.Add(InvitationTTL); !inv.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %s, got %s", want, inv.ExpiresAt)
	}
}

func TestInviteMember_Rejections(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	dir.add("Bea", "Silva", "bea@example.com")
	outsider := dir.add("Omar", "Cruz", "omar@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")

	if _, err := svc.InviteMember(context.Background(), f.ID, ana.ID, "bea@example.com", "friend"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for invalid relation, got %v", err)
	}
	if _, err := svc.InviteMember(context.Background(), f.ID, outsider.ID, "bea@example.com", RelationSibling); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized for non-member inviter, got %v", err)
	}
	if _, err := svc.InviteMember(context.Background(), f.ID, ana.ID, "nobody@example.com", RelationSibling); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found for unknown target, got %v", err)
	}
	if _, err := svc.InviteMember(context.Background(), f.ID, ana.ID, "ana@example.com", RelationSibling); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for inviting a user already in a family, got %v", err)
	}

	mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)
	if _, err := svc.InviteMember(context.Background(), f.ID, ana.ID, "bea@example.com", RelationCousin); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for duplicate pending invitation, got %v", err)
	}
}

func TestAcceptInvitation(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	m, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Relation != RelationSibling || m.Status != StatusAccepted {
		t.Errorf("expected accepted sibling, got %s/%s", m.Relation, m.Status)
	}
	if bea.FamilyID == nil || *bea.FamilyID != f.ID {
		t.Error("accepted user's family pointer not set")
	}
	stored, _ := repo.GetInvitation(context.Background(), inv.ID)
	if stored.Status != StatusAccepted {
		t.Errorf("expected invitation accepted, got %s", stored.Status)
	}
	members, _ := repo.ListMembers(context.Background(), f.ID)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestAcceptInvitation_WrongUser(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	dir.add("Bea", "Silva", "bea@example.com")
	mallory := dir.add("Mal", "Ory", "mal@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, mallory.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestAcceptInvitation_Expired(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	svc.now = func() time.Time { return inv.ExpiresAt.Add(time.Hour) }

	_, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID)
	if !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	// Nothing may change on a rejected acceptance.
	if bea.FamilyID != nil {
		t.Error("expired acceptance must not set the family pointer")
	}
	if _, err := repo.GetMember(context.Background(), f.ID, bea.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Error("expired acceptance must not add a member")
	}
	stored, _ := repo.GetInvitation(context.Background(), inv.ID)
	if stored.Status != StatusPending {
		t.Errorf("expired acceptance must leave status pending, got %s", stored.Status)
	}
}

func TestAcceptInvitation_AlreadyResolved(t *testing.T) {
	svc, _, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for double accept, got %v", err)
	}
}

func TestDeclineInvitation(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)

	if err := svc.DeclineInvitation(context.Background(), inv.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := repo.GetInvitation(context.Background(), inv.ID)
	if stored.Status != StatusDeclined {
		t.Errorf("expected declined, got %s", stored.Status)
	}
	if bea.FamilyID != nil {
		t.Error("declining must not join the family")
	}
	if err := svc.DeclineInvitation(context.Background(), inv.ID, bea.ID); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for double decline, got %v", err)
	}
}

func TestKickMember(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)
	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.KickMember(context.Background(), f.ID, ana.ID, bea.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized for non-owner kick, got %v", err)
	}
	if err := svc.KickMember(context.Background(), f.ID, ana.ID, ana.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized for self-kick, got %v", err)
	}

	if err := svc.KickMember(context.Background(), f.ID, bea.ID, ana.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bea.FamilyID != nil {
		t.Error("kicked member's family pointer not cleared")
	}
	if _, err := repo.GetMember(context.Background(), f.ID, bea.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Error("kicked member still present")
	}
}

func TestLeaveFamily_LastMemberDeletesFamily(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")

	if err := svc.LeaveFamily(context.Background(), f.ID, ana.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ana.FamilyID != nil {
		t.Error("leaver's family pointer not cleared")
	}
	if _, err := repo.GetFamily(context.Background(), f.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Error("empty family should be deleted")
	}
}

func TestLeaveFamily_OwnerDepartureTransfersOwnership(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	cal := dir.add("Cal", "Silva", "cal@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")

	for _, u := range []*identity.User{bea, cal} {
		inv := mustInvite(t, svc, f.ID, ana.ID, u.Email, RelationSibling)
		if _, err := svc.AcceptInvitation(context.Background(), inv.ID, u.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := svc.LeaveFamily(context.Background(), f.ID, ana.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := repo.GetFamily(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Bea joined before Cal, so ownership passes to Bea.
	if stored.CreatedBy != bea.ID {
		t.Errorf("expected ownership transferred to %s, got %s", bea.ID, stored.CreatedBy)
	}
}

func TestLeaveFamily_NonOwnerKeepsOwner(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)
	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.LeaveFamily(context.Background(), f.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := repo.GetFamily(context.Background(), f.ID)
	if stored.CreatedBy != ana.ID {
		t.Errorf("ownership should stay with %s, got %s", ana.ID, stored.CreatedBy)
	}
}

func TestRemoveUser(t *testing.T) {
	svc, repo, dir := newTestService()
	ana := dir.add("Ana", "Silva", "ana@example.com")
	bea := dir.add("Bea", "Silva", "bea@example.com")
	dir.add("Cal", "Silva", "cal@example.com")
	f := mustCreateFamily(t, svc, ana.ID, "silva")
	inv := mustInvite(t, svc, f.ID, ana.ID, "bea@example.com", RelationSibling)
	if _, err := svc.AcceptInvitation(context.Background(), inv.ID, bea.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustInvite(t, svc, f.ID, ana.ID, "cal@example.com", RelationCousin)

	if err := svc.RemoveUser(context.Background(), ana.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ana.FamilyID != nil {
		t.Error("removed user's family pointer not cleared")
	}
	if _, err := repo.GetMember(context.Background(), f.ID, ana.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Error("removed user still a member")
	}
	// Invitations issued by the removed user go with them.
	for _, invStored := range repo.invitations {
		if invStored.InvitedBy == ana.ID || invStored.InvitedUserID == ana.ID {
			t.Errorf("invitation %s naming removed user survived", invStored.ID)
		}
	}
	// Ownership passed to the remaining member.
	stored, _ := repo.GetFamily(context.Background(), f.ID)
	if stored.CreatedBy != bea.ID {
		t.Errorf("expected ownership transferred to %s, got %s", bea.ID, stored.CreatedBy)
	}
}

func TestRemoveUser_NoFamily(t *testing.T) {
	svc, _, dir := newTestService()
	solo := dir.add("Solo", "User", "solo@example.com")

	if err := svc.RemoveUser(context.Background(), solo.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
