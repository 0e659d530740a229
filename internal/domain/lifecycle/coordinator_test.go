package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// =========== Mocks ===========

// calls records the order collaborators were invoked in.
type calls struct {
	seq []string
}

func (c *calls) note(stage string) { c.seq = append(c.seq, stage) }

type mockUsers struct {
	calls *calls
	users map[uuid.UUID]*identity.User
}

func (m *mockUsers) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, errs.NotFound("user %s", id)
	}
	return u, nil
}

func (m *mockUsers) DeleteUser(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return errs.NotFound("user %s", id)
	}
	delete(m.users, id)
	m.calls.note(StageDeleteIdentity)
	return nil
}

type mockPurger struct {
	calls *calls
	stage string
	err   error
}

func (m *mockPurger) purge(uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.calls.note(m.stage)
	return nil
}

func (m *mockPurger) PurgeForPatient(_ context.Context, id uuid.UUID) error { return m.purge(id) }
func (m *mockPurger) DeleteForUser(_ context.Context, id uuid.UUID) error   { return m.purge(id) }
func (m *mockPurger) RemoveUser(_ context.Context, id uuid.UUID) error      { return m.purge(id) }

type mockLinks struct {
	calls   *calls
	parents map[uuid.UUID]uuid.UUID // child -> parent
}

func (m *mockLinks) IsParentOf(_ context.Context, parentID, childID uuid.UUID) (bool, error) {
	return m.parents[childID] == parentID, nil
}

func (m *mockLinks) DeleteLinksForUser(_ context.Context, userID uuid.UUID) error {
	for child, parent := range m.parents {
		if child == userID || parent == userID {
			delete(m.parents, child)
		}
	}
	m.calls.note(StagePurgeAccountLinks)
	return nil
}

type mockCreds struct {
	deleted []uuid.UUID
}

func (m *mockCreds) DeleteCredential(_ context.Context, userID uuid.UUID) error {
	m.deleted = append(m.deleted, userID)
	return nil
}

// =========== Fixture ===========

type fixture struct {
	coord   *Coordinator
	calls   *calls
	users   *mockUsers
	records *mockPurger
	grants  *mockPurger
	family  *mockPurger
	links   *mockLinks
	creds   *mockCreds
}

func newFixture() *fixture {
	c := &calls{}
	f := &fixture{
		calls:   c,
		users:   &mockUsers{calls: c, users: make(map[uuid.UUID]*identity.User)},
		records: &mockPurger{calls: c, stage: StagePurgeRecords},
		grants:  &mockPurger{calls: c, stage: StagePurgeGrants},
		family:  &mockPurger{calls: c, stage: StagePurgeFamilyMembership},
		links:   &mockLinks{calls: c, parents: make(map[uuid.UUID]uuid.UUID)},
		creds:   &mockCreds{},
	}
	f.coord = NewCoordinator(f.users, f.records, f.grants, f.family, f.links, f.creds, nil, zerolog.Nop())
	return f
}

func (f *fixture) addUser() uuid.UUID {
	id := uuid.New()
	f.users.users[id] = &identity.User{ID: id, Role: identity.RolePatient}
	return id
}

var stageOrder = []string{
	StagePurgeRecords,
	StagePurgeGrants,
	StagePurgeFamilyMembership,
	StagePurgeAccountLinks,
	StageDeleteIdentity,
}

// =========== Tests ===========

func TestDeleteAccount_Self(t *testing.T) {
	f := newFixture()
	user := f.addUser()

	if err := f.coord.DeleteAccount(context.Background(), user, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.calls.seq) != len(stageOrder) {
		t.Fatalf("expected %d stages, got %v", len(stageOrder), f.calls.seq)
	}
	for i, stage := range stageOrder {
		if f.calls.seq[i] != stage {
			t.Errorf("stage %d: expected %s, got %s", i, stage, f.calls.seq[i])
		}
	}
	if len(f.creds.deleted) != 1 || f.creds.deleted[0] != user {
		t.Error("self-deletion must dispose of the credential")
	}
	if _, ok := f.users.users[user]; ok {
		t.Error("user row should be gone")
	}
}

func TestDeleteAccount_ParentDeletesChild(t *testing.T) {
	f := newFixture()
	parent := f.addUser()
	child := f.addUser()
	f.links.parents[child] = parent

	err := f.coord.DeleteAccount(context.Background(), parent, child)
	if !errors.Is(err, errs.ErrPartialSuccess) {
		t.Fatalf("expected partial success, got %v", err)
	}
	if !strings.Contains(err.Error(), "credential retained") {
		t.Errorf("expected credential-retained detail, got %q", err)
	}
	if len(f.creds.deleted) != 0 {
		t.Error("parent-initiated deletion must not touch the child's credential")
	}
	// All data stages still ran.
	if _, ok := f.users.users[child]; ok {
		t.Error("child user row should be gone")
	}
	if len(f.calls.seq) != len(stageOrder) {
		t.Errorf("expected all data stages to run, got %v", f.calls.seq)
	}
}

func TestDeleteAccount_UnrelatedCaller(t *testing.T) {
	f := newFixture()
	target := f.addUser()
	stranger := f.addUser()

	err := f.coord.DeleteAccount(context.Background(), stranger, target)
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(f.calls.seq) != 0 {
		t.Errorf("no purge stage may run after failed validation, got %v", f.calls.seq)
	}
	if _, ok := f.users.users[target]; !ok {
		t.Error("target must be untouched")
	}
}

func TestDeleteAccount_ChildCannotDeleteParent(t *testing.T) {
	f := newFixture()
	parent := f.addUser()
	child := f.addUser()
	f.links.parents[child] = parent

	if err := f.coord.DeleteAccount(context.Background(), child, parent); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestDeleteAccount_MissingTarget(t *testing.T) {
	f := newFixture()
	caller := f.addUser()

	err := f.coord.DeleteAccount(context.Background(), caller, uuid.New())
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), StageValidate) {
		t.Errorf("failure should name the validate stage, got %q", err)
	}
}

func TestDeleteAccount_StageFailureStopsPipeline(t *testing.T) {
	f := newFixture()
	user := f.addUser()
	f.grants.err = errors.New("database gone")

	err := f.coord.DeleteAccount(context.Background(), user, user)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), StagePurgeGrants) {
		t.Errorf("failure should name the grants stage, got %q", err)
	}
	// Records ran, nothing after grants did.
	if len(f.calls.seq) != 1 || f.calls.seq[0] != StagePurgeRecords {
		t.Errorf("expected only the records stage to have run, got %v", f.calls.seq)
	}
	if _, ok := f.users.users[user]; !ok {
		t.Error("identity must survive a mid-pipeline failure")
	}
}
