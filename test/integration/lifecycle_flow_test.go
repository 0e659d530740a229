package integration

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/domain/family"
	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/domain/records"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

func TestAccountDeletionCascade(t *testing.T) {
	ctx := context.Background()
	s := newStack()

	ana := createTestUser(t, ctx, s, "Ana", "Silva", identity.RolePatient)
	bea := createTestUser(t, ctx, s, "Bea", "Costa", identity.RolePatient)
	clinician := createTestUser(t, ctx, s, "Dr", "Gomes", identity.RoleClinician)

	// Family with a second member so the group must survive ana's departure.
	fam, err := s.family.CreateFamily(ctx, ana.ID, "")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	inv, err := s.family.InviteMember(ctx, fam.ID, ana.ID, bea.Email, family.RelationSibling)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := s.family.AcceptInvitation(ctx, inv.ID, bea.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A record with an attachment, an active grant, and a child link.
	rec := &records.PatientRecord{Title: "Allergy list", Content: json.RawMessage(`{"nuts": true}`)}
	if err := s.records.Create(ctx, ana.ID, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := s.records.UploadAttachment(ctx, ana.ID, rec.ID, "application/pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("upload attachment: %v", err)
	}
	if _, err := s.grants.Issue(ctx, ana.ID, clinician.ID, 24*time.Hour); err != nil {
		t.Fatalf("issue grant: %v", err)
	}
	child, err := s.accounts.CreateChildAccount(ctx, ana.ID, &identity.User{
		FirstName: "Rui",
		LastName:  "Silva",
		Email:     "rui-" + uuid.New().String()[:8] + "@example.com",
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if err := s.lifecycle.DeleteAccount(ctx, ana.ID, ana.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if userExists(t, ctx, ana.ID) {
		t.Error("users row should be gone")
	}
	if n := countRows(t, ctx, "SELECT count(*) FROM patient_records WHERE patient_id = $1", ana.ID); n != 0 {
		t.Errorf("expected 0 record rows, got %d", n)
	}
	if n := countRows(t, ctx, "SELECT count(*) FROM access_grants WHERE patient_id = $1", ana.ID); n != 0 {
		t.Errorf("expected 0 grant rows, got %d", n)
	}
	if n := countRows(t, ctx, "SELECT count(*) FROM family_members WHERE user_id = $1", ana.ID); n != 0 {
		t.Errorf("expected 0 membership rows, got %d", n)
	}
	if n := countRows(t, ctx, "SELECT count(*) FROM account_links WHERE parent_user_id = $1", ana.ID); n != 0 {
		t.Errorf("expected 0 link rows, got %d", n)
	}

	// The rest of the world is untouched.
	if !userExists(t, ctx, bea.ID) || !userExists(t, ctx, child.ID) {
		t.Error("other users must survive the cascade")
	}
	after, err := s.family.GetFamily(ctx, fam.ID)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if after.CreatedBy != bea.ID {
		t.Errorf("expected ownership to pass to bea, got %s", after.CreatedBy)
	}
}

func TestParentDeletesChildRetainsCredential(t *testing.T) {
	ctx := context.Background()
	s := newStack()

	parent := createTestUser(t, ctx, s, "Ana", "Silva", identity.RolePatient)
	child, err := s.accounts.CreateChildAccount(ctx, parent.ID, &identity.User{
		FirstName: "Rui",
		LastName:  "Silva",
		Email:     "rui-" + uuid.New().String()[:8] + "@example.com",
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	err = s.lifecycle.DeleteAccount(ctx, parent.ID, child.ID)
	if !errors.Is(err, errs.ErrPartialSuccess) {
		t.Fatalf("expected partial success, got %v", err)
	}

	if userExists(t, ctx, child.ID) {
		t.Error("child's users row should be gone")
	}
	if n := countRows(t, ctx, "SELECT count(*) FROM account_links WHERE child_user_id = $1", child.ID); n != 0 {
		t.Errorf("expected 0 link rows, got %d", n)
	}
	if !userExists(t, ctx, parent.ID) {
		t.Error("parent must survive")
	}
}

func TestUnrelatedCallerCannotDelete(t *testing.T) {
	ctx := context.Background()
	s := newStack()

	ana := createTestUser(t, ctx, s, "Ana", "Silva", identity.RolePatient)
	mal := createTestUser(t, ctx, s, "Mal", "Oso", identity.RolePatient)

	if err := s.lifecycle.DeleteAccount(ctx, mal.ID, ana.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !userExists(t, ctx, ana.ID) {
		t.Error("target must survive a rejected deletion")
	}
}
