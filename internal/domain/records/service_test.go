package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/platform/blobstore"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// =========== Mock Repository ===========

type mockRepo struct {
	records map[uuid.UUID]*PatientRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*PatientRecord)}
}

func (m *mockRepo) Create(_ context.Context, rec *PatientRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*PatientRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, errs.NotFound("record %s", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) ListForPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientRecord, int, error) {
	var all []*PatientRecord
	for _, rec := range m.records {
		if rec.PatientID == patientID {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) SetBlobKey(_ context.Context, id uuid.UUID, key string) error {
	rec, ok := m.records[id]
	if !ok {
		return errs.NotFound("record %s", id)
	}
	rec.BlobKey = &key
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return errs.NotFound("record %s", id)
	}
	delete(m.records, id)
	return nil
}

func (m *mockRepo) DeleteForPatient(_ context.Context, patientID uuid.UUID) error {
	for id, rec := range m.records {
		if rec.PatientID == patientID {
			delete(m.records, id)
		}
	}
	return nil
}

// =========== Mock GrantChecker ===========

type mockGrants struct {
	allowed map[string]bool
}

func newMockGrants() *mockGrants {
	return &mockGrants{allowed: make(map[string]bool)}
}

func (g *mockGrants) allow(clinicianID, patientID uuid.UUID) {
	g.allowed[clinicianID.String()+"/"+patientID.String()] = true
}

func (g *mockGrants) deny(clinicianID, patientID uuid.UUID) {
	delete(g.allowed, clinicianID.String()+"/"+patientID.String())
}

func (g *mockGrants) HasActiveGrant(_ context.Context, clinicianID, patientID uuid.UUID) (bool, error) {
	return g.allowed[clinicianID.String()+"/"+patientID.String()], nil
}

// =========== Helpers ===========

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *mockRepo, *mockGrants, *blobstore.MemoryStore) {
	repo := newMockRepo()
	grants := newMockGrants()
	blobs := blobstore.NewMemoryStore()
	svc := NewService(repo, grants, blobs, passthroughTx{}, zerolog.Nop())
	return svc, repo, grants, blobs
}

func seedRecord(t *testing.T, svc *Service, patientID uuid.UUID, title string) *PatientRecord {
	t.Helper()
	rec := &PatientRecord{PatientID: patientID, Title: title, Category: "lab"}
	if err := svc.Create(context.Background(), patientID, rec); err != nil {
		t.Fatalf("seeding record: %v", err)
	}
	return rec
}

// =========== Tests ===========

func TestCreate(t *testing.T) {
	svc, _, _, _ := newTestService()
	patient := uuid.New()

	rec := &PatientRecord{Title: "CBC panel", Category: "lab"}
	if err := svc.Create(context.Background(), patient, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PatientID != patient || rec.CreatedBy != patient {
		t.Error("record should default to the caller as patient and author")
	}

	if err := svc.Create(context.Background(), patient, &PatientRecord{}); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("expected conflict for missing title, got %v", err)
	}
}

func TestCreate_ClinicianNeedsGrant(t *testing.T) {
	svc, _, grants, _ := newTestService()
	patient := uuid.New()
	clinician := uuid.New()

	rec := &PatientRecord{PatientID: patient, Title: "visit note"}
	if err := svc.Create(context.Background(), clinician, rec); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without a grant, got %v", err)
	}

	grants.allow(clinician, patient)
	if err := svc.Create(context.Background(), clinician, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.CreatedBy != clinician {
		t.Error("author should be the clinician")
	}
}

func TestGet_Authorization(t *testing.T) {
	svc, _, grants, _ := newTestService()
	patient := uuid.New()
	clinician := uuid.New()
	rec := seedRecord(t, svc, patient, "CBC panel")

	// Patient reads their own record without any grant.
	if _, err := svc.Get(context.Background(), patient, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Clinician is denied, then allowed, then denied again after revocation.
	if _, err := svc.Get(context.Background(), clinician, rec.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
	grants.allow(clinician, patient)
	if _, err := svc.Get(context.Background(), clinician, rec.ID); err != nil {
		t.Errorf("unexpected error with grant: %v", err)
	}
	grants.deny(clinician, patient)
	if _, err := svc.Get(context.Background(), clinician, rec.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized after revocation, got %v", err)
	}
}

func TestListForPatient(t *testing.T) {
	svc, _, _, _ := newTestService()
	patient := uuid.New()
	other := uuid.New()
	for i := 0; i < 3; i++ {
		seedRecord(t, svc, patient, fmt.Sprintf("record %d", i))
	}
	seedRecord(t, svc, other, "someone else's")

	recs, total, err := svc.ListForPatient(context.Background(), patient, patient, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(recs) != 2 {
		t.Errorf("expected total 3 page of 2, got total %d page of %d", total, len(recs))
	}

	if _, _, err := svc.ListForPatient(context.Background(), other, patient, 10, 0); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized for cross-patient list, got %v", err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	svc, _, _, _ := newTestService()
	patient := uuid.New()
	rec := seedRecord(t, svc, patient, "x-ray")

	updated, err := svc.UploadAttachment(context.Background(), patient, rec.ID,
		"image/png", bytes.NewReader([]byte("fake png bytes")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.BlobKey == nil || !strings.HasPrefix(*updated.BlobKey, BlobPrefix(patient)) {
		t.Fatalf("blob key not set under the patient prefix: %v", updated.BlobKey)
	}

	rc, obj, err := svc.DownloadAttachment(context.Background(), patient, rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "fake png bytes" {
		t.Errorf("unexpected attachment body %q", body)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("unexpected content type %s", obj.ContentType)
	}
}

func TestDownloadAttachment_None(t *testing.T) {
	svc, _, _, _ := newTestService()
	patient := uuid.New()
	rec := seedRecord(t, svc, patient, "bare note")

	if _, _, err := svc.DownloadAttachment(context.Background(), patient, rec.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDelete_OwnerOnly(t *testing.T) {
	svc, repo, grants, _ := newTestService()
	patient := uuid.New()
	clinician := uuid.New()
	grants.allow(clinician, patient)
	rec := seedRecord(t, svc, patient, "to delete")

	// Even a granted clinician cannot delete.
	if err := svc.Delete(context.Background(), clinician, rec.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
	if err := svc.Delete(context.Background(), patient, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), rec.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Error("record should be gone")
	}
}

func TestPurgeForPatient(t *testing.T) {
	svc, repo, _, blobs := newTestService()
	patient := uuid.New()
	other := uuid.New()
	rec := seedRecord(t, svc, patient, "purged")
	kept := seedRecord(t, svc, other, "kept")
	if _, err := svc.UploadAttachment(context.Background(), patient, rec.ID, "text/plain", strings.NewReader("mine")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.UploadAttachment(context.Background(), other, kept.ID, "text/plain", strings.NewReader("theirs")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.PurgeForPatient(context.Background(), patient); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, total, _ := repo.ListForPatient(context.Background(), patient, 10, 0); total != 0 {
		t.Error("purged patient should have no record rows")
	}
	if _, _, err := blobs.Get(context.Background(), BlobKeyFor(patient, rec.ID)); !errors.Is(err, blobstore.ErrBlobNotFound) {
		t.Error("purged patient's attachments should be gone")
	}
	// The other patient's data is untouched.
	if _, total, _ := repo.ListForPatient(context.Background(), other, 10, 0); total != 1 {
		t.Error("other patient's records should survive")
	}
	if _, _, err := blobs.Get(context.Background(), BlobKeyFor(other, kept.ID)); err != nil {
		t.Error("other patient's attachment should survive")
	}
}

// failingStore errors on every prefix deletion.
type failingStore struct {
	*blobstore.MemoryStore
}

func (f *failingStore) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("object storage unavailable")
}

func TestPurgeForPatient_BlobFailureAbsorbed(t *testing.T) {
	repo := newMockRepo()
	blobs := &failingStore{MemoryStore: blobstore.NewMemoryStore()}
	svc := NewService(repo, newMockGrants(), blobs, passthroughTx{}, zerolog.Nop())
	patient := uuid.New()
	seedRecord(t, svc, patient, "doomed")

	if err := svc.PurgeForPatient(context.Background(), patient); err != nil {
		t.Fatalf("blob failure must not fail the purge, got %v", err)
	}
	if _, total, _ := repo.ListForPatient(context.Background(), patient, 10, 0); total != 0 {
		t.Error("record rows should be deleted despite the blob failure")
	}
}
