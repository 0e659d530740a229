package records

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/platform/blobstore"
	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// GrantChecker answers whether a clinician currently holds access to a
// patient. Satisfied by the grants service.
type GrantChecker interface {
	HasActiveGrant(ctx context.Context, clinicianID, patientID uuid.UUID) (bool, error)
}

// Service owns patient record documents. Every read and write is gated:
// the patient themselves always passes, anyone else needs an active grant
// checked fresh on each call.
type Service struct {
	repo   Repository
	grants GrantChecker
	blobs  blobstore.Store
	tx     db.TxRunner
	log    zerolog.Logger
}

func NewService(repo Repository, grants GrantChecker, blobs blobstore.Store, tx db.TxRunner, log zerolog.Logger) *Service {
	return &Service{repo: repo, grants: grants, blobs: blobs, tx: tx, log: log}
}

func (s *Service) authorize(ctx context.Context, callerID, patientID uuid.UUID) error {
	if callerID == patientID {
		return nil
	}
	ok, err := s.grants.HasActiveGrant(ctx, callerID, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Unauthorized("no active grant for patient %s", patientID)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, callerID uuid.UUID, rec *PatientRecord) error {
	if rec.Title == "" {
		return errs.Conflict("record title is required")
	}
	if rec.PatientID == uuid.Nil {
		rec.PatientID = callerID
	}
	if err := s.authorize(ctx, callerID, rec.PatientID); err != nil {
		return err
	}
	rec.CreatedBy = callerID
	return s.repo.Create(ctx, rec)
}

func (s *Service) Get(ctx context.Context, callerID, recordID uuid.UUID) (*PatientRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, rec.PatientID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) ListForPatient(ctx context.Context, callerID, patientID uuid.UUID, limit, offset int) ([]*PatientRecord, int, error) {
	if err := s.authorize(ctx, callerID, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListForPatient(ctx, patientID, limit, offset)
}

// Delete removes a record and its attachment. Only the patient who owns
// the record may delete it.
func (s *Service) Delete(ctx context.Context, callerID, recordID uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.PatientID != callerID {
		return errs.Unauthorized("only the patient may delete their records")
	}
	if err := s.repo.Delete(ctx, recordID); err != nil {
		return err
	}
	if rec.BlobKey != nil {
		if err := s.blobs.Delete(ctx, *rec.BlobKey); err != nil {
			s.log.Warn().Err(err).Str("blob_key", *rec.BlobKey).
				Msg("attachment left behind after record deletion")
		}
	}
	return nil
}

// UploadAttachment stores a file for the record and remembers its key.
// Re-uploading replaces the previous attachment at the same key.
func (s *Service) UploadAttachment(ctx context.Context, callerID, recordID uuid.UUID, contentType string, content io.Reader) (*PatientRecord, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, rec.PatientID); err != nil {
		return nil, err
	}

	key := BlobKeyFor(rec.PatientID, rec.ID)
	if _, err := s.blobs.Put(ctx, key, contentType, content); err != nil {
		return nil, errs.External(err, "storing attachment for record %s", recordID)
	}
	if err := s.repo.SetBlobKey(ctx, recordID, key); err != nil {
		return nil, err
	}
	rec.BlobKey = &key
	return rec, nil
}

// DownloadAttachment streams the record's attachment. The caller owns
// closing the reader.
func (s *Service) DownloadAttachment(ctx context.Context, callerID, recordID uuid.UUID) (io.ReadCloser, *blobstore.Object, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, callerID, rec.PatientID); err != nil {
		return nil, nil, err
	}
	if rec.BlobKey == nil {
		return nil, nil, errs.NotFound("record %s has no attachment", recordID)
	}
	rc, obj, err := s.blobs.Get(ctx, *rec.BlobKey)
	if err != nil {
		return nil, nil, errs.External(err, "fetching attachment for record %s", recordID)
	}
	return rc, obj, nil
}

// PurgeForPatient deletes every record the patient owns. Row deletion is
// transactional; the blobstore sweep is best-effort, logged and absorbed,
// so object storage being down never blocks an account deletion.
func (s *Service) PurgeForPatient(ctx context.Context, patientID uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.DeleteForPatient(ctx, patientID)
	})
	if err != nil {
		return err
	}
	if _, err := s.blobs.DeletePrefix(ctx, BlobPrefix(patientID)); err != nil {
		s.log.Warn().Err(err).Str("patient_id", patientID.String()).
			Msg("attachment purge incomplete, objects left behind")
	}
	return nil
}
