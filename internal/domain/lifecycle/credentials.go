package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CredentialStore disposes of a user's credential at the external
// authentication provider.
type CredentialStore interface {
	DeleteCredential(ctx context.Context, userID uuid.UUID) error
}

// LoggingCredentialStore only records the request. It backs development
// wiring, where no real authentication provider is attached.
type LoggingCredentialStore struct {
	Log zerolog.Logger
}

func (s LoggingCredentialStore) DeleteCredential(_ context.Context, userID uuid.UUID) error {
	s.Log.Info().Str("user_id", userID.String()).Msg("credential deletion requested")
	return nil
}
