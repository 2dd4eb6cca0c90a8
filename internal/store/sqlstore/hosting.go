package sqlstore

import (
	"context"
	"database/sql"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// HostingStore implements store.HostingStore over database/sql.
type HostingStore struct{ db *DB }

func NewHostingStore(db *DB) *HostingStore { return &HostingStore{db: db} }

func (s *HostingStore) SetCredential(ctx context.Context, cred store.HostingCredential) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO hosting_credentials (user_id, api_key, album_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET api_key = excluded.api_key, album_id = excluded.album_id`),
		cred.UserID, cred.APIKey, cred.AlbumID, cred.Created,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set hosting credential", err)
	}
	return nil
}

func (s *HostingStore) GetCredential(ctx context.Context, userID string) (*store.HostingCredential, error) {
	var c store.HostingCredential
	err := s.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT user_id, api_key, album_id, created_at FROM hosting_credentials WHERE user_id = ?`), userID,
	).Scan(&c.UserID, &c.APIKey, &c.AlbumID, &c.Created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.NotFound, "no hosting credential for user %q", userID)
		}
		return nil, apperr.Wrap(apperr.Internal, "get hosting credential", err)
	}
	return &c, nil
}

func (s *HostingStore) DeleteCredential(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM hosting_credentials WHERE user_id = ?`), userID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete hosting credential", err)
	}
	return nil
}
