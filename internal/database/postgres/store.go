package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

// Store is the PostgreSQL-backed database.Store. Encodings live in a pgvector
// column next to their dimension; matching itself happens in Go.
type Store struct {
	pool *Pool
	dim  int
}

// NewStore creates a store over pool accepting encodings of dimension dim.
func NewStore(pool *Pool, dim int) *Store {
	return &Store{pool: pool, dim: dim}
}

// RegisterPhoto inserts a photo row. Existing ids are left untouched.
func (s *Store) RegisterPhoto(ctx context.Context, photo database.Photo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO photos (id, event_id, filename)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, photo.ID, photo.EventID, photo.Filename)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

// GetPhoto returns a photo by id.
func (s *Store) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	var p database.Photo
	err := s.pool.QueryRow(ctx,
		"SELECT id, event_id, filename, created_at FROM photos WHERE id = $1", photoID,
	).Scan(&p.ID, &p.EventID, &p.Filename, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return &p, nil
}

// PhotosInEvent returns the ids of an event's photos.
func (s *Store) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM photos WHERE event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, fmt.Errorf("query event photos: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CreatePhoto registers photo and stores encs in one transaction.
func (s *Store) CreatePhoto(ctx context.Context, photo database.Photo, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO photos (id, event_id, filename)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, photo.ID, photo.EventID, photo.Filename)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	if len(encs) > 0 {
		// The row lock serializes concurrent writers for one photo; the
		// second one sees the first one's encodings once it commits.
		if _, err := tx.ExecContext(ctx, "SELECT id FROM photos WHERE id = $1 FOR UPDATE", photo.ID); err != nil {
			return fmt.Errorf("lock photo: %w", err)
		}
		var indexed bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM face_encodings WHERE photo_id = $1)", photo.ID,
		).Scan(&indexed); err != nil {
			return fmt.Errorf("check encodings: %w", err)
		}
		if indexed {
			return database.ErrAlreadyIndexed
		}
	}

	if err := insertEncodings(ctx, tx, photo.ID, encs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AppendEncodings stores encodings for an existing photo.
func (s *Store) AppendEncodings(ctx context.Context, photoID string, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM photos WHERE id = $1)", photoID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check photo exists: %w", err)
	}
	if !exists {
		return database.ErrPhotoNotFound
	}

	if err := insertEncodings(ctx, tx, photoID, encs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertEncodings(ctx context.Context, tx *sql.Tx, photoID string, encs []face.Encoding) error {
	if len(encs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_encodings (photo_id, embedding, dim)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, enc := range encs {
		vec := pgvector.NewVector(enc)
		if _, err := stmt.ExecContext(ctx, photoID, vec, len(enc)); err != nil {
			return fmt.Errorf("insert encoding %d: %w", i, err)
		}
	}
	return nil
}

// EncodingsForPhotos returns the encodings owned by photoIDs in insertion order.
func (s *Store) EncodingsForPhotos(ctx context.Context, photoIDs []string) ([]database.StoredEncoding, error) {
	if len(photoIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, photo_id, embedding, created_at
		FROM face_encodings
		WHERE photo_id = ANY($1)
		ORDER BY id
	`, pq.Array(photoIDs))
	if err != nil {
		return nil, fmt.Errorf("query encodings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEncoding
	for rows.Next() {
		var se database.StoredEncoding
		var vec pgvector.Vector
		if err := rows.Scan(&se.ID, &se.PhotoID, &vec, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		se.Encoding = face.Encoding(vec.Slice())
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return out, nil
}

// CountEncodings returns how many encodings a photo owns.
func (s *Store) CountEncodings(ctx context.Context, photoID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_encodings WHERE photo_id = $1", photoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count encodings: %w", err)
	}
	return count, nil
}

// DeletePhotoEncodings removes a photo's encodings and keeps the photo row.
func (s *Store) DeletePhotoEncodings(ctx context.Context, photoID string) (int, error) {
	res, err := s.pool.Exec(ctx, "DELETE FROM face_encodings WHERE photo_id = $1", photoID)
	if err != nil {
		return 0, fmt.Errorf("delete encodings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DeletePhoto removes a photo; its encodings go with it by foreign-key cascade.
func (s *Store) DeletePhoto(ctx context.Context, photoID string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM photos WHERE id = $1", photoID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrPhotoNotFound
	}
	return nil
}

// DeleteEvent removes every photo of an event and returns their ids.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "DELETE FROM photos WHERE event_id = $1 RETURNING id", eventID)
	if err != nil {
		return nil, fmt.Errorf("delete event photos: %w", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

var _ database.Store = (*Store)(nil)
