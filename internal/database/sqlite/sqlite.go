// Package sqlite provides a single-file database.Store for deployments
// without PostgreSQL. Encodings are stored as little-endian float32 blobs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

//go:embed schema.sql
var schemaSQL string

// Store implements database.Store on a SQLite file.
type Store struct {
	db  *sql.DB
	dim int
	mu  sync.Mutex // single writer
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, dim int) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	return &Store{db: db, dim: dim}, nil
}

// RegisterPhoto inserts a photo row. Existing ids are left untouched.
func (s *Store) RegisterPhoto(ctx context.Context, photo database.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPhoto(ctx, s.db, photo)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPhoto(ctx context.Context, db execer, photo database.Photo) error {
	created := photo.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO photos (id, event_id, filename, created_at) VALUES (?, ?, ?, ?)",
		photo.ID, photo.EventID, photo.Filename, created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert photo: %w", err)
	}
	return nil
}

// GetPhoto returns a photo by id.
func (s *Store) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	var p database.Photo
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, event_id, filename, created_at FROM photos WHERE id = ?", photoID,
	).Scan(&p.ID, &p.EventID, &p.Filename, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get photo: %w", err)
	}
	p.CreatedAt = time.Unix(0, created)
	return &p, nil
}

// PhotosInEvent returns the ids of an event's photos.
func (s *Store) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM photos WHERE event_id = ? ORDER BY id", eventID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query event photos: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CreatePhoto registers photo and stores encs in one transaction.
func (s *Store) CreatePhoto(ctx context.Context, photo database.Photo, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(encs) > 0 {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_encodings WHERE photo_id = ?", photo.ID).Scan(&n); err != nil {
			return fmt.Errorf("sqlite: count encodings: %w", err)
		}
		if n > 0 {
			return database.ErrAlreadyIndexed
		}
	}

	if err := insertPhoto(ctx, tx, photo); err != nil {
		return err
	}
	if err := insertEncodings(ctx, tx, photo.ID, encs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// AppendEncodings stores encodings for an existing photo.
func (s *Store) AppendEncodings(ctx context.Context, photoID string, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM photos WHERE id = ?)", photoID).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: check photo exists: %w", err)
	}
	if !exists {
		return database.ErrPhotoNotFound
	}
	if err := insertEncodings(ctx, tx, photoID, encs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func insertEncodings(ctx context.Context, tx *sql.Tx, photoID string, encs []face.Encoding) error {
	now := time.Now().UnixNano()
	for i, enc := range encs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO face_encodings (photo_id, dim, embedding, created_at) VALUES (?, ?, ?, ?)",
			photoID, len(enc), encodeBlob(enc), now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert encoding %d: %w", i, err)
		}
	}
	return nil
}

// EncodingsForPhotos returns the encodings owned by photoIDs in insertion order.
func (s *Store) EncodingsForPhotos(ctx context.Context, photoIDs []string) ([]database.StoredEncoding, error) {
	if len(photoIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(photoIDs)), ",")
	args := make([]any, len(photoIDs))
	for i, id := range photoIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, photo_id, embedding, created_at FROM face_encodings WHERE photo_id IN ("+placeholders+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query encodings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEncoding
	for rows.Next() {
		var se database.StoredEncoding
		var blob []byte
		var created int64
		if err := rows.Scan(&se.ID, &se.PhotoID, &blob, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan encoding: %w", err)
		}
		enc, err := decodeBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding %d: %w", se.ID, err)
		}
		se.Encoding = enc
		se.CreatedAt = time.Unix(0, created)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate encodings: %w", err)
	}
	return out, nil
}

// CountEncodings returns how many encodings a photo owns.
func (s *Store) CountEncodings(ctx context.Context, photoID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_encodings WHERE photo_id = ?", photoID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count encodings: %w", err)
	}
	return n, nil
}

// DeletePhotoEncodings removes a photo's encodings and keeps the photo row.
func (s *Store) DeletePhotoEncodings(ctx context.Context, photoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM face_encodings WHERE photo_id = ?", photoID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete encodings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeletePhoto removes a photo; its encodings go with it by foreign-key cascade.
func (s *Store) DeletePhoto(ctx context.Context, photoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", photoID)
	if err != nil {
		return fmt.Errorf("sqlite: delete photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrPhotoNotFound
	}
	return nil
}

// DeleteEvent removes every photo of an event and returns their ids.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM photos WHERE event_id = ? ORDER BY id", eventID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query event photos: %w", err)
	}
	ids, err := scanIDs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM photos WHERE event_id = ?", eventID); err != nil {
		return nil, fmt.Errorf("sqlite: delete event photos: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return ids, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate ids: %w", err)
	}
	return ids, nil
}

func encodeBlob(enc face.Encoding) []byte {
	buf := make([]byte, 4*len(enc))
	for i, v := range enc {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeBlob(buf []byte) (face.Encoding, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(buf))
	}
	enc := make(face.Encoding, len(buf)/4)
	for i := range enc {
		enc[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return enc, nil
}

var _ database.Store = (*Store)(nil)
