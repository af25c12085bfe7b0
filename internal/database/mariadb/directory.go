package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/selfie-finder/internal/database"
)

// Directory is a read-only database.PhotoLister over the host application's
// photo table: photo(id, filename, event_id). Ids are compared as strings.
type Directory struct {
	pool *Pool
}

// NewDirectory creates a directory over pool.
func NewDirectory(pool *Pool) *Directory {
	return &Directory{pool: pool}
}

// PhotosInEvent returns the ids of an event's photos.
func (d *Directory) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := d.pool.db.QueryContext(ctx,
		"SELECT CAST(id AS CHAR) FROM photo WHERE CAST(event_id AS CHAR) = ? ORDER BY id", eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query event photos: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan photo id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo ids: %w", err)
	}
	return ids, nil
}

// GetPhoto returns a photo by id.
func (d *Directory) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	var p database.Photo
	err := d.pool.db.QueryRowContext(ctx,
		"SELECT CAST(id AS CHAR), CAST(event_id AS CHAR), filename FROM photo WHERE CAST(id AS CHAR) = ?", photoID,
	).Scan(&p.ID, &p.EventID, &p.Filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return &p, nil
}

var _ database.PhotoLister = (*Directory)(nil)
