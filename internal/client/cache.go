package client

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache is the bounded local store of recently seen notifications. It is
// a convenience for page reloads and offline viewing; the server-side
// notification record stays authoritative.
type Cache struct {
	db    *sql.DB
	limit int
}

const createCacheTableSQL = `
CREATE TABLE IF NOT EXISTS notification_cache (
    id         TEXT PRIMARY KEY,
    alert_id   TEXT NOT NULL,
    title      TEXT NOT NULL,
    message    TEXT NOT NULL,
    crop_type  TEXT NOT NULL,
    location   TEXT NOT NULL,
    change_pct TEXT NOT NULL,
    status     TEXT NOT NULL,
    created_at TEXT NOT NULL,
    read       INTEGER NOT NULL DEFAULT 0
);`

// NewCache opens (or creates) the cache database at path.
func NewCache(path string, limit int) (*Cache, error) {
	if limit <= 0 {
		limit = 50
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(createCacheTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &Cache{db: db, limit: limit}, nil
}

// Put stores one notification and prunes everything beyond the retention
// limit, oldest first.
func (c *Cache) Put(n Notification) error {
	_, err := c.db.Exec(`
	INSERT OR REPLACE INTO notification_cache
	    (id, alert_id, title, message, crop_type, location, change_pct, status, created_at, read)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		n.ID, n.AlertID, n.Title, n.Message, n.CropType, n.Location,
		n.PriceChangePct, n.Status, n.CreatedAt, boolToInt(n.Read),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	_, err = c.db.Exec(`
	DELETE FROM notification_cache
	WHERE id NOT IN (
	    SELECT id FROM notification_cache ORDER BY created_at DESC LIMIT ?
	);`, c.limit)
	if err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	return nil
}

// Recent returns cached notifications, newest first.
func (c *Cache) Recent(limit int) ([]Notification, error) {
	if limit <= 0 || limit > c.limit {
		limit = c.limit
	}

	rows, err := c.db.Query(`
	SELECT id, alert_id, title, message, crop_type, location, change_pct, status, created_at, read
	FROM notification_cache
	ORDER BY created_at DESC
	LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("cache recent: %w", err)
	}
	defer rows.Close()

	notifications := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		var read int
		if err := rows.Scan(&n.ID, &n.AlertID, &n.Title, &n.Message, &n.CropType,
			&n.Location, &n.PriceChangePct, &n.Status, &n.CreatedAt, &read); err != nil {
			return nil, fmt.Errorf("cache scan: %w", err)
		}
		n.Read = read != 0
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead flips the local read flag. Server-side read state is a
// separate authenticated call.
func (c *Cache) MarkRead(id string) error {
	_, err := c.db.Exec(`UPDATE notification_cache SET read = 1 WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("cache mark read: %w", err)
	}
	return nil
}

// Clear empties the cache.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM notification_cache;`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
