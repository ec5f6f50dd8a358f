package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// InsertQueueItem appends one action to the offline queue for userID.
//
// The row gets a fresh id and a server-assigned timestamp. Identical content
// is never rejected: resubmitting an action creates another row.
func (db *DB) InsertQueueItem(ctx context.Context, userID string, action *schema.Action) (*schema.QueueItem, error) {
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("invalid action: %w", err)
	}

	now := db.clock.Now()
	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO offline_queue (user_id, action_type, action_data, timestamp, synced)
	VALUES (?, ?, ?, ?, 0)`,
		userID, action.Type, action.StoredData(), schema.FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue item id: %w", err)
	}

	return &schema.QueueItem{
		ID:         id,
		UserID:     userID,
		ActionType: action.Type,
		ActionData: json.RawMessage(action.StoredData()),
		Timestamp:  now,
	}, nil
}

// ListPending returns userID's unsynced items, oldest first. Items with the
// same timestamp come back in insertion order.
func (db *DB) ListPending(ctx context.Context, userID string) ([]schema.PendingItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, action_type, action_data, timestamp
	FROM offline_queue
	WHERE user_id = ? AND synced = 0
	ORDER BY timestamp ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	items := []schema.PendingItem{}
	for rows.Next() {
		var (
			item schema.PendingItem
			data string
		)
		if err := rows.Scan(&item.ID, &item.ActionType, &data, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan pending item: %w", err)
		}
		item.ActionData = json.RawMessage(data)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending items: %w", err)
	}
	return items, nil
}

// MarkSynced flags each listed item as synced and returns how many rows
// actually changed. Already-synced and unknown ids contribute zero, so the
// call is idempotent. Each id is its own statement.
func (db *DB) MarkSynced(ctx context.Context, ids []int64) (int, error) {
	now := db.now()
	updated := 0
	for _, id := range ids {
		res, err := db.conn.ExecContext(ctx, `
		UPDATE offline_queue
		SET synced = 1, synced_at = ?
		WHERE id = ? AND synced = 0`, now, id)
		if err != nil {
			return updated, fmt.Errorf("failed to mark item %d as synced: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return updated, fmt.Errorf("failed to read rows affected: %w", err)
		}
		updated += int(n)
	}
	return updated, nil
}

// QueueStats aggregates userID's queue. Counts are zero and the time bounds
// nil when the user has no rows.
func (db *DB) QueueStats(ctx context.Context, userID string) (*schema.QueueStats, error) {
	var (
		stats          schema.QueueStats
		oldest, newest sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
		MIN(timestamp),
		MAX(timestamp)
	FROM offline_queue
	WHERE user_id = ?`, userID).Scan(
		&stats.TotalItems, &stats.SyncedItems, &stats.PendingItems, &oldest, &newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	stats.OldestItem = nullString(oldest)
	stats.NewestItem = nullString(newest)
	return &stats, nil
}

// RecentActionCounts counts userID's items per action type since the given
// time, most frequent first, ties by type name.
func (db *DB) RecentActionCounts(ctx context.Context, userID string, since time.Time) ([]schema.ActionCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT action_type, COUNT(*) AS count
	FROM offline_queue
	WHERE user_id = ? AND timestamp > ?
	GROUP BY action_type
	ORDER BY count DESC, action_type ASC`, userID, schema.FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent actions: %w", err)
	}
	defer rows.Close()

	counts := []schema.ActionCount{}
	for rows.Next() {
		var c schema.ActionCount
		if err := rows.Scan(&c.ActionType, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Now returns the DB clock's current time.
func (db *DB) Now() time.Time {
	return db.clock.Now()
}

// ProcedureProgress is the mutable part of a PROCEDURE_START row.
type ProcedureProgress struct {
	CurrentStep *int
	Status      *string
	Data        json.RawMessage
}

// UpdateProcedureProgress rewrites currentStep, status and data inside the
// PROCEDURE_START row for sessionID. Absent fields are written as JSON null.
// Returns ErrNotFound when no session matches.
func (db *DB) UpdateProcedureProgress(ctx context.Context, sessionID string, p ProcedureProgress) error {
	step, err := json.Marshal(p.CurrentStep)
	if err != nil {
		return fmt.Errorf("failed to marshal current step: %w", err)
	}
	status, err := json.Marshal(p.Status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	data := "null"
	if len(p.Data) > 0 {
		if !json.Valid(p.Data) {
			return fmt.Errorf("progress data is not valid JSON")
		}
		data = string(p.Data)
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE offline_queue
	SET action_data = json_set(action_data,
		'$.currentStep', json(?),
		'$.status', json(?),
		'$.data', json(?))
	WHERE action_type = ? AND json_extract(action_data, '$.sessionId') = ?`,
		string(step), string(status), data, schema.ActionProcedureStart, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update procedure progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("procedure session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// QueueFilter selects rows for ListQueueItems. Zero values mean "all".
type QueueFilter struct {
	UserID string
	Since  time.Time
}

// ListQueueItems returns full queue rows in id order.
func (db *DB) ListQueueItems(ctx context.Context, f QueueFilter) ([]schema.QueueItem, error) {
	since := ""
	if !f.Since.IsZero() {
		since = schema.FormatTime(f.Since)
	}

	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, COALESCE(user_id, ''), action_type, action_data, timestamp, synced, synced_at
	FROM offline_queue
	WHERE (? = '' OR user_id = ?) AND (? = '' OR timestamp >= ?)
	ORDER BY id ASC`, f.UserID, f.UserID, since, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	items := []schema.QueueItem{}
	for rows.Next() {
		var (
			item     schema.QueueItem
			data, ts string
			syncedAt sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.ActionType, &data, &ts, &item.Synced, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.ActionData = json.RawMessage(data)
		if item.Timestamp, err = schema.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("item %d: bad timestamp %q: %w", item.ID, ts, err)
		}
		if syncedAt.Valid {
			t, err := schema.ParseTime(syncedAt.String)
			if err != nil {
				return nil, fmt.Errorf("item %d: bad synced_at %q: %w", item.ID, syncedAt.String, err)
			}
			item.SyncedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue items: %w", err)
	}
	return items, nil
}

// ImportQueueItem appends a previously exported row, keeping its timestamps
// and synced state. The row gets a new id.
func (db *DB) ImportQueueItem(ctx context.Context, item *schema.QueueItem) (int64, error) {
	if err := item.Validate(); err != nil {
		return 0, fmt.Errorf("invalid queue item: %w", err)
	}

	data := "null"
	if len(item.ActionData) > 0 {
		data = string(item.ActionData)
	}
	var syncedAt any
	if item.SyncedAt != nil {
		syncedAt = schema.FormatTime(*item.SyncedAt)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO offline_queue (user_id, action_type, action_data, timestamp, synced, synced_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		item.UserID, item.ActionType, data, schema.FormatTime(item.Timestamp), item.Synced, syncedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to import queue item: %w", err)
	}
	return res.LastInsertId()
}
