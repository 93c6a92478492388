package repo

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"teamportal/internal/domain"
)

// InsertNotificationsTx writes the batch inside tx; the caller commits
// all rows together or none.
func (r Repo) InsertNotificationsTx(ctx context.Context, tx *sqlx.Tx, items []domain.Notification) error {
	stmt := tx.Rebind(`INSERT INTO notifications(id,user_id,type,title,message,data,read,created_at) VALUES (?,?,?,?,?,?,?,?)`)
	for _, n := range items {
		data := n.Data
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(err, "marshal notification data")
		}
		if _, err := tx.ExecContext(ctx, stmt, n.ID, n.UserID, n.Type, n.Title, n.Message, string(raw), n.Read, n.CreatedAt); err != nil {
			return errors.Wrapf(err, "insert notification for %s", n.UserID)
		}
	}
	return nil
}

type notificationRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Type      string `db:"type"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Data      string `db:"data"`
	Read      bool   `db:"read"`
	CreatedAt string `db:"created_at"`
}

// ListNotifications returns the newest notifications, optionally for one recipient.
func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,user_id,type,title,message,data,read,created_at FROM notifications`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)
	var rows []notificationRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	res := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		n := domain.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			Type:      row.Type,
			Title:     row.Title,
			Message:   row.Message,
			Read:      row.Read,
			CreatedAt: row.CreatedAt,
		}
		if row.Data != "" {
			if err := json.Unmarshal([]byte(row.Data), &n.Data); err != nil {
				return nil, errors.Wrapf(err, "decode notification %s", row.ID)
			}
		}
		res = append(res, n)
	}
	return res, nil
}
