package pgrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/notification"
)

const notificationColumns = "id, user_id, actor_id, type, title, message, link, is_read, created_at"

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	ActorID   null.String `db:"actor_id"`
	Type      string      `db:"type"`
	Title     string      `db:"title"`
	Message   string      `db:"message"`
	Link      string      `db:"link"`
	IsRead    bool        `db:"is_read"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		ActorID:   row.ActorID.String,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Link:      row.Link,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	base
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DB) *notificationRepository {
	return &notificationRepository{base{db: db}}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID()
	actor := null.NewString(n.ActorID, validID(n.ActorID))
	_, err := repo.db.ExecContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, actor, n.Type, n.Title, n.Message, n.Link, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, page core.Page) ([]notification.Notification, int, error) {
	if !validID(userID) {
		return []notification.Notification{}, 0, nil
	}
	total, err := repo.count(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ?", userID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}

	var rows []notificationRow
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	if err = repo.db.SelectContext(ctx, &rows, query, userID, page.Size, page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "selecting notifications")
	}
	items := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.notification())
	}
	return items, total, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND NOT is_read", userID)
	return n, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	if !validID(userID) || !validID(id) {
		return notification.ErrNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2", id, userID))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read", userID))
	return n, errors.Wrap(err, "marking notifications read")
}
