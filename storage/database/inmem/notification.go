package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n.ID = newID()
	repo.db.notifications[n.ID] = n
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, page core.Page) ([]notification.Notification, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for id, n := range repo.db.notifications {
		if n.UserID == userID {
			ids = append(ids, id)
		}
	}
	sortByCreatedAt(ids, func(id string) time.Time { return repo.db.notifications[id].CreatedAt }, true)

	total := len(ids)
	start, end := page.Slice(total)
	items := make([]notification.Notification, 0, end-start)
	for _, id := range ids[start:end] {
		items = append(items, repo.db.notifications[id])
	}
	return items, total, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	n := 0
	for _, item := range repo.db.notifications {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotFound
	}
	n.IsRead = true
	repo.db.notifications[id] = n
	return nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cnt := 0
	for id, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			repo.db.notifications[id] = n
			cnt++
		}
	}
	return cnt, nil
}
