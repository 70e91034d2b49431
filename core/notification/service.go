package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

// Types
const (
	TypeLike     = "LIKE"
	TypeComment  = "COMMENT"
	TypeAccount  = "ACCOUNT"
	TypePassword = "PASSWORD"
)

var ErrNotFound = core.NewNotFoundError("notification not found")

type (
	Notification struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		ActorID   string    `json:"actor_id"`
		Type      string    `json:"type"`
		Title     string    `json:"title"`
		Message   string    `json:"message"`
		Link      string    `json:"link"`
		IsRead    bool      `json:"is_read"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	List struct {
		Notifications []Notification  `json:"notifications"`
		UnreadCount   int             `json:"unread_count"`
		Pagination    core.Pagination `json:"pagination"`
	}

	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryNotifications returns a page of the notifications of a user, newest first, and their total.
		QueryNotifications(ctx context.Context, userID string, page core.Page) ([]Notification, int, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead returns ErrNotFound if the notification does not belong to the user.
		MarkRead(ctx context.Context, userID, id string) error
		MarkAllRead(ctx context.Context, userID string) (int, error)
	}

	// Publisher pushes the recorded notifications to the connected recipients.
	Publisher interface {
		Publish(n Notification)
	}

	Service struct {
		repo      Repository
		publisher Publisher
	}
)

// NewService returns the notification service. `publisher` may be nil.
func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// Notify records a notification and publishes it. Users are never notified of their own actions.
func (svc *Service) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" || n.UserID == n.ActorID {
		return nil
	}
	n.IsRead = false
	n.CreatedAt = time.Now().UTC()
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return errors.Wrap(err, "creating notification")
	}
	if svc.publisher != nil {
		svc.publisher.Publish(n)
	}
	return nil
}

func (svc *Service) List(ctx context.Context, userID string, page core.Page) (List, error) {
	page.Clean()
	items, total, err := svc.repo.QueryNotifications(ctx, userID, page)
	if err != nil {
		return List{}, errors.Wrap(err, "querying notifications")
	}
	unread, err := svc.repo.CountUnread(ctx, userID)
	if err != nil {
		return List{}, errors.Wrap(err, "counting unread notifications")
	}
	if items == nil {
		items = []Notification{}
	}
	return List{Notifications: items, UnreadCount: unread, Pagination: core.NewPagination(page, total)}, nil
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, userID, id string) error {
	return svc.repo.MarkRead(ctx, userID, id)
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkAllRead(ctx, userID)
}
