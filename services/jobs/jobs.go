package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/user"
)

type (
	PasswordExpirer interface {
		ExpireDefaultPasswords(ctx context.Context) ([]user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, n notification.Notification) error
	}

	// Purger drops expired entries, eg: revoked tokens kept in memory.
	Purger interface {
		Purge(ctx context.Context) (int, error)
	}
)

// PasswordExpiry deactivates the accounts whose temporary password expired and notifies their owners.
func PasswordExpiry(interval time.Duration, users PasswordExpirer, notifier Notifier, logger core.Logger) Job {
	return Job{
		Name:     "password-expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			expired, err := users.ExpireDefaultPasswords(ctx)
			if err != nil {
				return errors.Wrap(err, "expiring default passwords")
			}
			for _, usr := range expired {
				err = notifier.Notify(ctx, notification.Notification{
					UserID:  usr.ID,
					Type:    notification.TypePassword,
					Title:   "Account suspended",
					Message: "Your temporary password expired. Contact an administrator to reactivate your account.",
				})
				if err != nil {
					logger.Error("notifying password expiry", err, map[string]interface{}{"user_id": usr.ID})
				}
			}
			if len(expired) > 0 {
				logger.Info("accounts suspended for expired passwords", map[string]interface{}{"count": len(expired)})
			}
			return nil
		},
	}
}

// BlacklistPurge drops the revoked tokens that expired.
func BlacklistPurge(interval time.Duration, purger Purger) Job {
	return Job{
		Name:     "blacklist-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := purger.Purge(ctx)
			return errors.Wrap(err, "purging token blacklist")
		},
	}
}
