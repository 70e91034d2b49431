package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/user"
	emailsvc "github.com/trezcool/sala/services/email"
	"github.com/trezcool/sala/storage/cache"
	inmemdb "github.com/trezcool/sala/storage/database/inmem"
	"github.com/trezcool/sala/tests"
)

func TestScheduler(t *testing.T) {
	conf := testutil.NewConfig(t)
	var ok, failed, panicked int32

	s := NewScheduler(
		testutil.NewLogger(conf),
		Job{Name: "ok", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&ok, 1)
			return nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&failed, 1)
			return errors.New("boom")
		}},
		Job{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&panicked, 1)
			panic("boom")
		}},
		Job{Name: "disabled", Run: func(context.Context) error {
			t.Error("a job without interval must not run")
			return nil
		}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ok) >= 2 && atomic.LoadInt32(&failed) >= 2 && atomic.LoadInt32(&panicked) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
}

func TestPasswordExpiry(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)
	usrRepo := inmemdb.NewUserRepository(inmemdb.New())
	users := user.NewService(usrRepo, emailsvc.NewMock(conf, logger), conf, logger)
	notifications := notification.NewService(inmemdb.NewNotificationRepository(inmemdb.New()), nil)

	expired := testutil.CreateUser(t, usrRepo, "Sok Dara", "dara", "dara@test.kh", "pwd", []string{user.RoleTeacher}, true)
	expired.IsDefaultPassword = true
	expired.PasswordExpiresAt = time.Now().Add(-time.Hour)
	_, err := usrRepo.UpdateUser(ctx, expired)
	require.NoError(t, err)

	pending := testutil.CreateUser(t, usrRepo, "Chan Srey", "srey", "srey@test.kh", "pwd", []string{user.RoleTeacher}, true)
	pending.IsDefaultPassword = true
	pending.PasswordExpiresAt = time.Now().Add(time.Hour)
	_, err = usrRepo.UpdateUser(ctx, pending)
	require.NoError(t, err)

	job := PasswordExpiry(time.Hour, users, notifications, logger)
	require.NoError(t, job.Run(ctx))

	got, err := users.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	got, err = users.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	list, err := notifications.List(ctx, expired.ID, core.Page{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, notification.TypePassword, list.Notifications[0].Type)

	// already suspended accounts are left alone
	require.NoError(t, job.Run(ctx))
	list, _ = notifications.List(ctx, expired.ID, core.Page{})
	assert.Len(t, list.Notifications, 1)
}

func TestBlacklistPurge(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	require.NoError(t, store.Revoke(ctx, "expired", time.Now().Add(-time.Minute)))
	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Hour)))

	require.NoError(t, BlacklistPurge(time.Minute, store).Run(ctx))
	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}
