package tests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/user"
	"github.com/trezcool/sala/services/realtime"
)

func Test_realtimeApi(t *testing.T) {
	app := setup(t)
	srv := httptest.NewServer(app)
	defer srv.Close()
	defer app.hub.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	author := app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)
	reader := app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleTeacher)
	token := app.getToken(t, reader)

	dialErr := func(t *testing.T, url string, header http.Header) int {
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		return resp.StatusCode
	}

	t.Run("no token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, dialErr(t, wsURL, nil))
	})

	t.Run("bad token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, dialErr(t, wsURL+"?token=nope", nil))
	})

	t.Run("revoked token", func(t *testing.T) {
		revoked := app.getToken(t, author)
		rec := app.do(http.MethodPost, "/api/auth/logout", revoked, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Equal(t, http.StatusUnauthorized, dialErr(t, wsURL+"?token="+revoked, nil))
	})

	t.Run("receives new notifications", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool { return app.hub.Connections(reader.ID) == 1 }, time.Second, 5*time.Millisecond)

		err = app.notifications.Notify(ctxBg, notification.Notification{
			UserID: reader.ID, ActorID: author.ID, Type: notification.TypeLike, Title: "New like",
		})
		require.NoError(t, err)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev struct {
			Event string                    `json:"event"`
			Data  notification.Notification `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, realtime.EventNotification, ev.Event)
		assert.NotEmpty(t, ev.Data.ID)
		assert.Equal(t, reader.ID, ev.Data.UserID)
		assert.Equal(t, "New like", ev.Data.Title)
		assert.False(t, ev.Data.IsRead)
	})

	t.Run("bearer header", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + token}})
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("deactivated account", func(t *testing.T) {
		blocked := app.createUser(t, "Keo Vuthy", "vuthy", testPwd, user.RoleTeacher)
		blockedToken := app.getToken(t, blocked)
		blocked.IsActive = false
		_, err := app.usrRepo.UpdateUser(ctxBg, blocked)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, dialErr(t, wsURL+"?token="+blockedToken, nil))
	})
}
