package realtime

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
	"github.com/trezcool/sala/tests"
)

func newTestServer(t *testing.T, hub *Hub) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub(t *testing.T) {
	conf := testutil.NewConfig(t)
	hub := NewHub(testutil.NewLogger(conf), []string{"https://school.kh"})
	url := newTestServer(t, hub)

	phone := dial(t, url+"?user=u1", nil)
	laptop := dial(t, url+"?user=u1", nil)
	other := dial(t, url+"?user=u2", nil)
	require.Eventually(t, func() bool {
		return hub.Connections("u1") == 2 && hub.Connections("u2") == 1
	}, time.Second, 5*time.Millisecond)

	t.Run("publishes to every connection of the recipient", func(t *testing.T) {
		hub.Publish(notification.Notification{ID: "n1", UserID: "u1", Type: notification.TypeLike, Title: "New like"})
		for _, conn := range []*websocket.Conn{phone, laptop} {
			ev := readEvent(t, conn)
			assert.Equal(t, EventNotification, ev.Event)
			data, ok := ev.Data.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "n1", data["id"])
			assert.Equal(t, "New like", data["title"])
		}

		hub.Send("u2", "ping", map[string]int{"n": 1})
		ev := readEvent(t, other)
		assert.Equal(t, "ping", ev.Event)
	})

	t.Run("closed connections are forgotten", func(t *testing.T) {
		require.NoError(t, laptop.Close())
		assert.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("unknown user", func(t *testing.T) {
		hub.Send("nobody", "ping", nil)
		assert.Zero(t, hub.Connections("nobody"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url+"?user=u3", http.Header{"Origin": {"https://evil.example"}})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		conn := dial(t, url+"?user=u3", http.Header{"Origin": {"https://school.kh"}})
		assert.NotNil(t, conn)
	})

	t.Run("close disconnects everyone", func(t *testing.T) {
		hub.Close()
		require.NoError(t, other.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := other.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), err)
		assert.Zero(t, hub.Connections("u2"))
	})
}
