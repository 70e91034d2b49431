package tests

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/sala/apps/api/echo"
	"github.com/trezcool/sala/core/feed"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/user"
)

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: 80, B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newPostForm builds a multipart post with `n` images.
func newPostForm(t *testing.T, token, content string, n int) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", content))
	require.NoError(t, mw.WriteField("post_type", "announcement"))
	for i := 0; i < n; i++ {
		fw, err := mw.CreateFormFile("images", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(pngBytes(t))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/feed/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func Test_feedApi_posts(t *testing.T) {
	app := setup(t)
	author := app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)
	reader := app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent)
	admin := app.createUser(t, "Admin Root", "root", testPwd, user.RoleAdmin)
	authorToken, readerToken, adminToken := app.getToken(t, author), app.getToken(t, reader), app.getToken(t, admin)

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/api/feed/posts",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "blank content",
			method:   http.MethodPost,
			path:     "/api/feed/posts",
			body:     marchallObj(t, feed.NewPost{Content: "   "}),
			token:    authorToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad visibility",
			method:   http.MethodPost,
			path:     "/api/feed/posts",
			body:     marchallObj(t, feed.NewPost{Content: "hello", Visibility: "everyone"}),
			token:    authorToken,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCode(t, tt, rec)
		})
	}

	rec := app.do(http.MethodPost, "/api/feed/posts", authorToken, marchallObj(t, feed.NewPost{Content: " Exams start on Monday "}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post feed.Post
	unmarshal(t, rec, &post)
	assert.Equal(t, "Exams start on Monday", post.Content)
	assert.Equal(t, feed.TypeStatus, post.PostType)
	assert.Equal(t, feed.VisibilitySchool, post.Visibility)
	assert.Equal(t, []string{}, post.MediaURLs)

	rec = app.do(http.MethodPost, "/api/feed/posts", authorToken,
		marchallObj(t, feed.NewPost{Content: "note to self", Visibility: feed.VisibilityPrivate}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var private feed.Post
	unmarshal(t, rec, &private)

	t.Run("private posts are hidden", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/feed/posts/"+private.ID, readerToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(http.MethodGet, "/api/feed/posts", readerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page feed.Page
		unmarshal(t, rec, &page)
		require.Len(t, page.Posts, 1)
		assert.Equal(t, post.ID, page.Posts[0].ID)

		rec = app.do(http.MethodGet, "/api/feed/users/"+author.ID+"/posts", authorToken, nil)
		unmarshal(t, rec, &page)
		assert.Len(t, page.Posts, 2)
	})

	t.Run("only the author updates", func(t *testing.T) {
		content := "Exams start on Tuesday"
		body := marchallObj(t, feed.UpdatePost{Content: &content})
		rec := app.do(http.MethodPut, "/api/feed/posts/"+post.ID, readerToken, body)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPut, "/api/feed/posts/"+post.ID, authorToken, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated feed.Post
		unmarshal(t, rec, &updated)
		assert.Equal(t, content, updated.Content)
	})

	t.Run("pin", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/pin", authorToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/pin", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var pinned feed.Post
		unmarshal(t, rec, &pinned)
		assert.True(t, pinned.IsPinned)

		rec = app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/pin", adminToken, []byte(`{"is_pinned": true}`))
		unmarshal(t, rec, &pinned)
		assert.True(t, pinned.IsPinned)
	})

	t.Run("only the author or an admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/feed/posts/"+post.ID, readerToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodDelete, "/api/feed/posts/"+post.ID, adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, "/api/feed/posts/"+post.ID, authorToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_feedApi_images(t *testing.T) {
	app := setup(t)
	token := app.getToken(t, app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher))

	t.Run("too many images", func(t *testing.T) {
		req, rec := newPostForm(t, token, "sports day", feed.MaxPostMedia+1)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "too many images")
	})

	var post feed.Post
	t.Run("saves images", func(t *testing.T) {
		req, rec := newPostForm(t, token, "sports day", 2)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &post)
		assert.Equal(t, feed.TypeAnnouncement, post.PostType)
		require.Len(t, post.MediaURLs, 2)
		for _, url := range post.MediaURLs {
			assert.True(t, strings.HasPrefix(url, "/media/posts/"), url)
			_, err := os.Stat(filepath.Join(app.conf.Media.Dir, "posts", filepath.Base(url)))
			assert.NoError(t, err)
		}
	})

	t.Run("deleting the post removes its images", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/feed/posts/"+post.ID, token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		for _, url := range post.MediaURLs {
			_, err := os.Stat(filepath.Join(app.conf.Media.Dir, "posts", filepath.Base(url)))
			assert.True(t, os.IsNotExist(err))
		}
	})
}

func Test_feedApi_interactions(t *testing.T) {
	app := setup(t)
	author := app.createUser(t, "Sok Dara", "dara", testPwd, user.RoleTeacher)
	reader := app.createUser(t, "Chan Srey", "srey", testPwd, user.RoleStudent)
	other := app.createUser(t, "Keo Vuthy", "vuthy", testPwd, user.RoleStudent)
	authorToken, readerToken, otherToken := app.getToken(t, author), app.getToken(t, reader), app.getToken(t, other)

	post, err := app.feed.CreatePost(ctxBg, author, feed.NewPost{Content: "Welcome back", PostType: feed.TypeStatus, Visibility: feed.VisibilityPublic}, nil)
	require.NoError(t, err)

	t.Run("like toggles", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/like", readerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LikeResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, echoapi.LikeResponse{Liked: true, LikesCount: 1}, resp)

		rec = app.do(http.MethodGet, "/api/feed/posts/"+post.ID, readerToken, nil)
		var got feed.Post
		unmarshal(t, rec, &got)
		assert.True(t, got.IsLiked)
		assert.Equal(t, 1, got.LikesCount)

		rec = app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/like", readerToken, nil)
		unmarshal(t, rec, &resp)
		assert.Equal(t, echoapi.LikeResponse{Liked: false, LikesCount: 0}, resp)
	})

	t.Run("own like does not notify", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/like", authorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		n, err := app.notifications.UnreadCount(ctxBg, author.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n) // the like of the reader
	})

	var comment feed.Comment
	t.Run("comment", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/comments", readerToken, []byte(`{"content": ""}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(http.MethodPost, "/api/feed/posts/"+post.ID+"/comments", readerToken, marchallObj(t, feed.NewComment{Content: "Thanks!"}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &comment)
		assert.Equal(t, reader.ID, comment.Author.ID)

		rec = app.do(http.MethodGet, "/api/feed/posts/"+post.ID+"/comments", otherToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page feed.CommentPage
		unmarshal(t, rec, &page)
		require.Len(t, page.Comments, 1)
		assert.Equal(t, "Thanks!", page.Comments[0].Content)
	})

	t.Run("others cannot delete a comment", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/feed/comments/"+comment.ID, otherToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("post author deletes a comment", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/feed/comments/"+comment.ID, authorToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("notifications", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/notifications/unread-count", authorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var count echoapi.CountResponse
		unmarshal(t, rec, &count)
		assert.Equal(t, 2, count.Count)

		rec = app.do(http.MethodGet, "/api/notifications", authorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list notification.List
		unmarshal(t, rec, &list)
		require.Len(t, list.Notifications, 2)
		assert.Equal(t, 2, list.UnreadCount)
		types := []string{list.Notifications[0].Type, list.Notifications[1].Type}
		assert.ElementsMatch(t, []string{notification.TypeLike, notification.TypeComment}, types)

		rec = app.do(http.MethodPost, "/api/notifications/"+list.Notifications[0].ID+"/read", readerToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(http.MethodPost, "/api/notifications/"+list.Notifications[0].ID+"/read", authorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = app.do(http.MethodGet, "/api/notifications/unread-count", authorToken, nil)
		unmarshal(t, rec, &count)
		assert.Equal(t, 1, count.Count)

		rec = app.do(http.MethodPost, "/api/notifications/read-all", authorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &count)
		assert.Equal(t, 1, count.Count)

		rec = app.do(http.MethodGet, "/api/notifications/unread-count", authorToken, nil)
		unmarshal(t, rec, &count)
		assert.Zero(t, count.Count)
	})
}
