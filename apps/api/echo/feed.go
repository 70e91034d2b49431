package echoapi

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/feed"
)

const postMediaFolder = "posts"

type feedApi struct {
	handlers
}

func registerFeedAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := feedApi{h}

	fg := g.Group("/feed", jwt)
	fg.GET("/posts", api.feed)
	fg.POST("/posts", api.createPost)
	fg.GET("/posts/:postId", api.retrievePost)
	fg.PUT("/posts/:postId", api.updatePost)
	fg.DELETE("/posts/:postId", api.destroyPost)
	fg.POST("/posts/:postId/pin", api.pinPost, adminMiddleware())
	fg.POST("/posts/:postId/like", api.toggleLike)
	fg.GET("/posts/:postId/comments", api.comments)
	fg.POST("/posts/:postId/comments", api.addComment)
	fg.DELETE("/comments/:commentId", api.destroyComment)
	fg.GET("/users/:userId/posts", api.userPosts)
}

func (api *feedApi) feed(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	posts, err := api.FeedSvc.Feed(ctx.Request().Context(), usr.ID, strings.ToUpper(ctx.QueryParam("type")), page)
	if err != nil {
		return errors.Wrap(err, "loading feed")
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *feedApi) userPosts(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	posts, err := api.FeedSvc.UserPosts(ctx.Request().Context(), usr.ID, ctx.Param("userId"), page)
	if err != nil {
		return errors.Wrap(err, "loading user posts")
	}
	return ctx.JSON(http.StatusOK, posts)
}

// createPost accepts a JSON body, or a multipart form with up to 4 `images`.
func (api *feedApi) createPost(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	var data feed.NewPost
	var files []*multipart.FileHeader
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := ctx.MultipartForm()
		if err != nil {
			return errors.Wrap(err, "parsing multipart form")
		}
		data.Content = ctx.FormValue("content")
		data.PostType = ctx.FormValue("post_type")
		data.Visibility = ctx.FormValue("visibility")
		files = form.File["images"]
	} else if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	if len(files) > feed.MaxPostMedia {
		return feed.ErrTooManyMedia
	}

	urls, err := api.saveImages(ctx, files)
	if err != nil {
		return err
	}
	post, err := api.FeedSvc.CreatePost(ctx.Request().Context(), usr, data, urls)
	if err != nil {
		api.deleteImages(urls)
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, post)
}

func (api *feedApi) saveImages(ctx echo.Context, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			api.deleteImages(urls)
			return nil, errors.Wrap(err, "opening uploaded image")
		}
		url, err := api.Media.SaveImage(ctx.Request().Context(), postMediaFolder, f)
		_ = f.Close()
		if err != nil {
			api.deleteImages(urls)
			return nil, errors.Wrap(err, "saving image")
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (api *feedApi) deleteImages(urls []string) {
	for _, url := range urls {
		if err := api.Media.Delete(url); err != nil {
			api.Logger.Error("deleting post image", err)
		}
	}
}

func (api *feedApi) retrievePost(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	post, err := api.FeedSvc.GetPost(ctx.Request().Context(), ctx.Param("postId"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "finding post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *feedApi) updatePost(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	var data feed.UpdatePost
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePost")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	post, err := api.FeedSvc.UpdatePost(ctx.Request().Context(), usr, ctx.Param("postId"), data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *feedApi) destroyPost(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	post, err := api.FeedSvc.GetPost(ctx.Request().Context(), ctx.Param("postId"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "finding post")
	}

	if err = api.FeedSvc.DeletePost(ctx.Request().Context(), usr, post.ID); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	api.deleteImages(post.MediaURLs)
	return ctx.NoContent(http.StatusNoContent)
}

// pinPost sets the pinned flag of a post, or toggles it when the body omits `is_pinned`.
func (api *feedApi) pinPost(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	var data PinRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PinRequest")
	}

	pinned := data.IsPinned
	if pinned == nil {
		post, err := api.FeedSvc.GetPost(ctx.Request().Context(), ctx.Param("postId"), usr.ID)
		if err != nil {
			return errors.Wrap(err, "finding post")
		}
		toggled := !post.IsPinned
		pinned = &toggled
	}

	post, err := api.FeedSvc.SetPinned(ctx.Request().Context(), ctx.Param("postId"), *pinned)
	if err != nil {
		return errors.Wrap(err, "pinning post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *feedApi) toggleLike(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	liked, count, err := api.FeedSvc.ToggleLike(ctx.Request().Context(), usr, ctx.Param("postId"))
	if err != nil {
		return errors.Wrap(err, "toggling like")
	}
	return ctx.JSON(http.StatusOK, LikeResponse{Liked: liked, LikesCount: count})
}

func (api *feedApi) comments(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	comments, err := api.FeedSvc.Comments(ctx.Request().Context(), usr.ID, ctx.Param("postId"), page)
	if err != nil {
		return errors.Wrap(err, "loading comments")
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *feedApi) addComment(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	var data feed.NewComment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	comment, err := api.FeedSvc.AddComment(ctx.Request().Context(), usr, ctx.Param("postId"), data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, comment)
}

func (api *feedApi) destroyComment(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	if err = api.FeedSvc.DeleteComment(ctx.Request().Context(), usr, ctx.Param("commentId")); err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	PinRequest struct {
		IsPinned *bool `json:"is_pinned"`
	}

	LikeResponse struct {
		Liked      bool `json:"liked"`
		LikesCount int  `json:"likes_count"`
	}
)
