package feed

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/user"
)

var (
	// errors
	ErrPostNotFound    = core.NewNotFoundError("post not found")
	ErrCommentNotFound = core.NewNotFoundError("comment not found")
	ErrNotPostAuthor   = core.NewPermissionError("you can only change your own posts")
	ErrCannotDelete    = core.NewPermissionError("you cannot delete this comment")
	ErrTooManyMedia    = core.NewValidationError(nil, core.FieldError{Field: "images", Error: "too many images"})
)

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post) (Post, error)
		// QueryPosts returns a page of posts, pinned first then newest, and their total.
		// LikesCount, CommentsCount and IsLiked (for filter.ViewerID) are filled.
		QueryPosts(ctx context.Context, filter QueryFilter, page core.Page) ([]Post, int, error)
		GetPost(ctx context.Context, id, viewerID string) (Post, error)
		UpdatePost(ctx context.Context, p Post) (Post, error)
		DeletePost(ctx context.Context, id string) error
		// ToggleLike likes or unlikes a post and returns whether it is now liked and its like count.
		ToggleLike(ctx context.Context, postID, userID string) (bool, int, error)
		CreateComment(ctx context.Context, c Comment) (Comment, error)
		// QueryComments returns a page of the comments of a post, oldest first, and their total.
		QueryComments(ctx context.Context, postID string, page core.Page) ([]Comment, int, error)
		GetComment(ctx context.Context, id string) (Comment, error)
		DeleteComment(ctx context.Context, id string) error
	}

	Notifier interface {
		Notify(ctx context.Context, n notification.Notification) error
	}

	Service struct {
		repo     Repository
		notifier Notifier
		logger   core.Logger
	}
)

func NewService(repo Repository, notifier Notifier, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

func authorOf(usr user.User) Author {
	return Author{
		ID:        usr.ID,
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		AvatarURL: usr.AvatarURL,
		Roles:     usr.Roles,
	}
}

func (svc *Service) CreatePost(ctx context.Context, author user.User, np NewPost, mediaURLs []string) (Post, error) {
	if len(mediaURLs) > MaxPostMedia {
		return Post{}, ErrTooManyMedia
	}
	if mediaURLs == nil {
		mediaURLs = []string{}
	}
	now := time.Now().UTC()
	p, err := svc.repo.CreatePost(ctx, Post{
		AuthorID:   author.ID,
		Content:    np.Content,
		PostType:   np.PostType,
		Visibility: np.Visibility,
		MediaURLs:  mediaURLs,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Post{}, errors.Wrap(err, "creating post")
	}
	p.Author = authorOf(author)
	return p, nil
}

// Feed returns the posts `viewer` may read: public and school posts, and their own.
func (svc *Service) Feed(ctx context.Context, viewerID, postType string, page core.Page) (Page, error) {
	page.Clean()
	if postType == "ALL" {
		postType = ""
	}
	filter := QueryFilter{ViewerID: viewerID, PostType: postType, OnlyVisible: true}
	return svc.query(ctx, filter, page)
}

// UserPosts returns the posts of `authorID` that `viewerID` may read.
func (svc *Service) UserPosts(ctx context.Context, viewerID, authorID string, page core.Page) (Page, error) {
	page.Clean()
	filter := QueryFilter{ViewerID: viewerID, AuthorID: authorID, OnlyVisible: viewerID != authorID}
	return svc.query(ctx, filter, page)
}

func (svc *Service) query(ctx context.Context, filter QueryFilter, page core.Page) (Page, error) {
	posts, total, err := svc.repo.QueryPosts(ctx, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying posts")
	}
	if posts == nil {
		posts = []Post{}
	}
	return Page{Posts: posts, Pagination: core.NewPagination(page, total)}, nil
}

func (svc *Service) GetPost(ctx context.Context, id, viewerID string) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id, viewerID)
	if err != nil {
		return Post{}, err
	}
	if !p.CanView(viewerID) {
		return Post{}, ErrPostNotFound
	}
	return p, nil
}

func (svc *Service) UpdatePost(ctx context.Context, actor user.User, id string, up UpdatePost) (Post, error) {
	p, err := svc.GetPost(ctx, id, actor.ID)
	if err != nil {
		return Post{}, err
	}
	if p.AuthorID != actor.ID {
		return Post{}, ErrNotPostAuthor
	}
	if up.Content != nil {
		p.Content = *up.Content
	}
	if up.PostType != nil {
		p.PostType = *up.PostType
	}
	if up.Visibility != nil {
		p.Visibility = *up.Visibility
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePost(ctx, p)
}

// DeletePost deletes a post of `actor`. Admins may delete any post.
func (svc *Service) DeletePost(ctx context.Context, actor user.User, id string) error {
	p, err := svc.repo.GetPost(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if p.AuthorID != actor.ID && !actor.IsAdmin() {
		return ErrNotPostAuthor
	}
	return svc.repo.DeletePost(ctx, id)
}

func (svc *Service) SetPinned(ctx context.Context, id string, pinned bool) (Post, error) {
	p, err := svc.repo.GetPost(ctx, id, "")
	if err != nil {
		return Post{}, err
	}
	p.IsPinned = pinned
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePost(ctx, p)
}

// ToggleLike likes or unlikes a post. Liking someone else's post notifies its author.
func (svc *Service) ToggleLike(ctx context.Context, actor user.User, postID string) (bool, int, error) {
	p, err := svc.GetPost(ctx, postID, actor.ID)
	if err != nil {
		return false, 0, err
	}
	liked, count, err := svc.repo.ToggleLike(ctx, p.ID, actor.ID)
	if err != nil {
		return false, 0, errors.Wrap(err, "toggling like")
	}
	if liked {
		svc.notify(ctx, notification.Notification{
			UserID:  p.AuthorID,
			ActorID: actor.ID,
			Type:    notification.TypeLike,
			Title:   "New like",
			Message: actor.Name() + " liked your post",
			Link:    "/feed/posts/" + p.ID,
		})
	}
	return liked, count, nil
}

func (svc *Service) Comments(ctx context.Context, viewerID, postID string, page core.Page) (CommentPage, error) {
	page.Clean()
	if _, err := svc.GetPost(ctx, postID, viewerID); err != nil {
		return CommentPage{}, err
	}
	comments, total, err := svc.repo.QueryComments(ctx, postID, page)
	if err != nil {
		return CommentPage{}, errors.Wrap(err, "querying comments")
	}
	if comments == nil {
		comments = []Comment{}
	}
	return CommentPage{Comments: comments, Pagination: core.NewPagination(page, total)}, nil
}

// AddComment comments a post. Commenting someone else's post notifies its author.
func (svc *Service) AddComment(ctx context.Context, actor user.User, postID string, nc NewComment) (Comment, error) {
	p, err := svc.GetPost(ctx, postID, actor.ID)
	if err != nil {
		return Comment{}, err
	}
	c, err := svc.repo.CreateComment(ctx, Comment{
		PostID:    p.ID,
		AuthorID:  actor.ID,
		Content:   nc.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Comment{}, errors.Wrap(err, "creating comment")
	}
	c.Author = authorOf(actor)

	svc.notify(ctx, notification.Notification{
		UserID:  p.AuthorID,
		ActorID: actor.ID,
		Type:    notification.TypeComment,
		Title:   "New comment",
		Message: actor.Name() + " commented on your post",
		Link:    "/feed/posts/" + p.ID,
	})
	return c, nil
}

// DeleteComment deletes a comment. The comment author, the post author and admins may delete it.
func (svc *Service) DeleteComment(ctx context.Context, actor user.User, commentID string) error {
	c, err := svc.repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actor.ID && !actor.IsAdmin() {
		p, err := svc.repo.GetPost(ctx, c.PostID, actor.ID)
		if err != nil {
			return err
		}
		if p.AuthorID != actor.ID {
			return ErrCannotDelete
		}
	}
	return svc.repo.DeleteComment(ctx, commentID)
}

// notify sends a notification. Failures are only logged.
func (svc *Service) notify(ctx context.Context, n notification.Notification) {
	if err := svc.notifier.Notify(ctx, n); err != nil {
		svc.logger.Error("notifying post author", err)
	}
}
