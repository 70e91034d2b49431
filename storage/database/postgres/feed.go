package pgrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/feed"
)

const (
	// $1: viewer ID, or NULL
	selectPostSQL = `SELECT p.id, p.author_id, p.content, p.post_type, p.visibility, p.is_pinned, p.media_urls,
		p.created_at, p.updated_at, u.first_name AS author_first_name, u.last_name AS author_last_name,
		u.avatar_url AS author_avatar_url, u.roles AS author_roles,
		(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id) AS likes_count,
		(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id) AS comments_count,
		EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = ?::uuid) AS is_liked
		FROM posts p JOIN users u ON u.id = p.author_id`

	selectCommentSQL = `SELECT c.id, c.post_id, c.author_id, c.content, c.created_at,
		u.first_name AS author_first_name, u.last_name AS author_last_name, u.avatar_url AS author_avatar_url,
		u.roles AS author_roles
		FROM post_comments c JOIN users u ON u.id = c.author_id`
)

type authorRow struct {
	FirstName string         `db:"author_first_name"`
	LastName  string         `db:"author_last_name"`
	AvatarURL null.String    `db:"author_avatar_url"`
	Roles     pq.StringArray `db:"author_roles"`
}

func (row authorRow) author(id string) feed.Author {
	return feed.Author{
		ID:        id,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		AvatarURL: row.AvatarURL.String,
		Roles:     stringsOf(row.Roles),
	}
}

type postRow struct {
	authorRow
	ID            string         `db:"id"`
	AuthorID      string         `db:"author_id"`
	Content       string         `db:"content"`
	PostType      string         `db:"post_type"`
	Visibility    string         `db:"visibility"`
	IsPinned      bool           `db:"is_pinned"`
	MediaURLs     pq.StringArray `db:"media_urls"`
	LikesCount    int            `db:"likes_count"`
	CommentsCount int            `db:"comments_count"`
	IsLiked       bool           `db:"is_liked"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (row postRow) post() feed.Post {
	return feed.Post{
		ID:            row.ID,
		AuthorID:      row.AuthorID,
		Author:        row.author(row.AuthorID),
		Content:       row.Content,
		PostType:      row.PostType,
		Visibility:    row.Visibility,
		IsPinned:      row.IsPinned,
		MediaURLs:     stringsOf(row.MediaURLs),
		LikesCount:    row.LikesCount,
		CommentsCount: row.CommentsCount,
		IsLiked:       row.IsLiked,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type commentRow struct {
	authorRow
	ID        string    `db:"id"`
	PostID    string    `db:"post_id"`
	AuthorID  string    `db:"author_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (row commentRow) comment() feed.Comment {
	return feed.Comment{
		ID:        row.ID,
		PostID:    row.PostID,
		AuthorID:  row.AuthorID,
		Author:    row.author(row.AuthorID),
		Content:   row.Content,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type feedRepository struct {
	base
}

var _ feed.Repository = (*feedRepository)(nil) // interface compliance check

func NewFeedRepository(db core.DB) *feedRepository {
	return &feedRepository{base{db: db}}
}

// viewer returns the viewer ID as a query argument, NULL when it is not a valid ID.
func viewer(id string) null.String {
	return null.NewString(id, validID(id))
}

func (repo *feedRepository) CreatePost(ctx context.Context, p feed.Post) (feed.Post, error) {
	p.ID = newID()
	media := p.MediaURLs
	if media == nil {
		media = []string{}
	}
	_, err := repo.db.ExecContext(ctx, `INSERT INTO posts (id, author_id, content, post_type, visibility,
		is_pinned, media_urls, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.AuthorID, p.Content, p.PostType, p.Visibility, p.IsPinned, pq.StringArray(media),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return feed.Post{}, errors.Wrap(err, "inserting post")
	}
	return repo.GetPost(ctx, p.ID, p.AuthorID)
}

func (repo *feedRepository) QueryPosts(ctx context.Context, filter feed.QueryFilter, page core.Page) ([]feed.Post, int, error) {
	w := &where{}
	if filter.AuthorID != "" {
		w.in("p.author_id", []string{filter.AuthorID})
	}
	if filter.PostType != "" {
		w.add("p.post_type = ?", filter.PostType)
	}
	if filter.OnlyVisible {
		w.add("(p.visibility = ANY(?) OR p.author_id = ?)",
			pq.Array([]string{feed.VisibilityPublic, feed.VisibilitySchool}), viewer(filter.ViewerID))
	}

	total, err := repo.count(ctx, "SELECT COUNT(*) FROM posts p"+w.String(), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting posts")
	}

	args := append([]interface{}{viewer(filter.ViewerID)}, w.args...)
	args = append(args, page.Size, page.Offset())
	query := selectPostSQL + w.String() + " ORDER BY p.is_pinned DESC, p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	var rows []postRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting posts")
	}
	posts := make([]feed.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.post())
	}
	return posts, total, nil
}

func (repo *feedRepository) GetPost(ctx context.Context, id, viewerID string) (feed.Post, error) {
	if !validID(id) {
		return feed.Post{}, feed.ErrPostNotFound
	}
	var row postRow
	query := repo.db.Rebind(selectPostSQL + " WHERE p.id = ?")
	if err := repo.db.GetContext(ctx, &row, query, viewer(viewerID), id); err != nil {
		return feed.Post{}, trapNoRows(err, feed.ErrPostNotFound, "selecting post")
	}
	return row.post(), nil
}

func (repo *feedRepository) UpdatePost(ctx context.Context, p feed.Post) (feed.Post, error) {
	if !validID(p.ID) {
		return feed.Post{}, feed.ErrPostNotFound
	}
	media := p.MediaURLs
	if media == nil {
		media = []string{}
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, `UPDATE posts SET content = $2, post_type = $3,
		visibility = $4, is_pinned = $5, media_urls = $6, updated_at = $7 WHERE id = $1`,
		p.ID, p.Content, p.PostType, p.Visibility, p.IsPinned, pq.StringArray(media), p.UpdatedAt.UTC()))
	if err != nil {
		return feed.Post{}, errors.Wrap(err, "updating post")
	}
	if n == 0 {
		return feed.Post{}, feed.ErrPostNotFound
	}
	return repo.GetPost(ctx, p.ID, p.AuthorID)
}

func (repo *feedRepository) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return feed.ErrPostNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	if n == 0 {
		return feed.ErrPostNotFound
	}
	return nil
}

func (repo *feedRepository) ToggleLike(ctx context.Context, postID, userID string) (bool, int, error) {
	if !validID(postID) || !validID(userID) {
		return false, 0, feed.ErrPostNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx,
		"DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2", postID, userID))
	if err != nil {
		return false, 0, errors.Wrap(err, "unliking post")
	}
	liked := n == 0
	if liked {
		_, err = repo.db.ExecContext(ctx, `INSERT INTO post_likes (post_id, user_id, created_at)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, postID, userID, time.Now().UTC())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
				return false, 0, feed.ErrPostNotFound
			}
			return false, 0, errors.Wrap(err, "liking post")
		}
	}
	count, err := repo.count(ctx, "SELECT COUNT(*) FROM post_likes WHERE post_id = ?", postID)
	return liked, count, errors.Wrap(err, "counting likes")
}

func (repo *feedRepository) CreateComment(ctx context.Context, c feed.Comment) (feed.Comment, error) {
	c.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO post_comments (id, post_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`, c.ID, c.PostID, c.AuthorID, c.Content, c.CreatedAt.UTC())
	if err != nil {
		return feed.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return repo.GetComment(ctx, c.ID)
}

func (repo *feedRepository) QueryComments(ctx context.Context, postID string, page core.Page) ([]feed.Comment, int, error) {
	if !validID(postID) {
		return []feed.Comment{}, 0, nil
	}
	total, err := repo.count(ctx, "SELECT COUNT(*) FROM post_comments WHERE post_id = ?", postID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting comments")
	}

	var rows []commentRow
	query := selectCommentSQL + " WHERE c.post_id = $1 ORDER BY c.created_at, c.id LIMIT $2 OFFSET $3"
	if err = repo.db.SelectContext(ctx, &rows, query, postID, page.Size, page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "selecting comments")
	}
	comments := make([]feed.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.comment())
	}
	return comments, total, nil
}

func (repo *feedRepository) GetComment(ctx context.Context, id string) (feed.Comment, error) {
	if !validID(id) {
		return feed.Comment{}, feed.ErrCommentNotFound
	}
	var row commentRow
	if err := repo.db.GetContext(ctx, &row, selectCommentSQL+" WHERE c.id = $1", id); err != nil {
		return feed.Comment{}, trapNoRows(err, feed.ErrCommentNotFound, "selecting comment")
	}
	return row.comment(), nil
}

func (repo *feedRepository) DeleteComment(ctx context.Context, id string) error {
	if !validID(id) {
		return feed.ErrCommentNotFound
	}
	n, err := repo.affected(repo.db.ExecContext(ctx, "DELETE FROM post_comments WHERE id = $1", id))
	if err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	if n == 0 {
		return feed.ErrCommentNotFound
	}
	return nil
}
