package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/feed"
	"github.com/trezcool/sala/core/user"
)

type feedRepository struct {
	db *DB
}

var _ feed.Repository = (*feedRepository)(nil) // interface compliance check

func NewFeedRepository(db *DB) *feedRepository {
	return &feedRepository{db: db}
}

// author must be called with the lock held.
func (repo *feedRepository) author(id string) feed.Author {
	u, ok := repo.db.users[id]
	if !ok {
		return feed.Author{ID: id}
	}
	return authorOf(u)
}

func authorOf(u user.User) feed.Author {
	return feed.Author{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.AvatarURL,
		Roles:     cloneStrings(u.Roles),
	}
}

// fill must be called with the lock held.
func (repo *feedRepository) fill(p feed.Post, viewerID string) feed.Post {
	p.MediaURLs = cloneStrings(p.MediaURLs)
	if p.MediaURLs == nil {
		p.MediaURLs = []string{}
	}
	p.Author = repo.author(p.AuthorID)
	p.LikesCount = len(repo.db.likes[p.ID])
	_, p.IsLiked = repo.db.likes[p.ID][viewerID]
	p.CommentsCount = 0
	for _, c := range repo.db.comments {
		if c.PostID == p.ID {
			p.CommentsCount++
		}
	}
	return p
}

func (repo *feedRepository) CreatePost(_ context.Context, p feed.Post) (feed.Post, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	p.MediaURLs = cloneStrings(p.MediaURLs)
	repo.db.posts[p.ID] = p
	return repo.fill(p, p.AuthorID), nil
}

func (repo *feedRepository) QueryPosts(_ context.Context, filter feed.QueryFilter, page core.Page) ([]feed.Post, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	posts := make([]feed.Post, 0)
	for _, p := range repo.db.posts {
		if (filter.AuthorID != "" && p.AuthorID != filter.AuthorID) ||
			(filter.PostType != "" && p.PostType != filter.PostType) ||
			(filter.OnlyVisible && !p.CanView(filter.ViewerID)) {
			continue
		}
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(posts)
	start, end := page.Slice(total)
	paged := make([]feed.Post, 0, end-start)
	for _, p := range posts[start:end] {
		paged = append(paged, repo.fill(p, filter.ViewerID))
	}
	return paged, total, nil
}

func (repo *feedRepository) GetPost(_ context.Context, id, viewerID string) (feed.Post, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.posts[id]
	if !ok {
		return feed.Post{}, feed.ErrPostNotFound
	}
	return repo.fill(p, viewerID), nil
}

func (repo *feedRepository) UpdatePost(_ context.Context, p feed.Post) (feed.Post, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[p.ID]; !ok {
		return feed.Post{}, feed.ErrPostNotFound
	}
	p.MediaURLs = cloneStrings(p.MediaURLs)
	repo.db.posts[p.ID] = p
	return repo.fill(p, p.AuthorID), nil
}

func (repo *feedRepository) DeletePost(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[id]; !ok {
		return feed.ErrPostNotFound
	}
	repo.db.deletePost(id)
	return nil
}

func (repo *feedRepository) ToggleLike(_ context.Context, postID, userID string) (bool, int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[postID]; !ok {
		return false, 0, feed.ErrPostNotFound
	}
	users, ok := repo.db.likes[postID]
	if !ok {
		users = make(map[string]time.Time)
		repo.db.likes[postID] = users
	}
	_, liked := users[userID]
	if liked {
		delete(users, userID)
	} else {
		users[userID] = time.Now().UTC()
	}
	return !liked, len(users), nil
}

func (repo *feedRepository) CreateComment(_ context.Context, c feed.Comment) (feed.Comment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.posts[c.PostID]; !ok {
		return feed.Comment{}, feed.ErrPostNotFound
	}
	c.ID = newID()
	repo.db.comments[c.ID] = c
	c.Author = repo.author(c.AuthorID)
	return c, nil
}

func (repo *feedRepository) QueryComments(_ context.Context, postID string, page core.Page) ([]feed.Comment, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for id, c := range repo.db.comments {
		if c.PostID == postID {
			ids = append(ids, id)
		}
	}
	sortByCreatedAt(ids, func(id string) time.Time { return repo.db.comments[id].CreatedAt }, false)

	total := len(ids)
	start, end := page.Slice(total)
	comments := make([]feed.Comment, 0, end-start)
	for _, id := range ids[start:end] {
		c := repo.db.comments[id]
		c.Author = repo.author(c.AuthorID)
		comments = append(comments, c)
	}
	return comments, total, nil
}

func (repo *feedRepository) GetComment(_ context.Context, id string) (feed.Comment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.comments[id]
	if !ok {
		return feed.Comment{}, feed.ErrCommentNotFound
	}
	c.Author = repo.author(c.AuthorID)
	return c, nil
}

func (repo *feedRepository) DeleteComment(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.comments[id]; !ok {
		return feed.ErrCommentNotFound
	}
	delete(repo.db.comments, id)
	return nil
}
