package feed

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
)

// Post types
const (
	TypeStatus       = "STATUS"
	TypeAnnouncement = "ANNOUNCEMENT"
	TypeAchievement  = "ACHIEVEMENT"
	TypeQuestion     = "QUESTION"
)

// Visibilities
const (
	VisibilityPublic  = "PUBLIC"
	VisibilitySchool  = "SCHOOL"
	VisibilityClass   = "CLASS"
	VisibilityPrivate = "PRIVATE"
)

const MaxPostMedia = 4

type (
	Author struct {
		ID        string   `json:"id"`
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		AvatarURL string   `json:"avatar_url"`
		Roles     []string `json:"roles"`
	}

	Post struct {
		ID            string    `json:"id"`
		AuthorID      string    `json:"author_id"`
		Author        Author    `json:"author"`
		Content       string    `json:"content"`
		PostType      string    `json:"post_type"`
		Visibility    string    `json:"visibility"`
		IsPinned      bool      `json:"is_pinned"`
		MediaURLs     []string  `json:"media_urls"`
		LikesCount    int       `json:"likes_count"`
		CommentsCount int       `json:"comments_count"`
		IsLiked       bool      `json:"is_liked"`
		CreatedAt     time.Time `json:"created_at"` // UTC
		UpdatedAt     time.Time `json:"updated_at"` // UTC
	}

	Comment struct {
		ID        string    `json:"id"`
		PostID    string    `json:"post_id"`
		AuthorID  string    `json:"author_id"`
		Author    Author    `json:"author"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}
)

type NewPost struct {
	Content    string `json:"content" validate:"required,notblank,max=2000"`
	PostType   string `json:"post_type" validate:"omitempty,oneof=STATUS ANNOUNCEMENT ACHIEVEMENT QUESTION"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=PUBLIC SCHOOL CLASS PRIVATE"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Content = strings.TrimSpace(np.Content)
	np.PostType = strings.ToUpper(core.CleanString(np.PostType))
	np.Visibility = strings.ToUpper(core.CleanString(np.Visibility))
	if np.PostType == "" {
		np.PostType = TypeStatus
	}
	if np.Visibility == "" {
		np.Visibility = VisibilitySchool
	}
	return validate.Struct(np)
}

type UpdatePost struct {
	Content    *string `json:"content" validate:"omitempty,notblank,max=2000"`
	PostType   *string `json:"post_type" validate:"omitempty,oneof=STATUS ANNOUNCEMENT ACHIEVEMENT QUESTION"`
	Visibility *string `json:"visibility" validate:"omitempty,oneof=PUBLIC SCHOOL CLASS PRIVATE"`
}

func (up *UpdatePost) Validate(validate *validator.Validate) error {
	if up.Content != nil {
		content := strings.TrimSpace(*up.Content)
		up.Content = &content
	}
	if up.PostType != nil {
		pt := strings.ToUpper(core.CleanString(*up.PostType))
		up.PostType = &pt
	}
	if up.Visibility != nil {
		vis := strings.ToUpper(core.CleanString(*up.Visibility))
		up.Visibility = &vis
	}
	return validate.Struct(up)
}

type NewComment struct {
	Content string `json:"content" validate:"required,notblank,max=500"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Content = strings.TrimSpace(nc.Content)
	return validate.Struct(nc)
}

type QueryFilter struct {
	ViewerID string
	AuthorID string
	PostType string
	// OnlyVisible keeps PUBLIC and SCHOOL posts and those of the viewer
	OnlyVisible bool
}

// CanView reports whether `viewerID` may read the post.
func (p Post) CanView(viewerID string) bool {
	return p.AuthorID == viewerID || p.Visibility == VisibilityPublic || p.Visibility == VisibilitySchool
}

type Page struct {
	Posts      []Post          `json:"posts"`
	Pagination core.Pagination `json:"pagination"`
}

type CommentPage struct {
	Comments   []Comment       `json:"comments"`
	Pagination core.Pagination `json:"pagination"`
}
