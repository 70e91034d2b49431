// Package inmemdb keeps all the data in process memory. Used by tests and the "memory" engine.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/feed"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

// DB holds every table behind a single lock, so that cascades stay consistent.
type DB struct {
	mu sync.RWMutex

	users         map[string]user.User
	classes       map[string]school.Class
	subjects      map[string]school.Subject
	students      map[string]student.Student
	teachers      map[string]teacher.Teacher
	parents       map[string]parent.Parent
	attendance    map[string]attendance.Attendance
	grades        map[string]grade.Grade
	posts         map[string]feed.Post
	likes         map[string]map[string]time.Time // post ID -> user ID -> liked at
	comments      map[string]feed.Comment
	notifications map[string]notification.Notification
}

func New() *DB {
	return &DB{
		users:         make(map[string]user.User),
		classes:       make(map[string]school.Class),
		subjects:      make(map[string]school.Subject),
		students:      make(map[string]student.Student),
		teachers:      make(map[string]teacher.Teacher),
		parents:       make(map[string]parent.Parent),
		attendance:    make(map[string]attendance.Attendance),
		grades:        make(map[string]grade.Grade),
		posts:         make(map[string]feed.Post),
		likes:         make(map[string]map[string]time.Time),
		comments:      make(map[string]feed.Comment),
		notifications: make(map[string]notification.Notification),
	}
}

func newID() string {
	return uuid.NewString()
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func without(s []string, val string) []string {
	kept := make([]string, 0, len(s))
	for _, v := range s {
		if v != val {
			kept = append(kept, v)
		}
	}
	return kept
}

// matches reports whether one of `fields` contains `search`, ignoring case.
func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// inList reports whether `val` is in `list`. An empty list matches everything.
func inList(list []string, val string) bool {
	return len(list) == 0 || core.Contains(list, val)
}

func lastCode(codes []string, prefix string) string {
	var last string
	for _, c := range codes {
		if strings.HasPrefix(c, prefix) && c > last {
			last = c
		}
	}
	return last
}

func sortByCreatedAt(ids []string, createdAt func(id string) time.Time, newestFirst bool) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := createdAt(ids[i]), createdAt(ids[j])
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		if newestFirst {
			return a.After(b)
		}
		return a.Before(b)
	})
}

// The helpers below must be called with the lock held.

func (db *DB) studentCount(classID string) int {
	n := 0
	for _, s := range db.students {
		if s.ClassID == classID {
			n++
		}
	}
	return n
}

func (db *DB) unlinkUser(userID string) {
	for id, s := range db.students {
		if s.UserID == userID {
			s.UserID = ""
			db.students[id] = s
		}
	}
	for id, t := range db.teachers {
		if t.UserID == userID {
			t.UserID = ""
			db.teachers[id] = t
		}
	}
	for id, p := range db.parents {
		if p.UserID == userID {
			p.UserID = ""
			db.parents[id] = p
		}
	}
	for id, p := range db.posts {
		if p.AuthorID == userID {
			db.deletePost(id)
		}
	}
	for id, c := range db.comments {
		if c.AuthorID == userID {
			delete(db.comments, id)
		}
	}
	for _, users := range db.likes {
		delete(users, userID)
	}
	for id, n := range db.notifications {
		if n.UserID == userID {
			delete(db.notifications, id)
		}
	}
}

func (db *DB) deletePost(id string) {
	delete(db.posts, id)
	delete(db.likes, id)
	for cid, c := range db.comments {
		if c.PostID == id {
			delete(db.comments, cid)
		}
	}
}
