package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CheckEmail(_ context.Context, email string, excludedIDs ...string) error {
	if email == "" {
		return nil
	}
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.students {
		if s.Email == email && !core.Contains(excludedIDs, s.ID) {
			return student.ErrEmailExists
		}
	}
	return nil
}

func (repo *studentRepository) LastCode(_ context.Context, prefix string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	codes := make([]string, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		codes = append(codes, s.StudentCode)
	}
	return lastCode(codes, prefix), nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.students[s.ID] = s
	return s, nil
}

// query must be called with the lock held.
func (repo *studentRepository) query(filter student.QueryFilter) []student.Student {
	students := make([]student.Student, 0)
	for _, s := range repo.db.students {
		if !matches(filter.Search, s.FirstName, s.LastName, s.KhmerName, s.StudentCode, s.Phone) ||
			(filter.ClassID != "" && s.ClassID != filter.ClassID) ||
			(len(filter.ClassIDs) > 0 && !core.Contains(filter.ClassIDs, s.ClassID)) ||
			(filter.Gender != "" && s.Gender != filter.Gender) ||
			!inList(filter.IDs, s.ID) ||
			(len(filter.UserIDs) > 0 && !core.Contains(filter.UserIDs, s.UserID)) ||
			(filter.HasAccount != nil && s.HasAccount() != *filter.HasAccount) {
			continue
		}
		if filter.Grade != 0 {
			cls, ok := repo.db.classes[s.ClassID]
			if !ok || cls.Grade != filter.Grade {
				continue
			}
		}
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].StudentCode < students[j].StudentCode })
	return students
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter) ([]student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := repo.query(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(students) {
			return []student.Student{}, nil
		}
		students = students[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(students) {
		students = students[:filter.Limit]
	}
	return students, nil
}

func (repo *studentRepository) CountStudents(_ context.Context, filter student.QueryFilter) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.query(filter)), nil
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if s, ok := repo.db.students[filter.ID]; ok {
			return s, nil
		}
		return student.Student{}, student.ErrNotFound
	}
	for _, s := range repo.db.students {
		if (filter.UserID != "" && s.UserID == filter.UserID) || (filter.Code != "" && s.StudentCode == filter.Code) {
			return s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.students, id)
	for aid, a := range repo.db.attendance {
		if a.StudentID == id {
			delete(repo.db.attendance, aid)
		}
	}
	for gid, g := range repo.db.grades {
		if g.StudentID == id {
			delete(repo.db.grades, gid)
		}
	}
	for pid, p := range repo.db.parents {
		if core.Contains(p.StudentIDs, id) {
			p.StudentIDs = without(p.StudentIDs, id)
			repo.db.parents[pid] = p
		}
	}
	return nil
}
