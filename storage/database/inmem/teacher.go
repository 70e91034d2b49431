package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/teacher"
)

type teacherRepository struct {
	db *DB
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db *DB) *teacherRepository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CheckUniqueness(_ context.Context, email, employeeID string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.teachers {
		if core.Contains(excludedIDs, t.ID) {
			continue
		}
		if email != "" && t.Email == email {
			return teacher.ErrEmailExists
		}
		if employeeID != "" && t.EmployeeID == employeeID {
			return teacher.ErrEmployeeIDExists
		}
	}
	return nil
}

func (repo *teacherRepository) LastCode(_ context.Context, prefix string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	codes := make([]string, 0, len(repo.db.teachers))
	for _, t := range repo.db.teachers {
		codes = append(codes, t.EmployeeID)
	}
	return lastCode(codes, prefix), nil
}

func (repo *teacherRepository) CreateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *teacherRepository) QueryTeachers(_ context.Context, filter teacher.QueryFilter) ([]teacher.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teachers := make([]teacher.Teacher, 0)
	for _, t := range repo.db.teachers {
		if !matches(filter.Search, t.FirstName, t.LastName, t.KhmerName, t.EmployeeID, t.Email, t.Phone) ||
			(filter.Role != "" && t.Role != filter.Role) ||
			!inList(filter.IDs, t.ID) ||
			(len(filter.UserIDs) > 0 && !core.Contains(filter.UserIDs, t.UserID)) {
			continue
		}
		teachers = append(teachers, t)
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i].EmployeeID < teachers[j].EmployeeID })
	return teachers, nil
}

func (repo *teacherRepository) GetTeacher(_ context.Context, id string) (teacher.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.teachers[id]; ok {
		return t, nil
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) GetTeacherByUserID(_ context.Context, userID string) (teacher.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.teachers {
		if userID != "" && t.UserID == userID {
			return t, nil
		}
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) UpdateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.teachers[t.ID]; !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *teacherRepository) DeleteTeacher(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.teachers[id]; !ok {
		return teacher.ErrNotFound
	}
	delete(repo.db.teachers, id)
	for cid, c := range repo.db.classes {
		if c.HomeroomTeacherID == id {
			c.HomeroomTeacherID = ""
			repo.db.classes[cid] = c
		}
	}
	for sid, s := range repo.db.subjects {
		if core.Contains(s.TeacherIDs, id) {
			s.TeacherIDs = without(s.TeacherIDs, id)
			repo.db.subjects[sid] = s
		}
	}
	return nil
}
