package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

// Classes

func (repo *schoolRepository) CreateClass(_ context.Context, cls school.Class) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cls.ID = newID()
	cls.StudentCount = 0
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *schoolRepository) QueryClasses(_ context.Context, filter school.ClassFilter) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0)
	for _, c := range repo.db.classes {
		if !matches(filter.Search, c.Name) ||
			(filter.Grade != 0 && c.Grade != filter.Grade) ||
			(filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear) ||
			(filter.TeacherID != "" && c.HomeroomTeacherID != filter.TeacherID) ||
			!inList(filter.IDs, c.ID) {
			continue
		}
		c.StudentCount = repo.db.studentCount(c.ID)
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Grade != classes[j].Grade {
			return classes[i].Grade < classes[j].Grade
		}
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].ID < classes[j].ID
	})
	return classes, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id string) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.classes[id]
	if !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	c.StudentCount = repo.db.studentCount(id)
	return c, nil
}

func (repo *schoolRepository) UpdateClass(_ context.Context, cls school.Class) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[cls.ID]; !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	cls.StudentCount = repo.db.studentCount(cls.ID)
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *schoolRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return school.ErrClassNotFound
	}
	delete(repo.db.classes, id)
	for sid, s := range repo.db.students {
		if s.ClassID == id {
			s.ClassID = ""
			repo.db.students[sid] = s
		}
	}
	for tid, t := range repo.db.teachers {
		if t.HomeroomClassID == id {
			t.HomeroomClassID = ""
			repo.db.teachers[tid] = t
		}
	}
	for aid, a := range repo.db.attendance {
		if a.ClassID == id {
			delete(repo.db.attendance, aid)
		}
	}
	for gid, g := range repo.db.grades {
		if g.ClassID == id {
			delete(repo.db.grades, gid)
		}
	}
	return nil
}

func (repo *schoolRepository) AssignStudents(_ context.Context, classID string, studentIDs []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for _, id := range studentIDs {
		s, ok := repo.db.students[id]
		if !ok {
			continue
		}
		s.ClassID = classID
		repo.db.students[id] = s
		n++
	}
	return n, nil
}

func (repo *schoolRepository) RemoveStudent(_ context.Context, classID, studentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s, ok := repo.db.students[studentID]
	if !ok || s.ClassID != classID {
		return school.ErrStudentNotInClass
	}
	s.ClassID = ""
	repo.db.students[studentID] = s
	return nil
}

// Subjects

func cloneSubject(s school.Subject) school.Subject {
	s.TeacherIDs = cloneStrings(s.TeacherIDs)
	if s.TeacherIDs == nil {
		s.TeacherIDs = []string{}
	}
	return s
}

func (repo *schoolRepository) CheckSubjectCode(_ context.Context, code string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.subjects {
		if s.Code == code && !core.Contains(excludedIDs, s.ID) {
			return school.ErrSubjectCodeExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSubject(_ context.Context, subj school.Subject) (school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	subj.ID = newID()
	subj.TeacherIDs = nil
	repo.db.subjects[subj.ID] = cloneSubject(subj)
	return cloneSubject(subj), nil
}

func (repo *schoolRepository) QuerySubjects(_ context.Context, filter school.SubjectFilter) ([]school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make([]school.Subject, 0)
	for _, s := range repo.db.subjects {
		if !matches(filter.Search, s.NameKh, s.NameEn, s.Code) ||
			(filter.Grade != 0 && s.Grade != filter.Grade) ||
			(filter.IsActive != nil && s.IsActive != *filter.IsActive) ||
			(filter.TeacherID != "" && !core.Contains(s.TeacherIDs, filter.TeacherID)) ||
			!inList(filter.IDs, s.ID) {
			continue
		}
		subjects = append(subjects, cloneSubject(s))
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Grade != subjects[j].Grade {
			return subjects[i].Grade < subjects[j].Grade
		}
		return subjects[i].Code < subjects[j].Code
	})
	return subjects, nil
}

func (repo *schoolRepository) GetSubject(_ context.Context, id string) (school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	s, ok := repo.db.subjects[id]
	if !ok {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	return cloneSubject(s), nil
}

// UpdateSubject keeps the assigned teachers: they are changed through SetSubjectTeachers.
func (repo *schoolRepository) UpdateSubject(_ context.Context, subj school.Subject) (school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.subjects[subj.ID]
	if !ok {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	subj.TeacherIDs = orig.TeacherIDs
	repo.db.subjects[subj.ID] = cloneSubject(subj)
	return cloneSubject(subj), nil
}

func (repo *schoolRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return school.ErrSubjectNotFound
	}
	delete(repo.db.subjects, id)
	for gid, g := range repo.db.grades {
		if g.SubjectID == id {
			delete(repo.db.grades, gid)
		}
	}
	return nil
}

func (repo *schoolRepository) SetSubjectTeachers(_ context.Context, subjectID string, teacherIDs []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s, ok := repo.db.subjects[subjectID]
	if !ok {
		return school.ErrSubjectNotFound
	}
	ids := make([]string, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		if _, exists := repo.db.teachers[id]; exists && !core.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	s.TeacherIDs = ids
	repo.db.subjects[subjectID] = s
	return nil
}
