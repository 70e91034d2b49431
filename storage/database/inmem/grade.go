package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sala/core/grade"
)

type gradeRepository struct {
	db *DB
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) QueryGrades(_ context.Context, filter grade.QueryFilter) ([]grade.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make([]grade.Grade, 0)
	for _, g := range repo.db.grades {
		if (filter.ClassID != "" && g.ClassID != filter.ClassID) ||
			(filter.StudentID != "" && g.StudentID != filter.StudentID) ||
			(filter.SubjectID != "" && g.SubjectID != filter.SubjectID) ||
			(filter.MonthNumber != 0 && g.MonthNumber != filter.MonthNumber) ||
			(filter.Year != 0 && g.Year != filter.Year) {
			continue
		}
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool {
		a, b := grades[i], grades[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.MonthNumber != b.MonthNumber {
			return a.MonthNumber < b.MonthNumber
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.SubjectID < b.SubjectID
	})
	return grades, nil
}

func (repo *gradeRepository) GetGrade(_ context.Context, id string) (grade.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if g, ok := repo.db.grades[id]; ok {
		return g, nil
	}
	return grade.Grade{}, grade.ErrNotFound
}

func sameScore(a grade.Grade, studentID, subjectID, classID string, month, year int) bool {
	return a.StudentID == studentID && a.SubjectID == subjectID && a.ClassID == classID &&
		a.MonthNumber == month && a.Year == year
}

func (repo *gradeRepository) SaveGrade(_ context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	g.ID = newID()
	for _, existing := range repo.db.grades {
		if sameScore(existing, g.StudentID, g.SubjectID, g.ClassID, g.MonthNumber, g.Year) {
			g.ID = existing.ID
			g.CreatedAt = existing.CreatedAt
			break
		}
	}
	repo.db.grades[g.ID] = g
	return g, nil
}

func (repo *gradeRepository) DeleteScore(_ context.Context, studentID, subjectID, classID string, month, year int) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n := 0
	for id, g := range repo.db.grades {
		if sameScore(g, studentID, subjectID, classID, month, year) {
			delete(repo.db.grades, id)
			n++
		}
	}
	return n, nil
}

func (repo *gradeRepository) DeleteGrade(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.grades[id]; !ok {
		return grade.ErrNotFound
	}
	delete(repo.db.grades, id)
	return nil
}
