package school

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

var (
	// errors
	ErrClassNotFound      = core.NewNotFoundError("class not found")
	ErrSubjectNotFound    = core.NewNotFoundError("subject not found")
	ErrClassNotEmpty      = core.NewValidationError(errors.New("cannot delete a class that still has students"))
	ErrStudentNotInClass  = core.NewNotFoundError("student not found in this class")
	ErrSubjectCodeExists  = errors.New("a subject with this code already exists")
	ErrNoStudentsProvided = core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "this field is required"})
	ErrNoTeachersProvided = core.NewValidationError(nil, core.FieldError{Field: "teacher_ids", Error: "this field is required"})
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClasses returns classes ordered by grade then name, with their StudentCount.
		QueryClasses(ctx context.Context, filter ClassFilter) ([]Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClass(ctx context.Context, id string) error
		// AssignStudents moves existing students to the class and returns the number of moved students.
		AssignStudents(ctx context.Context, classID string, studentIDs []string) (int, error)
		// RemoveStudent detaches a student from the class. Returns ErrStudentNotInClass if the student is not in it.
		RemoveStudent(ctx context.Context, classID, studentID string) error

		// CheckSubjectCode returns ErrSubjectCodeExists if another subject uses `code`.
		CheckSubjectCode(ctx context.Context, code string, excludedIDs ...string) error
		CreateSubject(ctx context.Context, subj Subject) (Subject, error)
		// QuerySubjects returns subjects ordered by grade then code.
		QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		UpdateSubject(ctx context.Context, subj Subject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error
		SetSubjectTeachers(ctx context.Context, subjectID string, teacherIDs []string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Classes

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	cls := Class{
		Name:              nc.Name,
		Grade:             nc.Grade,
		Section:           nc.Section,
		AcademicYear:      nc.AcademicYear,
		HomeroomTeacherID: nc.HomeroomTeacherID,
		Capacity:          nc.Capacity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *Service) QueryClasses(ctx context.Context, filter ClassFilter) ([]Class, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryClasses(ctx, filter)
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) UpdateClass(ctx context.Context, cls Class, uc UpdateClass) (Class, error) {
	if uc.Name != nil {
		cls.Name = core.CleanString(*uc.Name)
	}
	if uc.Grade != nil {
		cls.Grade = *uc.Grade
	}
	if uc.Section != nil {
		cls.Section = core.CleanString(*uc.Section)
	}
	if uc.AcademicYear != nil {
		cls.AcademicYear = core.CleanString(*uc.AcademicYear)
	}
	if uc.HomeroomTeacherID != nil {
		cls.HomeroomTeacherID = *uc.HomeroomTeacherID
	}
	if uc.Capacity != nil {
		if *uc.Capacity > 0 && *uc.Capacity < cls.StudentCount {
			return Class{}, core.NewValidationError(nil, core.FieldError{
				Field: "capacity",
				Error: fmt.Sprintf("capacity cannot be lower than the %d enrolled students", cls.StudentCount),
			})
		}
		cls.Capacity = *uc.Capacity
	}
	cls.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, cls)
}

// DeleteClass deletes an empty class.
func (svc *Service) DeleteClass(ctx context.Context, id string) error {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return err
	}
	if cls.StudentCount > 0 {
		return ErrClassNotEmpty
	}
	return svc.repo.DeleteClass(ctx, id)
}

// AssignStudents moves students to a class, within its capacity.
func (svc *Service) AssignStudents(ctx context.Context, classID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, ErrNoStudentsProvided
	}
	cls, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return 0, err
	}
	if cls.IsFull(len(studentIDs)) {
		return 0, core.NewValidationError(fmt.Errorf(
			"class capacity exceeded: %d/%d students, cannot add %d", cls.StudentCount, cls.Capacity, len(studentIDs),
		))
	}
	n, err := svc.repo.AssignStudents(ctx, classID, studentIDs)
	if err != nil {
		return 0, errors.Wrap(err, "assigning students")
	}
	return n, nil
}

func (svc *Service) RemoveStudent(ctx context.Context, classID, studentID string) error {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return err
	}
	return svc.repo.RemoveStudent(ctx, classID, studentID)
}

// Subjects

func (svc *Service) checkSubjectCode(ctx context.Context, code string, excludedIDs ...string) error {
	if err := svc.repo.CheckSubjectCode(ctx, code, excludedIDs...); err != nil {
		if err == ErrSubjectCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "checking subject code")
	}
	return nil
}

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	if err := svc.checkSubjectCode(ctx, ns.Code); err != nil {
		return Subject{}, err
	}
	now := time.Now().UTC()
	subj := Subject{
		NameKh:      ns.NameKh,
		NameEn:      ns.NameEn,
		Code:        ns.Code,
		Grade:       ns.Grade,
		MaxScore:    ns.MaxScore,
		Coefficient: ns.Coefficient,
		IsActive:    ns.IsActive == nil || *ns.IsActive,
		TeacherIDs:  ns.TeacherIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	subj, err := svc.repo.CreateSubject(ctx, subj)
	if err != nil {
		return Subject{}, errors.Wrap(err, "creating subject")
	}
	if len(ns.TeacherIDs) > 0 {
		if err = svc.repo.SetSubjectTeachers(ctx, subj.ID, ns.TeacherIDs); err != nil {
			return Subject{}, errors.Wrap(err, "setting subject teachers")
		}
	}
	return subj, nil
}

func (svc *Service) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QuerySubjects(ctx, filter)
}

func (svc *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *Service) UpdateSubject(ctx context.Context, subj Subject, us UpdateSubject) (Subject, error) {
	if us.Code != nil && *us.Code != subj.Code {
		if err := svc.checkSubjectCode(ctx, *us.Code, subj.ID); err != nil {
			return Subject{}, err
		}
		subj.Code = *us.Code
	}
	if us.NameKh != nil {
		subj.NameKh = core.CleanString(*us.NameKh)
	}
	if us.NameEn != nil {
		subj.NameEn = core.CleanString(*us.NameEn)
	}
	if us.Grade != nil {
		subj.Grade = *us.Grade
	}
	if us.MaxScore != nil {
		subj.MaxScore = *us.MaxScore
	}
	if us.Coefficient != nil {
		subj.Coefficient = *us.Coefficient
	}
	if us.IsActive != nil {
		subj.IsActive = *us.IsActive
	}
	subj.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, subj)
}

func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	if _, err := svc.repo.GetSubject(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteSubject(ctx, id)
}

// AssignTeachers adds teachers to a subject, keeping the already assigned ones.
func (svc *Service) AssignTeachers(ctx context.Context, subjectID string, teacherIDs []string) (Subject, error) {
	if len(teacherIDs) == 0 {
		return Subject{}, ErrNoTeachersProvided
	}
	subj, err := svc.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}
	ids := append([]string{}, subj.TeacherIDs...)
	for _, id := range teacherIDs {
		if !core.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if err = svc.repo.SetSubjectTeachers(ctx, subjectID, ids); err != nil {
		return Subject{}, errors.Wrap(err, "setting subject teachers")
	}
	subj.TeacherIDs = ids
	return subj, nil
}

func (svc *Service) RemoveTeacher(ctx context.Context, subjectID, teacherID string) (Subject, error) {
	subj, err := svc.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}
	ids := make([]string, 0, len(subj.TeacherIDs))
	for _, id := range subj.TeacherIDs {
		if id != teacherID {
			ids = append(ids, id)
		}
	}
	if err = svc.repo.SetSubjectTeachers(ctx, subjectID, ids); err != nil {
		return Subject{}, errors.Wrap(err, "setting subject teachers")
	}
	subj.TeacherIDs = ids
	return subj, nil
}

// GradeSubjects returns the active subjects of a grade level in display order.
func (svc *Service) GradeSubjects(ctx context.Context, grade int) ([]OrderedSubject, error) {
	active := true
	subjects, err := svc.repo.QuerySubjects(ctx, SubjectFilter{Grade: grade, IsActive: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return OrderSubjects(grade, subjects), nil
}
