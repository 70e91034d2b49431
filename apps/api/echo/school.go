package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
)

type schoolApi struct {
	handlers
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := schoolApi{h}

	cg := g.Group("/classes", jwt, staffMiddleware())
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass, adminMiddleware())
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass, adminMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())
	cg.GET("/:id/students", api.classStudents)
	cg.POST("/:id/assign-students", api.assignStudents, adminMiddleware())
	cg.DELETE("/:id/students/:studentId", api.removeStudent, adminMiddleware())

	sg := g.Group("/subjects", jwt, staffMiddleware())
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())
	sg.GET("/grade/:grade", api.gradeSubjects)
	sg.GET("/:id", api.retrieveSubject)
	sg.PUT("/:id", api.updateSubject, adminMiddleware())
	sg.DELETE("/:id", api.destroySubject, adminMiddleware())
	sg.POST("/:id/assign-teachers", api.assignTeachers, adminMiddleware())
	sg.DELETE("/:id/teachers/:teacherId", api.removeTeacher, adminMiddleware())
}

// Classes

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	var filter school.ClassFilter
	var err error
	filter.Search = core.CleanString(ctx.QueryParam("search"))
	filter.AcademicYear = core.CleanString(ctx.QueryParam("academic_year"))
	filter.TeacherID = ctx.QueryParam("teacher_id")
	if filter.Grade, err = queryInt(ctx, "grade"); err != nil {
		return err
	}

	classes, err := api.SchoolSvc.QueryClasses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	var data school.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	cls, err := api.SchoolSvc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	cls, err := api.SchoolSvc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	cls, err := api.SchoolSvc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding class")
	}

	var data school.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	cls, err = api.SchoolSvc.UpdateClass(ctx.Request().Context(), cls, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	if err := api.SchoolSvc.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) classStudents(ctx echo.Context) error {
	roster, err := api.StudentSvc.Roster(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class roster")
	}
	if roster == nil {
		roster = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *schoolApi) assignStudents(ctx echo.Context) error {
	var data IDsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IDsRequest")
	}

	n, err := api.SchoolSvc.AssignStudents(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "assigning students")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *schoolApi) removeStudent(ctx echo.Context) error {
	if err := api.SchoolSvc.RemoveStudent(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId")); err != nil {
		return errors.Wrap(err, "removing student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subjects

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	var filter school.SubjectFilter
	var err error
	filter.Search = core.CleanString(ctx.QueryParam("search"))
	filter.TeacherID = ctx.QueryParam("teacher_id")
	if filter.Grade, err = queryInt(ctx, "grade"); err != nil {
		return err
	}
	if filter.IsActive, err = queryBool(ctx, "is_active"); err != nil {
		return err
	}

	subjects, err := api.SchoolSvc.QuerySubjects(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) gradeSubjects(ctx echo.Context) error {
	grade, err := strconv.Atoi(ctx.Param("grade"))
	if err != nil {
		return errHttpNotFound
	}
	subjects, err := api.SchoolSvc.GradeSubjects(ctx.Request().Context(), grade)
	if err != nil {
		return errors.Wrap(err, "listing grade subjects")
	}
	if subjects == nil {
		subjects = []school.OrderedSubject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	subj, err := api.SchoolSvc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *schoolApi) retrieveSubject(ctx echo.Context) error {
	subj, err := api.SchoolSvc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	subj, err := api.SchoolSvc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding subject")
	}

	var data school.UpdateSubject
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	subj, err = api.SchoolSvc.UpdateSubject(ctx.Request().Context(), subj, data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	if err := api.SchoolSvc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) assignTeachers(ctx echo.Context) error {
	var data IDsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IDsRequest")
	}

	subj, err := api.SchoolSvc.AssignTeachers(ctx.Request().Context(), ctx.Param("id"), data.TeacherIDs)
	if err != nil {
		return errors.Wrap(err, "assigning teachers")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *schoolApi) removeTeacher(ctx echo.Context) error {
	subj, err := api.SchoolSvc.RemoveTeacher(ctx.Request().Context(), ctx.Param("id"), ctx.Param("teacherId"))
	if err != nil {
		return errors.Wrap(err, "removing teacher")
	}
	return ctx.JSON(http.StatusOK, subj)
}
