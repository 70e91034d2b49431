package echoapi

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/report"
	"github.com/trezcool/sala/core/user"
)

type reportApi struct {
	handlers
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := reportApi{h}

	rg := g.Group("/reports", jwt, staffMiddleware())
	rg.GET("/monthly/:classId", api.monthly)
	rg.GET("/grade/:grade", api.gradeWide)
	rg.GET("/tracking-book/:classId", api.trackingBook)
	rg.POST("/exam-seating", api.examSeating)

	eg := g.Group("/export", jwt, staffMiddleware())
	eg.GET("/templates", api.templates)
	eg.GET("/preview/:classId", api.preview)
	eg.GET("/roster/:classId", api.roster)
	eg.GET("/template/import", api.importTemplate)

	g.GET("/dashboard/stats", api.dashboard, jwt, staffMiddleware())
	g.GET("/dashboard/teacher/:teacherId", api.teacherDashboard, jwt)
	g.GET("/dashboard/student/:studentId", api.studentDashboard, jwt)
}

func (api *reportApi) monthly(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	grid, err := api.ReportSvc.MonthlyReport(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "building monthly report")
	}
	return ctx.JSON(http.StatusOK, grid)
}

func (api *reportApi) gradeWide(ctx echo.Context) error {
	gradeLevel, err := strconv.Atoi(core.NormalizeDigits(ctx.Param("grade")))
	if err != nil {
		return errHttpNotFound
	}
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	rep, err := api.ReportSvc.GradeWideReport(ctx.Request().Context(), gradeLevel, p)
	if err != nil {
		return errors.Wrap(err, "building grade report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) trackingBook(ctx echo.Context) error {
	req := report.TrackingBookRequest{
		ClassID:   ctx.Param("classId"),
		StudentID: ctx.QueryParam("student_id"),
	}
	var err error
	if req.Year, err = queryInt(ctx, "year"); err != nil {
		return err
	}
	if req.Year == 0 {
		req.Year = time.Now().Year()
	}
	for _, m := range queryList(ctx, "months") {
		p, err := attendance.ParsePeriod(m, req.Year)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "months", Error: "invalid month: " + m})
		}
		req.Months = append(req.Months, p.Month)
	}

	book, err := api.ReportSvc.TrackingBook(ctx.Request().Context(), req)
	if err != nil {
		return errors.Wrap(err, "building tracking book")
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *reportApi) examSeating(ctx echo.Context) error {
	var data report.SeatingRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SeatingRequest")
	}

	seating, err := api.ReportSvc.ExamSeating(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "building exam seating")
	}
	return ctx.JSON(http.StatusOK, seating)
}

func (api *reportApi) templates(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, report.Templates())
}

func (api *reportApi) preview(ctx echo.Context) error {
	prev, err := api.ReportSvc.Preview(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "previewing roster")
	}
	return ctx.JSON(http.StatusOK, prev)
}

func (api *reportApi) roster(ctx echo.Context) error {
	classID := ctx.Param("classId")
	cls, err := api.SchoolSvc.GetClass(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "finding class")
	}
	opts := report.RosterOptions{
		ExamSession: core.CleanString(ctx.QueryParam("exam_session")),
		ExamCode:    core.CleanString(ctx.QueryParam("exam_code")),
	}

	var buf bytes.Buffer
	if err = api.ReportSvc.WriteRoster(ctx.Request().Context(), &buf, classID, opts); err != nil {
		return errors.Wrap(err, "writing roster")
	}
	return attachment(ctx, report.RosterFilename(cls.Name, time.Now()), xlsxContentType, buf.Bytes())
}

func (api *reportApi) importTemplate(ctx echo.Context) error {
	var buf bytes.Buffer
	if err := report.WriteImportTemplate(&buf); err != nil {
		return errors.Wrap(err, "writing import template")
	}
	return attachment(ctx, "student_import_template.xlsx", xlsxContentType, buf.Bytes())
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	var period *attendance.Period
	if ctx.QueryParam("month") != "" {
		p, err := bindPeriod(ctx)
		if err != nil {
			return err
		}
		period = &p
	}

	stats, err := api.ReportSvc.DashboardStats(ctx.Request().Context(), period)
	if err != nil {
		return errors.Wrap(err, "computing dashboard stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// teacherDashboard is open to the admins and to the teacher themself.
func (api *reportApi) teacherDashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	teacherID := ctx.Param("teacherId")
	if !claims.IsAdmin {
		t, err := api.TeacherSvc.GetByUserID(ctx.Request().Context(), claims.Subject)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "finding teacher of account")
		}
		if err != nil || t.ID != teacherID {
			return errHttpForbidden
		}
	}

	dash, err := api.ReportSvc.TeacherDashboard(ctx.Request().Context(), teacherID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "building teacher dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// studentDashboard is open to the staff, to the student themself and to their parents.
func (api *reportApi) studentDashboard(ctx echo.Context) error {
	studentID := ctx.Param("studentId")
	if err := api.canSeeStudent(ctx, studentID); err != nil {
		return err
	}
	dash, err := api.ReportSvc.StudentDashboard(ctx.Request().Context(), studentID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "building student dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *reportApi) canSeeStudent(ctx echo.Context, studentID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if claims.HasRole(user.RoleAdmin, user.RoleTeacher) {
		return nil
	}
	rctx := ctx.Request().Context()
	if claims.HasRole(user.RoleStudent) {
		s, err := api.StudentSvc.GetByUserID(rctx, claims.Subject)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "finding student of account")
		}
		if err == nil && s.ID == studentID {
			return nil
		}
	}
	if claims.HasRole(user.RoleParent) {
		children, err := api.ParentSvc.Children(rctx, claims.Subject)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "listing children")
		}
		for _, s := range children {
			if s.ID == studentID {
				return nil
			}
		}
	}
	return errHttpForbidden
}
