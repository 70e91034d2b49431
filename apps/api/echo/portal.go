package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

const avatarMediaFolder = "avatars"

var errNoClass = core.NewNotFoundError("student is not assigned to a class")

type portalApi struct {
	handlers
}

func registerPortalAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := portalApi{h}

	pg := g.Group("/profile", jwt)
	pg.POST("/picture", api.uploadPicture)
	pg.DELETE("/picture", api.removePicture)

	sg := g.Group("/student-portal", jwt, roleMiddleware(user.RoleStudent))
	sg.GET("/profile", api.studentProfile)
	sg.PUT("/profile", api.updateStudentProfile)
	sg.GET("/grades", api.studentGrades)
	sg.GET("/attendance", api.studentAttendance)

	parg := g.Group("/parent-portal", jwt, roleMiddleware(user.RoleParent))
	parg.GET("/children", api.children)
	parg.GET("/children/:studentId/grades", api.childGrades)
	parg.GET("/children/:studentId/attendance", api.childAttendance)
}

// Profile picture

func (api *portalApi) uploadPicture(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return errNoFile
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	url, err := api.Media.SaveImage(ctx.Request().Context(), avatarMediaFolder, f)
	if err != nil {
		return errors.Wrap(err, "saving avatar")
	}
	prevURL := usr.AvatarURL
	if usr, err = api.UserSvc.SetAvatar(ctx.Request().Context(), usr, url); err != nil {
		_ = api.Media.Delete(url)
		return errors.Wrap(err, "setting avatar")
	}
	api.deleteAvatar(prevURL)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *portalApi) removePicture(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	prevURL := usr.AvatarURL
	if usr, err = api.UserSvc.SetAvatar(ctx.Request().Context(), usr, ""); err != nil {
		return errors.Wrap(err, "removing avatar")
	}
	api.deleteAvatar(prevURL)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *portalApi) deleteAvatar(url string) {
	if err := api.Media.Delete(url); err != nil {
		api.Logger.Error("deleting avatar", err)
	}
}

// Student portal

func (api *portalApi) contextStudent(ctx echo.Context) (student.Student, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.Student{}, err
	}
	s, err := api.StudentSvc.GetByUserID(ctx.Request().Context(), claims.Subject)
	return s, errors.Wrap(err, "finding student of account")
}

func (api *portalApi) studentProfile(ctx echo.Context) error {
	s, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	return api.renderProfile(ctx, s)
}

// updateStudentProfile lets a student edit their contact details. The account is kept in sync.
func (api *portalApi) updateStudentProfile(ctx echo.Context) error {
	s, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	var data StudentProfileUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentProfileUpdate")
	}
	us := student.UpdateStudent{
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Email:     data.Email,
		Phone:     data.Phone,
		Address:   data.Address,
	}
	if err = us.Validate(api.Validate); err != nil {
		return err
	}
	uu := user.UpdateUser{
		FirstName: deref(us.FirstName),
		LastName:  deref(us.LastName),
		Email:     deref(us.Email),
		Phone:     deref(us.Phone),
	}
	rctx := ctx.Request().Context()
	if err = uu.Validate(rctx, usr, api.Validate, api.UserSvc); err != nil {
		return err
	}

	if s, err = api.StudentSvc.Update(rctx, s, us); err != nil {
		return errors.Wrap(err, "updating student")
	}
	if _, err = api.UserSvc.Update(rctx, usr, uu); err != nil {
		return errors.Wrap(err, "updating account")
	}
	return api.renderProfile(ctx, s)
}

func (api *portalApi) renderProfile(ctx echo.Context, s student.Student) error {
	resp := StudentProfile{Student: s}
	if s.ClassID != "" {
		cls, err := api.SchoolSvc.GetClass(ctx.Request().Context(), s.ClassID)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "finding class")
		}
		if err == nil {
			resp.Class = &cls
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (api *portalApi) studentGrades(ctx echo.Context) error {
	s, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	return api.renderGrades(ctx, s)
}

func (api *portalApi) studentAttendance(ctx echo.Context) error {
	s, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	return api.renderAttendance(ctx, s)
}

// Parent portal

func (api *portalApi) children(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	children, err := api.ParentSvc.Children(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing children")
	}
	return ctx.JSON(http.StatusOK, children)
}

// child returns the student of the URL if they are a child of the logged in parent.
func (api *portalApi) child(ctx echo.Context) (student.Student, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.Student{}, err
	}
	children, err := api.ParentSvc.Children(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "listing children")
	}
	for _, s := range children {
		if s.ID == ctx.Param("studentId") {
			return s, nil
		}
	}
	return student.Student{}, errHttpForbidden
}

func (api *portalApi) childGrades(ctx echo.Context) error {
	s, err := api.child(ctx)
	if err != nil {
		return err
	}
	return api.renderGrades(ctx, s)
}

func (api *portalApi) childAttendance(ctx echo.Context) error {
	s, err := api.child(ctx)
	if err != nil {
		return err
	}
	return api.renderAttendance(ctx, s)
}

// renderGrades sends the row of `s` in the grade grid of their class for the requested month.
func (api *portalApi) renderGrades(ctx echo.Context, s student.Student) error {
	if s.ClassID == "" {
		return errNoClass
	}
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}

	grid, err := api.GradeSvc.Grid(ctx.Request().Context(), s.ClassID, p)
	if err != nil {
		return errors.Wrap(err, "building grade grid")
	}
	resp := StudentGrades{
		Student:     s,
		ClassName:   grid.ClassName,
		Month:       grid.Month,
		MonthNumber: grid.MonthNumber,
		Year:        grid.Year,
		Subjects:    grid.Subjects,
		ClassSize:   len(grid.Students),
	}
	if row, ok := grid.Row(s.ID); ok {
		resp.Result = &row
	}
	return ctx.JSON(http.StatusOK, resp)
}

// renderAttendance sends the records of `s` for the requested month with their counts.
func (api *portalApi) renderAttendance(ctx echo.Context, s student.Student) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	records, counts, err := api.monthAttendance(ctx.Request().Context(), s.ID, p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, StudentAttendance{
		Student: s,
		Month:   p.Month,
		Year:    p.Year,
		Records: records,
		Counts:  counts,
	})
}

func (api *portalApi) monthAttendance(
	ctx context.Context, studentID string, p attendance.Period,
) ([]attendance.Attendance, attendance.Counts, error) {
	records, err := api.AttendanceSvc.Query(ctx, attendance.QueryFilter{StudentID: studentID, From: p.Start(), To: p.End()})
	if err != nil {
		return nil, attendance.Counts{}, errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Attendance{}
	}
	return records, attendance.Summarize(records)[studentID], nil
}

type (
	StudentProfile struct {
		Student student.Student `json:"student"`
		Class   *school.Class   `json:"class"`
	}

	StudentProfileUpdate struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
		Phone     *string `json:"phone"`
		Address   *string `json:"address"`
	}

	StudentGrades struct {
		Student     student.Student       `json:"student"`
		ClassName   string                `json:"class_name"`
		Month       string                `json:"month"`
		MonthNumber int                   `json:"month_number"`
		Year        int                   `json:"year"`
		ClassSize   int                   `json:"class_size"`
		Subjects    []grade.SubjectColumn `json:"subjects"`
		Result      *grade.StudentRow     `json:"result"` // nil when the student is not on the grid
	}

	StudentAttendance struct {
		Student student.Student         `json:"student"`
		Month   int                     `json:"month"`
		Year    int                     `json:"year"`
		Records []attendance.Attendance `json:"records"`
		Counts  attendance.Counts       `json:"counts"`
	}
)
