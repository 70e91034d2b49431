package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
)

type attendanceApi struct {
	handlers
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := attendanceApi{h}

	ag := g.Group("/attendance", jwt, staffMiddleware())
	ag.GET("/grid/:classId", api.grid)
	ag.POST("/bulk-save", api.bulkSave)
	ag.GET("/summary/:classId", api.summary)
	ag.GET("/export/:classId", api.exportCSV)

	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *attendanceApi) grid(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	grid, err := api.AttendanceSvc.Grid(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "building attendance grid")
	}
	return ctx.JSON(http.StatusOK, grid)
}

func (api *attendanceApi) bulkSave(ctx echo.Context) error {
	var data AttendanceBulkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceBulkRequest")
	}
	if err := api.Validate.Struct(data); err != nil {
		return err
	}
	p, err := data.Period()
	if err != nil {
		return err
	}

	result, err := api.AttendanceSvc.BulkSave(ctx.Request().Context(), data.ClassID, p, data.Cells)
	if err != nil {
		return errors.Wrap(err, "saving attendance")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	summary, err := api.AttendanceSvc.MonthlySummary(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) exportCSV(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	grid, err := api.AttendanceSvc.Grid(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "building attendance grid")
	}

	var buf bytes.Buffer
	if err = attendance.WriteCSV(&buf, grid); err != nil {
		return errors.Wrap(err, "writing attendance csv")
	}
	return attachment(ctx, attendance.CSVFilename(grid), "text/csv; charset=utf-8", buf.Bytes())
}

func (api *attendanceApi) query(ctx echo.Context) error {
	var filter attendance.QueryFilter
	var err error
	filter.StudentID = ctx.QueryParam("student_id")
	filter.ClassID = ctx.QueryParam("class_id")
	filter.Status = strings.ToUpper(ctx.QueryParam("status"))
	if session := ctx.QueryParam("session"); session != "" {
		var ok bool
		if filter.Session, ok = attendance.ParseSession(session); !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "session", Error: attendance.ErrInvalidSession.Error()})
		}
	}
	if filter.From, err = queryDate(ctx, "from"); err != nil {
		return err
	}
	if filter.To, err = queryDate(ctx, "to"); err != nil {
		return err
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1) // inclusive
	}

	records, err := api.AttendanceSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) create(ctx echo.Context) error {
	var data attendance.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	a, err := api.AttendanceSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	a, err := api.AttendanceSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	a, err := api.AttendanceSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding attendance")
	}

	var data attendance.UpdateAttendance
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAttendance")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	a, err = api.AttendanceSvc.Update(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	if err := api.AttendanceSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// attachment sends `data` as a file download.
func attachment(ctx echo.Context, filename, contentType string, data []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition(filename))
	return ctx.Blob(http.StatusOK, contentType, data)
}

// contentDisposition returns an attachment disposition with an ASCII filename for old clients and the
// UTF-8 filename as an RFC 5987 extended parameter.
func contentDisposition(filename string) string {
	var ascii, ext strings.Builder
	for _, r := range filename {
		switch {
		case r < 0x20 || r >= 0x7f, r == '"', r == '\\', r == '/':
			ascii.WriteByte('_')
		default:
			ascii.WriteRune(r)
		}
	}
	for _, b := range []byte(filename) {
		if isAttrChar(b) {
			ext.WriteByte(b)
			continue
		}
		fmt.Fprintf(&ext, "%%%02X", b)
	}
	return `attachment; filename="` + ascii.String() + `"; filename*=UTF-8''` + ext.String()
}

func isAttrChar(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", b) >= 0
}

type AttendanceBulkRequest struct {
	ClassID string                 `json:"class_id" validate:"required"`
	Month   string                 `json:"month" validate:"required"`
	Year    int                    `json:"year"`
	Cells   []attendance.CellInput `json:"cells"`
}

func (r AttendanceBulkRequest) Period() (attendance.Period, error) {
	return PeriodRequest{Month: r.Month, Year: r.Year}.Period()
}
