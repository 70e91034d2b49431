package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/student"
)

type studentApi struct {
	handlers
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := studentApi{h}

	sg := g.Group("/students", jwt, staffMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/class/:classId", api.roster)

	// bulk entry grid
	sg.GET("/fields", api.fields)
	sg.GET("/bulk/:classId", api.grid)
	sg.POST("/bulk/paste", api.paste, adminMiddleware())
	sg.POST("/bulk/:classId", api.bulkSave, adminMiddleware())
	sg.POST("/import/:classId", api.importExcel, adminMiddleware())

	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	var err error
	filter.Search = ctx.QueryParam("search")
	filter.ClassID = ctx.QueryParam("class_id")
	filter.Gender, _ = student.ParseGender(ctx.QueryParam("gender"))
	if filter.Grade, err = queryInt(ctx, "grade"); err != nil {
		return err
	}
	if filter.HasAccount, err = queryBool(ctx, "has_account"); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	total, err := api.StudentSvc.Count(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	filter.Limit, filter.Offset = page.Size, page.Offset()
	students, err := api.StudentSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, StudentPage{Students: students, Pagination: core.NewPagination(page, total)})
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	s, err := api.StudentSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) roster(ctx echo.Context) error {
	if _, err := api.SchoolSvc.GetClass(ctx.Request().Context(), ctx.Param("classId")); err != nil {
		return errors.Wrap(err, "finding class")
	}
	roster, err := api.StudentSvc.Roster(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "getting class roster")
	}
	if roster == nil {
		roster = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.StudentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	s, err := api.StudentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}

	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	s, err = api.StudentSvc.Update(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.StudentSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Bulk entry grid

func (api *studentApi) fields(ctx echo.Context) error {
	grade, err := queryInt(ctx, "grade")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, student.FieldOrder(grade))
}

func (api *studentApi) grid(ctx echo.Context) error {
	rows, fields, err := api.StudentSvc.Grid(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "building student grid")
	}
	if rows == nil {
		rows = []student.Row{}
	}
	return ctx.JSON(http.StatusOK, GridResponse{Fields: fields, Rows: rows})
}

// paste applies clipboard text to the grid rows sent by the client and returns the new rows with
// the errors of the incomplete ones.
func (api *studentApi) paste(ctx echo.Context) error {
	var data PasteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasteRequest")
	}

	rows, err := student.ApplyPaste(data.Rows, data.StartRow, data.StartField, student.ParsePaste(data.Text), data.Grade)
	if err != nil {
		return err
	}
	valid, rowErrs := student.ValidateRows(rows)
	if rowErrs == nil {
		rowErrs = []student.BulkError{}
	}
	return ctx.JSON(http.StatusOK, PasteResponse{
		Fields:     student.FieldOrder(data.Grade),
		Rows:       rows,
		ValidCount: len(valid),
		Errors:     rowErrs,
	})
}

func (api *studentApi) bulkSave(ctx echo.Context) error {
	var data BulkRowsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkRowsRequest")
	}

	result, err := api.StudentSvc.BulkSave(ctx.Request().Context(), ctx.Param("classId"), data.Rows)
	if err != nil {
		return errors.Wrap(err, "saving student rows")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *studentApi) importExcel(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return errNoFile
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	result, err := api.StudentSvc.ImportExcel(ctx.Request().Context(), ctx.Param("classId"), f)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, result)
}

type (
	StudentPage struct {
		Students   []student.Student `json:"students"`
		Pagination core.Pagination   `json:"pagination"`
	}

	GridResponse struct {
		Fields []string      `json:"fields"`
		Rows   []student.Row `json:"rows"`
	}

	PasteRequest struct {
		Grade      int           `json:"grade"`
		StartRow   int           `json:"start_row"` // 0-based
		StartField string        `json:"start_field"`
		Text       string        `json:"text"`
		Rows       []student.Row `json:"rows"`
	}

	PasteResponse struct {
		Fields     []string            `json:"fields"`
		Rows       []student.Row       `json:"rows"`
		ValidCount int                 `json:"valid_count"`
		Errors     []student.BulkError `json:"errors"`
	}

	BulkRowsRequest struct {
		Rows []student.Row `json:"rows"`
	}
)
