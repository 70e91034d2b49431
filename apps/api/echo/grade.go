package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/grade"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type gradeApi struct {
	handlers
}

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := gradeApi{h}

	gg := g.Group("/grades", jwt, staffMiddleware())
	gg.GET("/grid/:classId", api.grid)
	gg.POST("/bulk-save", api.bulkSave)
	gg.GET("/export/:classId", api.exportExcel)
	gg.POST("/import/:classId", api.importExcel)

	gg.GET("", api.query)
	gg.GET("/:id", api.retrieve)
	gg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *gradeApi) grid(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	grid, err := api.GradeSvc.Grid(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "building grade grid")
	}
	return ctx.JSON(http.StatusOK, grid)
}

func (api *gradeApi) bulkSave(ctx echo.Context) error {
	var data GradeBulkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeBulkRequest")
	}
	if err := api.Validate.Struct(data); err != nil {
		return err
	}
	p, err := PeriodRequest{Month: data.Month, Year: data.Year}.Period()
	if err != nil {
		return err
	}

	result, err := api.GradeSvc.BulkSave(ctx.Request().Context(), data.ClassID, p, data.Scores)
	if err != nil {
		return errors.Wrap(err, "saving grades")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *gradeApi) exportExcel(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	grid, err := api.GradeSvc.Grid(ctx.Request().Context(), ctx.Param("classId"), p)
	if err != nil {
		return errors.Wrap(err, "building grade grid")
	}

	var buf bytes.Buffer
	if err = grade.WriteExcel(&buf, grid); err != nil {
		return errors.Wrap(err, "writing grade sheet")
	}
	return attachment(ctx, grade.ExcelFilename(grid), xlsxContentType, buf.Bytes())
}

func (api *gradeApi) importExcel(ctx echo.Context) error {
	p, err := bindPeriod(ctx)
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

	result, err := api.GradeSvc.ImportExcel(ctx.Request().Context(), ctx.Param("classId"), p, f)
	if err != nil {
		return errors.Wrap(err, "importing grades")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *gradeApi) query(ctx echo.Context) error {
	var filter grade.QueryFilter
	var err error
	filter.ClassID = ctx.QueryParam("class_id")
	filter.StudentID = ctx.QueryParam("student_id")
	filter.SubjectID = ctx.QueryParam("subject_id")
	if filter.Year, err = queryInt(ctx, "year"); err != nil {
		return err
	}
	if ctx.QueryParam("month") != "" {
		p, err := bindPeriod(ctx)
		if err != nil {
			return err
		}
		filter.MonthNumber, filter.Year = p.Month, p.Year
	}

	grades, err := api.GradeSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []grade.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradeApi) retrieve(ctx echo.Context) error {
	g, err := api.GradeSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding grade")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *gradeApi) destroy(ctx echo.Context) error {
	if err := api.GradeSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type GradeBulkRequest struct {
	ClassID string             `json:"class_id" validate:"required"`
	Month   string             `json:"month" validate:"required"`
	Year    int                `json:"year"`
	Scores  []grade.ScoreInput `json:"scores"`
}
