package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
)

type teacherApi struct {
	handlers
}

func registerTeacherAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := teacherApi{h}

	tg := g.Group("/teachers", jwt, staffMiddleware())
	tg.GET("", api.query)
	tg.POST("", api.create, adminMiddleware())
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update, adminMiddleware())
	tg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *teacherApi) query(ctx echo.Context) error {
	filter := teacher.QueryFilter{
		Search: ctx.QueryParam("search"),
		Role:   strings.ToUpper(ctx.QueryParam("role")),
	}
	teachers, err := api.TeacherSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []teacher.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *teacherApi) create(ctx echo.Context) error {
	var data teacher.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	t, creds, err := api.TeacherSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, TeacherResponse{Teacher: t, Credentials: credentialsOrNil(creds)})
}

func (api *teacherApi) retrieve(ctx echo.Context) error {
	t, err := api.TeacherSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) update(ctx echo.Context) error {
	t, err := api.TeacherSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher")
	}

	var data teacher.UpdateTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	t, err = api.TeacherSvc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) destroy(ctx echo.Context) error {
	if err := api.TeacherSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type TeacherResponse struct {
	Teacher     teacher.Teacher   `json:"teacher"`
	Credentials *user.Credentials `json:"credentials,omitempty"`
}
