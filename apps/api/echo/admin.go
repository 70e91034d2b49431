package echoapi

import (
	"context"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
)

type adminApi struct {
	handlers
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, h handlers) {
	api := adminApi{h}

	adm := g.Group("/admin", jwt, adminMiddleware())

	registerUserAPI(adm, h)

	ag := adm.Group("/admins")
	ag.GET("", api.queryAdmins)
	ag.POST("", api.createAdmin)
	ag.GET("/statistics", api.adminStatistics)
	ag.GET("/:adminId", api.retrieveAdmin)
	ag.PUT("/:adminId/password", api.setAdminPassword)
	ag.PUT("/:adminId/status", api.setAdminStatus)
	ag.DELETE("/:adminId", api.destroyAdmin)

	acc := adm.Group("/accounts")
	acc.GET("/statistics", api.accountStatistics)
	acc.POST("/students", api.createStudentAccounts)
	acc.POST("/students/activate", api.setStudentAccountsActive(true))
	acc.POST("/students/deactivate", api.setStudentAccountsActive(false))
	acc.POST("/students/:studentId", api.createStudentAccount)

	pg := adm.Group("/parents")
	pg.GET("", api.queryParents)
	pg.POST("", api.createParent)
	pg.GET("/statistics", api.parentStatistics)
	pg.GET("/:id", api.retrieveParent)
	pg.PUT("/:id", api.updateParent)
	pg.DELETE("/:id", api.destroyParent)
	pg.POST("/:id/students", api.linkStudents)
	pg.DELETE("/:id/students/:studentId", api.unlinkStudent)

	adm.GET("/security", api.security)
}

// Admins

func (api *adminApi) queryAdmins(ctx echo.Context) error {
	admins, err := api.UserSvc.QueryAdmins(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying admins")
	}
	if admins == nil {
		admins = []user.User{}
	}
	return ctx.JSON(http.StatusOK, admins)
}

func (api *adminApi) createAdmin(ctx echo.Context) error {
	var data user.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	data.Clean()
	if err := api.Validate.Struct(data); err != nil {
		return err
	}
	if err := api.UserSvc.CheckUniqueness(ctx.Request().Context(), data.Username, data.Email, data.Phone); err != nil {
		return err
	}

	usr, creds, err := api.UserSvc.CreateAdmin(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating admin")
	}
	return ctx.JSON(http.StatusCreated, AccountResponse{User: usr, Credentials: creds})
}

func (api *adminApi) adminStatistics(ctx echo.Context) error {
	stats, err := api.UserSvc.AdminStatistics(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing admin statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) retrieveAdmin(ctx echo.Context) error {
	admin, err := api.UserSvc.GetAdmin(ctx.Request().Context(), ctx.Param("adminId"))
	if err != nil {
		return errors.Wrap(err, "finding admin")
	}
	return ctx.JSON(http.StatusOK, admin)
}

func (api *adminApi) setAdminPassword(ctx echo.Context) error {
	admin, err := api.UserSvc.GetAdmin(ctx.Request().Context(), ctx.Param("adminId"))
	if err != nil {
		return errors.Wrap(err, "finding admin")
	}

	var data user.SetPassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPassword")
	}
	if err = data.Validate(admin, api.Validate); err != nil {
		return err
	}

	admin, err = api.UserSvc.SetPassword(ctx.Request().Context(), admin, data)
	if err != nil {
		return errors.Wrap(err, "setting admin password")
	}
	return ctx.JSON(http.StatusOK, admin)
}

func (api *adminApi) setAdminStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err := api.Validate.Struct(data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	admin, err := api.UserSvc.SetAdminActive(ctx.Request().Context(), ctxUsr, ctx.Param("adminId"), *data.IsActive, data.Reason)
	if err != nil {
		return errors.Wrap(err, "setting admin status")
	}
	return ctx.JSON(http.StatusOK, admin)
}

func (api *adminApi) destroyAdmin(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.UserSvc.DeleteAdmin(ctx.Request().Context(), ctxUsr, ctx.Param("adminId")); err != nil {
		return errors.Wrap(err, "deleting admin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Student accounts

func (api *adminApi) accountStatistics(ctx echo.Context) error {
	stats, err := api.StudentSvc.AccountStatistics(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing account statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) createStudentAccounts(ctx echo.Context) error {
	var data student.AccountFilter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AccountFilter")
	}

	creds, err := api.StudentSvc.CreateAccounts(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student accounts")
	}
	if creds == nil {
		creds = []student.AccountCredentials{}
	}
	return ctx.JSON(http.StatusCreated, CredentialsResponse{Created: len(creds), Credentials: creds})
}

func (api *adminApi) createStudentAccount(ctx echo.Context) error {
	s, err := api.StudentSvc.GetByID(ctx.Request().Context(), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	creds, err := api.StudentSvc.CreateAccount(ctx.Request().Context(), s)
	if err != nil {
		return errors.Wrap(err, "creating student account")
	}
	return ctx.JSON(http.StatusCreated, creds)
}

func (api *adminApi) setStudentAccountsActive(active bool) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data AccountStatusRequest
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to AccountStatusRequest")
		}

		n, err := api.StudentSvc.SetAccountsActive(ctx.Request().Context(), data.AccountFilter, active, data.Reason)
		if err != nil {
			return errors.Wrap(err, "setting student accounts status")
		}
		return ctx.JSON(http.StatusOK, CountResponse{Count: n})
	}
}

// Parents

func (api *adminApi) queryParents(ctx echo.Context) error {
	var filter parent.QueryFilter
	var err error
	filter.Search = ctx.QueryParam("search")
	filter.StudentID = ctx.QueryParam("student_id")
	if filter.IsActive, err = queryBool(ctx, "is_active"); err != nil {
		return err
	}

	parents, err := api.ParentSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	if parents == nil {
		parents = []parent.Parent{}
	}
	return ctx.JSON(http.StatusOK, parents)
}

func (api *adminApi) createParent(ctx echo.Context) error {
	var data parent.NewParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	p, creds, err := api.ParentSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating parent")
	}
	return ctx.JSON(http.StatusCreated, ParentResponse{Parent: p, Credentials: credentialsOrNil(creds)})
}

func (api *adminApi) parentStatistics(ctx echo.Context) error {
	stats, err := api.ParentSvc.Statistics(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing parent statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) retrieveParent(ctx echo.Context) error {
	p, err := api.ParentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding parent")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *adminApi) updateParent(ctx echo.Context) error {
	p, err := api.ParentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding parent")
	}

	var data parent.UpdateParent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateParent")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	p, err = api.ParentSvc.Update(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating parent")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *adminApi) destroyParent(ctx echo.Context) error {
	if err := api.ParentSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) linkStudents(ctx echo.Context) error {
	p, err := api.ParentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding parent")
	}

	var data IDsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IDsRequest")
	}

	p, err = api.ParentSvc.LinkStudents(ctx.Request().Context(), p, data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "linking students")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *adminApi) unlinkStudent(ctx echo.Context) error {
	p, err := api.ParentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding parent")
	}

	p, err = api.ParentSvc.UnlinkStudent(ctx.Request().Context(), p, ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "unlinking student")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Security

// security lists the accounts still using a temporary password, the most urgent first.
func (api *adminApi) security(ctx echo.Context) error {
	overview, err := api.securityOverview(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building security overview")
	}
	return ctx.JSON(http.StatusOK, overview)
}

func (api *adminApi) securityOverview(ctx context.Context) (SecurityOverview, error) {
	isDefault := true
	users, err := api.UserSvc.Query(ctx, &user.QueryFilter{IsDefaultPassword: &isDefault}, nil)
	if err != nil {
		return SecurityOverview{}, err
	}

	overview := SecurityOverview{Accounts: make([]AccountSecurity, 0, len(users))}
	for _, usr := range users {
		status := api.UserSvc.PasswordStatus(usr)
		overview.DefaultPasswords++
		switch status.AlertLevel {
		case user.AlertExpired:
			overview.Expired++
		case user.AlertDanger, user.AlertWarning:
			overview.ExpiringSoon++
		}
		if !usr.IsActive {
			overview.Suspended++
		}
		overview.Accounts = append(overview.Accounts, AccountSecurity{User: usr, PasswordStatus: status})
	}
	sort.SliceStable(overview.Accounts, func(i, j int) bool {
		return overview.Accounts[i].PasswordStatus.ExpiresAt.Before(overview.Accounts[j].PasswordStatus.ExpiresAt)
	})
	return overview, nil
}

func credentialsOrNil(creds user.Credentials) *user.Credentials {
	if creds.Password == "" {
		return nil
	}
	return &creds
}

type (
	StatusRequest struct {
		IsActive *bool  `json:"is_active" validate:"required"`
		Reason   string `json:"reason"`
	}

	AccountStatusRequest struct {
		student.AccountFilter
		Reason string `json:"reason"`
	}

	IDsRequest struct {
		StudentIDs []string `json:"student_ids"`
		TeacherIDs []string `json:"teacher_ids"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	CredentialsResponse struct {
		Created     int                          `json:"created"`
		Credentials []student.AccountCredentials `json:"credentials"`
	}

	ParentResponse struct {
		Parent      parent.Parent     `json:"parent"`
		Credentials *user.Credentials `json:"credentials,omitempty"`
	}

	AccountSecurity struct {
		User           user.User           `json:"user"`
		PasswordStatus user.PasswordStatus `json:"password_status"`
	}

	SecurityOverview struct {
		DefaultPasswords int               `json:"default_passwords"`
		ExpiringSoon     int               `json:"expiring_soon"`
		Expired          int               `json:"expired"`
		Suspended        int               `json:"suspended"`
		Accounts         []AccountSecurity `json:"accounts"`
	}
)
