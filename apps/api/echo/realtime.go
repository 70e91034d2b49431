package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core/user"
)

type realtimeApi struct {
	handlers
}

func registerRealtimeAPI(g *echo.Group, h handlers) {
	if h.Hub == nil {
		return
	}
	api := realtimeApi{h}
	g.GET("/ws", api.connect)
}

// wsToken reads the token from the `token` query param, or from the bearer header.
func wsToken(ctx echo.Context) string {
	if token := ctx.QueryParam("token"); token != "" {
		return token
	}
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

// connect opens the notification stream of the authenticated user.
func (api *realtimeApi) connect(ctx echo.Context) error {
	claims, err := api.auth.parse(ctx.Request().Context(), wsToken(ctx))
	if err != nil {
		return err
	}
	usr, err := api.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if err == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	// the upgrader answers the failed handshakes itself
	if err = api.Hub.Serve(ctx.Response(), ctx.Request(), usr.ID); err != nil {
		api.Logger.Warn("opening websocket", err, map[string]interface{}{"user_id": usr.ID})
	}
	return nil
}
