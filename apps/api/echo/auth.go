package echoapi

import (
	"context"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	audience        = "Sala"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Remember     bool     `json:"remember,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsParent     bool     `json:"is_parent,omitempty"`  // -> PARENT PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
}

// HasRole reports whether one of the roles of the claims starts with one of `prefixes`.
func (c Claims) HasRole(prefixes ...string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, role := range c.Roles {
		for _, prefix := range prefixes {
			if strings.HasPrefix(role, prefix) {
				return true
			}
		}
	}
	return false
}

// GetUserClaims returns fresh claims for `usr`. `origIat` keeps the issue time of the first token of a session.
func GetUserClaims(conf *core.Config, usr user.User, remember bool, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 && origIat[0] > 0 {
		oriat = origIat[0]
	}
	delta := conf.Server.JWTExpirationDelta
	if remember {
		delta = conf.Server.JWTRememberExpirationDelta
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  audience,
			ExpiresAt: now.Add(delta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Remember:     remember,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsParent:     usr.IsParent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// authenticator issues, checks and revokes the API tokens.
type authenticator struct {
	conf      *core.Config
	users     *user.Service
	blacklist core.TokenBlacklist
	attempts  core.AttemptCounter
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(
	conf *core.Config, users *user.Service, blacklist core.TokenBlacklist, attempts core.AttemptCounter,
) *authenticator {
	return &authenticator{
		conf:      conf,
		users:     users,
		blacklist: blacklist,
		attempts:  attempts,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// middleware checks the bearer token and rejects revoked ones.
func (a *authenticator) middleware() echo.MiddlewareFunc {
	jwtMw := middleware.JWTWithConfig(a.jwtConfig)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMw(func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			revoked, err := a.blacklist.IsRevoked(ctx.Request().Context(), claims.Id)
			if err != nil {
				return errors.Wrap(err, "checking token blacklist")
			}
			if revoked {
				return errTokenRevoked
			}
			return next(ctx)
		})
	}
}

// parse checks a raw token the way the bearer middleware does. It serves the clients that cannot set
// headers, like browser websockets.
func (a *authenticator) parse(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, errUnauthorized
	}
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.jwtConfig.SigningMethod {
			return nil, errors.Errorf("unexpected jwt signing method %v", t.Header["alg"])
		}
		return a.jwtConfig.SigningKey, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, errUnauthorized
	}
	revoked, err := a.blacklist.IsRevoked(ctx, claims.Id)
	if err != nil {
		return Claims{}, errors.Wrap(err, "checking token blacklist")
	}
	if revoked {
		return Claims{}, errTokenRevoked
	}
	return *claims, nil
}

func loginAttemptsKey(login string) string {
	return "login:" + core.CleanString(login, true /* lower */)
}

// login authenticates a user and issues their token. Logins are locked once the failures within the
// attempt window reach the configured limit.
func (a *authenticator) login(ctx context.Context, login, pwd string, remember bool) (string, user.User, error) {
	key := loginAttemptsKey(login)
	limit := a.conf.Account.LoginAttemptLimit
	if limit > 0 {
		failures, err := a.attempts.Count(ctx, key)
		if err != nil {
			return "", user.User{}, errors.Wrap(err, "counting login attempts")
		}
		if failures >= limit {
			return "", user.User{}, errTooManyAttempts
		}
	}

	usr, err := a.users.Authenticate(ctx, login, pwd)
	if err != nil {
		if err == user.ErrInvalidCredentials && limit > 0 {
			if _, hErr := a.attempts.Hit(ctx, key, a.conf.Account.LoginAttemptWindow); hErr != nil {
				return "", user.User{}, errors.Wrap(hErr, "recording login attempt")
			}
		}
		return "", user.User{}, err
	}
	if err = a.attempts.Reset(ctx, key); err != nil {
		return "", user.User{}, errors.Wrap(err, "resetting login attempts")
	}

	token, err := GenerateToken(a.conf, GetUserClaims(a.conf, usr, remember))
	if err != nil {
		return "", user.User{}, errors.Wrap(err, "generating token")
	}
	return token, usr, nil
}

func (a *authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, a.users)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	// the old token cannot be used anymore
	if err = a.revoke(ctx.Request().Context(), claims); err != nil {
		return "", err
	}

	token, err := GenerateToken(a.conf, GetUserClaims(a.conf, usr, claims.Remember, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}

func (a *authenticator) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return a.revoke(ctx.Request().Context(), claims)
}

func (a *authenticator) revoke(ctx context.Context, claims Claims) error {
	err := a.blacklist.Revoke(ctx, claims.Id, time.Unix(claims.ExpiresAt, 0))
	return errors.Wrap(err, "revoking token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the authenticated user, loaded once per request.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if err == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return claims.HasRole(roles...)
}
