package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/feed"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/report"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
	mediasvc "github.com/trezcool/sala/services/media"
	"github.com/trezcool/sala/services/realtime"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		Blacklist core.TokenBlacklist
		Attempts  core.AttemptCounter
		Media     *mediasvc.Storage
		Hub       *realtime.Hub // optional

		UserSvc         *user.Service
		SchoolSvc       *school.Service
		StudentSvc      *student.Service
		TeacherSvc      *teacher.Service
		ParentSvc       *parent.Service
		AttendanceSvc   *attendance.Service
		GradeSvc        *grade.Service
		ReportSvc       *report.Service
		FeedSvc         *feed.Service
		NotificationSvc *notification.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     Options
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		auth:     newAuthenticator(opts.Conf, opts.UserSvc, opts.Blacklist, opts.Attempts),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: conf.Server.CORSOrigins}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)
	if s.opts.Media != nil {
		s.app.Static(conf.Media.BaseURL, s.opts.Media.Dir())
	}

	g := s.app.Group("/api")
	g.GET("/health", s.health)

	jwt := s.auth.middleware()
	h := handlers{
		Options: s.opts,
		auth:    s.auth,
	}

	registerAuthAPI(g, jwt, h)
	registerAdminAPI(g, jwt, h)
	registerSchoolAPI(g, jwt, h)
	registerStudentAPI(g, jwt, h)
	registerTeacherAPI(g, jwt, h)
	registerAttendanceAPI(g, jwt, h)
	registerGradeAPI(g, jwt, h)
	registerReportAPI(g, jwt, h)
	registerFeedAPI(g, jwt, h)
	registerNotificationAPI(g, jwt, h)
	registerPortalAPI(g, jwt, h)
	registerRealtimeAPI(g, h)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown stops the server gracefully. Websockets are hijacked connections, so the hub closes them.
func (s *server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

func (s *server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok", "build": s.opts.Conf.Build})
}

// handlers carries the dependencies shared by all the API handlers.
type handlers struct {
	Options
	auth *authenticator
}
