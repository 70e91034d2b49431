package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/trezcool/sala/apps/api/echo"
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
	emailsvc "github.com/trezcool/sala/services/email"
	"github.com/trezcool/sala/services/jobs"
	logsvc "github.com/trezcool/sala/services/logger"
	mediasvc "github.com/trezcool/sala/services/media"
	"github.com/trezcool/sala/services/realtime"
	"github.com/trezcool/sala/storage/cache"
)

type tokenStore interface {
	core.TokenBlacklist
	core.AttemptCounter
	jobs.Purger
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	repos, err := newRepositories(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up token store
	var tokens tokenStore
	if conf.Redis.Address != "" {
		rds := cache.NewRedis(conf.Redis)
		if err = rds.Ping(ctx); err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() { _ = rds.Close() }()
		tokens = rds
	} else {
		tokens = cache.NewMemory()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "EMAIL : ", log.LstdFlags), logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.users, mailSvc, conf, logger)
	schoolSvc := school.NewService(repos.school)
	studentSvc := student.NewService(repos.students, schoolSvc, usrSvc)
	teacherSvc := teacher.NewService(repos.teachers, schoolSvc, usrSvc)
	parentSvc := parent.NewService(repos.parents, studentSvc, usrSvc)
	attendanceSvc := attendance.NewService(repos.attendance, schoolSvc, studentSvc)
	gradeSvc := grade.NewService(repos.grades, schoolSvc, schoolSvc, studentSvc, attendanceSvc)
	hub := realtime.NewHub(logger, conf.Server.CORSOrigins)
	notificationSvc := notification.NewService(repos.notifications, hub)
	feedSvc := feed.NewService(repos.feed, notificationSvc, logger)
	reportSvc := report.NewService(schoolSvc, gradeSvc, attendanceSvc, studentSvc, teacherSvc, usrSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := newValidator()

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(conf, logger)

	// =========================================================================
	// Start Background Jobs

	scheduler := jobs.NewScheduler(
		logger,
		jobs.PasswordExpiry(conf.Jobs.PasswordExpiryInterval, usrSvc, notificationSvc, logger),
		jobs.BlacklistPurge(conf.Jobs.BlacklistPurgeInterval, tokens),
	)
	scheduler.Start(ctx)
	defer scheduler.Wait()
	defer cancel() // stops the jobs before waiting on them

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		Blacklist:       tokens,
		Attempts:        tokens,
		Media:           mediasvc.NewStorage(conf.Media),
		Hub:             hub,
		UserSvc:         usrSvc,
		SchoolSvc:       schoolSvc,
		StudentSvc:      studentSvc,
		TeacherSvc:      teacherSvc,
		ParentSvc:       parentSvc,
		AttendanceSvc:   attendanceSvc,
		GradeSvc:        gradeSvc,
		ReportSvc:       reportSvc,
		FeedSvc:         feedSvc,
		NotificationSvc: notificationSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer shutdownCancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
