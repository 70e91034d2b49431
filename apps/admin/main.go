package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
	emailsvc "github.com/trezcool/sala/services/email"
	logsvc "github.com/trezcool/sala/services/logger"
	"github.com/trezcool/sala/storage/database"
	inmemdb "github.com/trezcool/sala/storage/database/inmem"
	pgrepos "github.com/trezcool/sala/storage/database/postgres"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	mailSvc := emailsvc.NewConsoleService(conf, logger, appLogger)
	core.ParseEmailTemplates(conf, appLogger)

	cli := commandLine{out: os.Stdout}
	var (
		usrRepo     user.Repository
		schoolRepo  school.Repository
		studentRepo student.Repository
	)
	if conf.Database.Engine == core.EngineMemory {
		db := inmemdb.New()
		usrRepo = inmemdb.NewUserRepository(db)
		schoolRepo = inmemdb.NewSchoolRepository(db)
		studentRepo = inmemdb.NewStudentRepository(db)
	} else {
		// set up DB
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		errAndDie(database.Ping(context.Background(), db))

		cli.db = db.DB
		usrRepo = pgrepos.NewUserRepository(db)
		schoolRepo = pgrepos.NewSchoolRepository(db)
		studentRepo = pgrepos.NewStudentRepository(db)
	}

	// start CLI
	cli.usrRepo = usrRepo
	cli.users = user.NewService(usrRepo, mailSvc, conf, appLogger)
	cli.students = student.NewService(studentRepo, school.NewService(schoolRepo), cli.users)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
