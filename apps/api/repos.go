package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/feed"
	"github.com/trezcool/sala/core/grade"
	"github.com/trezcool/sala/core/notification"
	"github.com/trezcool/sala/core/parent"
	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/teacher"
	"github.com/trezcool/sala/core/user"
	"github.com/trezcool/sala/storage/database"
	inmemdb "github.com/trezcool/sala/storage/database/inmem"
	pgrepos "github.com/trezcool/sala/storage/database/postgres"
)

type repositories struct {
	users         user.Repository
	school        school.Repository
	students      student.Repository
	teachers      teacher.Repository
	parents       parent.Repository
	attendance    attendance.Repository
	grades        grade.Repository
	feed          feed.Repository
	notifications notification.Repository

	close func() error
}

// newRepositories opens the configured engine. The postgres database is created and migrated if needed.
func newRepositories(ctx context.Context, conf *core.Config) (*repositories, error) {
	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.New()
		return &repositories{
			users:         inmemdb.NewUserRepository(db),
			school:        inmemdb.NewSchoolRepository(db),
			students:      inmemdb.NewStudentRepository(db),
			teachers:      inmemdb.NewTeacherRepository(db),
			parents:       inmemdb.NewParentRepository(db),
			attendance:    inmemdb.NewAttendanceRepository(db),
			grades:        inmemdb.NewGradeRepository(db),
			feed:          inmemdb.NewFeedRepository(db),
			notifications: inmemdb.NewNotificationRepository(db),
			close:         func() error { return nil },
		}, nil

	case core.EnginePostgres:
		db, err := setUpDB(ctx, conf)
		if err != nil {
			return nil, err
		}
		return &repositories{
			users:         pgrepos.NewUserRepository(db),
			school:        pgrepos.NewSchoolRepository(db),
			students:      pgrepos.NewStudentRepository(db),
			teachers:      pgrepos.NewTeacherRepository(db),
			parents:       pgrepos.NewParentRepository(db),
			attendance:    pgrepos.NewAttendanceRepository(db),
			grades:        pgrepos.NewGradeRepository(db),
			feed:          pgrepos.NewFeedRepository(db),
			notifications: pgrepos.NewNotificationRepository(db),
			close:         db.Close,
		}, nil

	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
