package testutil

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
	logsvc "github.com/trezcool/sala/services/logger"
)

// NewConfig returns the TEST configuration, backed by the in-memory engine. Media files go to a
// temporary directory.
func NewConfig(t *testing.T) *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.Database.Engine = core.EngineMemory
	conf.Redis.Address = ""
	conf.Media.Dir = t.TempDir()
	return conf
}

// NewLogger returns a logger that drops everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	first, last := name, name
	if parts := strings.SplitN(name, " ", 2); len(parts) == 2 {
		last, first = parts[0], parts[1]
	}
	usr := user.User{
		FirstName:         first,
		LastName:          last,
		Username:          uname,
		Email:             email,
		Roles:             roles,
		IsActive:          isActive,
		PasswordChangedAt: tstamp,
		CreatedAt:         tstamp,
		UpdatedAt:         tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}
