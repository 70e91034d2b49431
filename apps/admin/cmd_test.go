package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/sala/core/school"
	"github.com/trezcool/sala/core/student"
	"github.com/trezcool/sala/core/user"
	emailsvc "github.com/trezcool/sala/services/email"
	inmemdb "github.com/trezcool/sala/storage/database/inmem"
	"github.com/trezcool/sala/tests"
)

var (
	usrRepo   user.Repository
	schoolSvc *school.Service
)

func setup(t *testing.T) *commandLine {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)

	// set up DB & repos
	db := inmemdb.New()
	usrRepo = inmemdb.NewUserRepository(db)
	users := user.NewService(usrRepo, emailsvc.NewMock(conf, logger), conf, logger)
	schoolSvc = school.NewService(inmemdb.NewSchoolRepository(db))

	// start CLI
	return &commandLine{
		db:       &sql.DB{},
		usrRepo:  usrRepo,
		users:    users,
		students: student.NewService(inmemdb.NewStudentRepository(db), schoolSvc, users),
		out:      new(bytes.Buffer),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "exam_rooms", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	t.Run("memory engine", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"adduser", "-username", "root"}, wantErr: errHelp},
		{name: "create admin", args: []string{"adduser", "-username", "Root", "-email", "root@test.kh", "-admin"}, extra: "S3cure!pwd"},
		{name: "create teacher", args: []string{"adduser", "-username", "dara", "-name", "Sok Dara"}, extra: "An0ther!pwd"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	root, err := usrRepo.GetUser(ctx, user.GetFilter{Login: "root"})
	require.NoError(t, err)
	assert.Equal(t, "root@test.kh", root.Email)
	assert.Equal(t, user.AdminRoles, root.Roles)
	assert.True(t, root.IsActive)
	assert.NoError(t, root.CheckPassword("S3cure!pwd"))

	dara, err := usrRepo.GetUser(ctx, user.GetFilter{Login: "dara"})
	require.NoError(t, err)
	assert.Equal(t, "Sok", dara.LastName)
	assert.Equal(t, "Dara", dara.FirstName)
	assert.Equal(t, []string{user.RoleTeacher}, dara.Roles)

	t.Run("existing user is updated", func(t *testing.T) {
		mockPassword("Th1rd!pwd")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "dara", "-admin"}))
		updated, err := usrRepo.GetUser(ctx, user.GetFilter{Login: "dara"})
		require.NoError(t, err)
		assert.Equal(t, dara.ID, updated.ID)
		assert.Equal(t, user.AdminRoles, updated.Roles)
		assert.NoError(t, updated.CheckPassword("Th1rd!pwd"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User Awe", "awe", "awe@test.kh", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "Fr3sh!pwd"},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: "Fr3sh!pwd2"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NotEqual(t, usr.PasswordHash, refreshedUsr.PasswordHash)
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_importStudents(t *testing.T) {
	cli := setup(t)
	cls, err := schoolSvc.CreateClass(context.Background(), school.NewClass{Name: "7A", Grade: 7, AcademicYear: "2024-2025"})
	require.NoError(t, err)

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]interface{}{
		{"ល.រ", "ឈ្មោះ", "ភេទ", "ថ្ងៃខែឆ្នាំកំណើត"},
		{1, "Sok Dara", "ប្រុស", "17/05/2012"},
		{2, "Chan Srey", "ស្រី", "03/02/2012"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "students.xlsx")
	require.NoError(t, book.SaveAs(path))

	tests := []cliTest{
		{name: "no args", args: []string{"importstudents"}, wantErr: errHelp},
		{name: "no file", args: []string{"importstudents", "-class", cls.ID}, wantErr: errHelp},
		{name: "missing file", args: []string{"importstudents", "-class", cls.ID, "-file", "nope.xlsx"}, wantErrStr: "opening file: open nope.xlsx: no such file or directory"},
		{name: "import", args: []string{"importstudents", "-class", cls.ID, "-file", path}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	roster, err := cli.students.Roster(context.Background(), cls.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "2 rows: 2 created")
}
