package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	mediasvc "github.com/trezcool/sala/services/media"
	"github.com/trezcool/sala/services/realtime"
	"github.com/trezcool/sala/storage/cache"
	inmemdb "github.com/trezcool/sala/storage/database/inmem"
	"github.com/trezcool/sala/tests"
)

var (
	ctxBg           = context.Background()
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// testApp is a server backed by the in-memory engine, with direct access to its services.
type testApp struct {
	echoapi.Server

	conf    *core.Config
	usrRepo user.Repository
	mail    *emailsvc.Mock
	cache   *cache.Memory
	hub     *realtime.Hub

	users         *user.Service
	school        *school.Service
	students      *student.Service
	teachers      *teacher.Service
	parents       *parent.Service
	attendance    *attendance.Service
	grades        *grade.Service
	feed          *feed.Service
	notifications *notification.Service
}

func setup(t *testing.T) *testApp {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)
	validate := testutil.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db := inmemdb.New()
	app := &testApp{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		mail:    emailsvc.NewMock(conf, logger),
		cache:   cache.NewMemory(),
		hub:     realtime.NewHub(logger, []string{"*"}),
	}

	// set up services
	app.users = user.NewService(app.usrRepo, app.mail, conf, logger)
	app.school = school.NewService(inmemdb.NewSchoolRepository(db))
	app.students = student.NewService(inmemdb.NewStudentRepository(db), app.school, app.users)
	app.teachers = teacher.NewService(inmemdb.NewTeacherRepository(db), app.school, app.users)
	app.parents = parent.NewService(inmemdb.NewParentRepository(db), app.students, app.users)
	app.attendance = attendance.NewService(inmemdb.NewAttendanceRepository(db), app.school, app.students)
	app.grades = grade.NewService(inmemdb.NewGradeRepository(db), app.school, app.school, app.students, app.attendance)
	app.notifications = notification.NewService(inmemdb.NewNotificationRepository(db), app.hub)
	app.feed = feed.NewService(inmemdb.NewFeedRepository(db), app.notifications, logger)
	reportSvc := report.NewService(app.school, app.grades, app.attendance, app.students, app.teachers, app.users)

	// set up server
	app.Server = echoapi.NewServer(echoapi.Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      core.NewTranslator(),
		DisableReqLogs:  true,
		Blacklist:       app.cache,
		Attempts:        app.cache,
		Media:           mediasvc.NewStorage(conf.Media),
		Hub:             app.hub,
		UserSvc:         app.users,
		SchoolSvc:       app.school,
		StudentSvc:      app.students,
		TeacherSvc:      app.teachers,
		ParentSvc:       app.parents,
		AttendanceSvc:   app.attendance,
		GradeSvc:        app.grades,
		ReportSvc:       reportSvc,
		FeedSvc:         app.feed,
		NotificationSvc: app.notifications,
	})
	return app
}

func (app *testApp) createUser(t *testing.T, name, uname, pwd string, roles ...string) user.User {
	return testutil.CreateUser(t, app.usrRepo, name, uname, uname+"@test.kh", pwd, roles, true)
}

func (app *testApp) createClass(t *testing.T, name string, grade int) school.Class {
	cls, err := app.school.CreateClass(context.Background(), school.NewClass{Name: name, Grade: grade, AcademicYear: "2024-2025"})
	require.NoError(t, err)
	return cls
}

func (app *testApp) createStudent(t *testing.T, first, last, gender, classID string) student.Student {
	s, err := app.students.Create(context.Background(), student.NewStudent{
		FirstName:   first,
		LastName:    last,
		Gender:      gender,
		DateOfBirth: "2012-05-17",
		ClassID:     classID,
	})
	require.NoError(t, err)
	return s
}

func (app *testApp) createSubject(t *testing.T, nameKh, code string, grade int) school.Subject {
	subj, err := app.school.CreateSubject(context.Background(), school.NewSubject{
		NameKh:      nameKh,
		Code:        code,
		Grade:       grade,
		MaxScore:    50,
		Coefficient: 1,
	})
	require.NoError(t, err)
	return subj
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr, false))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves a JSON request and returns the recorder.
func (app *testApp) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body)
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
