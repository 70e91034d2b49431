package user

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrPhoneExists        = errors.New("a user with this phone number already exists")
	ErrInvalidCredentials = core.NewValidationError(errors.New("invalid credentials"))
	ErrAccountDeactivated = core.NewPermissionError("account deactivated")
	ErrPasswordExpired    = core.NewPermissionError("password expired")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrPasswordReused     = core.NewValidationError(nil, core.FieldError{Field: "password", Error: "password was used recently"})
	ErrSelfDeactivation   = core.NewValidationError(errors.New("you cannot deactivate your own account"))
	ErrSelfDeletion       = core.NewValidationError(errors.New("you cannot delete your own account"))
	ErrLastAdmin          = core.NewValidationError(errors.New("cannot remove the last active admin"))
	ErrNotAdmin           = core.NewNotFoundError("admin not found")
	ErrLoginRequired      = core.NewValidationError(errors.New("an email or a phone number is required"))
	ErrNoDefaultPassword  = core.NewValidationError(errors.New("the account does not have a temporary password"))

	defaultSuspensionReason = "deactivated by an administrator"

	pwdWords = []string{
		"sun", "moon", "star", "river", "lotus", "mango", "tiger", "eagle", "cloud", "rain",
		"stone", "lake", "palm", "rice", "wind", "fire", "leaf", "bird", "book", "pen",
	}
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists, ErrEmailExists or ErrPhoneExists when a user other than
		// the excluded ones already uses one of the non-empty values.
		CheckUniqueness(ctx context.Context, username, email, phone string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of the names, username, email or phone.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		CountUsers(ctx context.Context, filter *QueryFilter) (int, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// SetUsersActive activates or deactivates users and returns the number of updated users.
		SetUsersActive(ctx context.Context, ids []string, active bool, reason string, at time.Time) (int, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

var makeResetToken = MakeToken // mockable

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email, phone string, exclUsers ...User) error {
	ids := make([]string, 0, len(exclUsers))
	for _, u := range exclUsers {
		ids = append(ids, u.ID)
	}
	if err := svc.repo.CheckUniqueness(ctx, uname, email, phone, ids...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		case ErrPhoneExists:
			field = "phone"
		default:
			return errors.Wrap(err, "checking user uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr := User{
		FirstName:         nu.FirstName,
		LastName:          nu.LastName,
		Username:          nu.Username,
		Email:             nu.Email,
		Phone:             nu.Phone,
		IsActive:          true,
		Roles:             nu.Roles,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// CreateAccount creates an account for a school member. Without a password, a temporary one is generated
// and must be changed before it expires. The returned Credentials hold the clear password.
func (svc *Service) CreateAccount(ctx context.Context, na NewAccount) (User, Credentials, error) {
	na.Clean()
	if na.Username == "" && na.Email == "" && na.Phone == "" {
		return User{}, Credentials{}, ErrLoginRequired
	}
	if err := svc.CheckUniqueness(ctx, na.Username, na.Email, na.Phone); err != nil {
		return User{}, Credentials{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		FirstName:         na.FirstName,
		LastName:          na.LastName,
		Username:          na.Username,
		Email:             na.Email,
		Phone:             na.Phone,
		IsActive:          true,
		Roles:             na.Roles,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	pwd := na.Password
	if pwd == "" {
		var err error
		if pwd, err = GenerateTemporaryPassword(); err != nil {
			return User{}, Credentials{}, errors.Wrap(err, "generating password")
		}
	}
	// an account created by someone else always starts with a temporary password
	usr.IsDefaultPassword = true
	usr.PasswordExpiresAt = now.Add(svc.conf.Account.DefaultPasswordLifetime)
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, Credentials{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, Credentials{}, errors.Wrap(err, "creating user")
	}
	creds := Credentials{UserID: usr.ID, Login: loginOf(usr), Password: pwd}
	svc.sendCredentialsMail(usr, creds)
	return usr, creds, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	return svc.repo.CountUsers(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

// GetByLogin finds a user by username, email or phone number.
func (svc *Service) GetByLogin(ctx context.Context, login string) (User, error) {
	login = core.CleanString(login, true /* lower */)
	if login == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Login: login})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Phone = uu.Phone
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil && *uu.IsActive != usr.IsActive {
		usr.IsActive = *uu.IsActive
		if usr.IsActive {
			usr.SuspendedAt = time.Time{}
			usr.SuspensionReason = ""
		} else {
			usr.SuspendedAt = NowFunc().UTC()
			usr.SuspensionReason = defaultSuspensionReason
		}
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetAvatar stores the URL of the user's profile picture.
func (svc *Service) SetAvatar(ctx context.Context, usr User, url string) (User, error) {
	usr.AvatarURL = url
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids...)
	return err
}

// Authenticate checks the credentials of a user and records the login.
func (svc *Service) Authenticate(ctx context.Context, login, pwd string) (User, error) {
	usr, err := svc.GetByLogin(ctx, login)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by login")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	now := NowFunc().UTC()
	if usr.PasswordExpired(now) {
		return User{}, ErrPasswordExpired
	}

	usr.LastLogin = now
	usr.LoginCount++
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

// ChangePassword changes the password of `usr` after checking their current password.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "current_password", Error: ErrWrongPassword.Error()})
	}
	return svc.setPassword(ctx, usr, cp.Password, false)
}

// SetPassword lets an admin set the password of `usr`. The password is final, not temporary.
func (svc *Service) SetPassword(ctx context.Context, usr User, sp SetPassword) (User, error) {
	return svc.setPassword(ctx, usr, sp.Password, false)
}

// ResetToTemporaryPassword replaces the password of `usr` with a generated temporary one.
func (svc *Service) ResetToTemporaryPassword(ctx context.Context, usr User) (User, Credentials, error) {
	pwd, err := GenerateTemporaryPassword()
	if err != nil {
		return User{}, Credentials{}, errors.Wrap(err, "generating password")
	}
	usr, err = svc.setPassword(ctx, usr, pwd, true)
	if err != nil {
		return User{}, Credentials{}, err
	}
	return usr, Credentials{UserID: usr.ID, Login: loginOf(usr), Password: pwd}, nil
}

func (svc *Service) setPassword(ctx context.Context, usr User, pwd string, temporary bool) (User, error) {
	if !temporary && usr.UsedPassword(pwd) {
		return User{}, ErrPasswordReused
	}
	now := NowFunc().UTC()
	usr.pushPasswordHistory(svc.conf.Account.PasswordHistorySize)
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.PasswordChangedAt = now
	usr.IsDefaultPassword = temporary
	if temporary {
		usr.PasswordExpiresAt = now.Add(svc.conf.Account.DefaultPasswordLifetime)
	} else {
		usr.PasswordExpiresAt = time.Time{}
	}
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// PasswordStatus describes the temporary password of `usr`, if any.
func (svc *Service) PasswordStatus(usr User) PasswordStatus {
	status := PasswordStatus{IsDefaultPassword: usr.IsDefaultPassword, AlertLevel: AlertNone}
	if !usr.IsDefaultPassword || usr.PasswordExpiresAt.IsZero() {
		return status
	}

	remaining := usr.PasswordExpiresAt.Sub(NowFunc())
	status.ExpiresAt = usr.PasswordExpiresAt
	status.IsExpired = remaining <= 0
	if !status.IsExpired {
		status.HoursRemaining = int(remaining.Hours())
		status.DaysRemaining = int(remaining.Hours() / 24)
	}
	status.AlertLevel = alertLevel(remaining)
	status.CanExtend = !status.IsExpired
	return status
}

func alertLevel(remaining time.Duration) string {
	day := 24 * time.Hour
	switch {
	case remaining <= 0:
		return AlertExpired
	case remaining <= day:
		return AlertDanger
	case remaining <= 3*day:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// ExtendPasswordExpiry gives `usr` another default password lifetime to change their temporary password.
func (svc *Service) ExtendPasswordExpiry(ctx context.Context, usr User) (User, error) {
	if !usr.IsDefaultPassword {
		return User{}, ErrNoDefaultPassword
	}
	now := NowFunc().UTC()
	if usr.PasswordExpired(now) {
		return User{}, ErrPasswordExpired
	}
	usr.PasswordExpiresAt = now.Add(svc.conf.Account.DefaultPasswordLifetime)
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// SetActive activates or deactivates users. `reason` is recorded on deactivation.
func (svc *Service) SetActive(ctx context.Context, ids []string, active bool, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !active && core.CleanString(reason) == "" {
		reason = defaultSuspensionReason
	}
	return svc.repo.SetUsersActive(ctx, ids, active, core.CleanString(reason), NowFunc().UTC())
}

// ExpireDefaultPasswords deactivates the active users whose temporary password expired and returns them.
func (svc *Service) ExpireDefaultPasswords(ctx context.Context) ([]User, error) {
	now := NowFunc().UTC()
	active, isDefault := true, true
	users, err := svc.repo.QueryUsers(ctx, &QueryFilter{
		IsActive:              &active,
		IsDefaultPassword:     &isDefault,
		PasswordExpiresBefore: now,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying expired passwords")
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if _, err = svc.repo.SetUsersActive(ctx, ids, false, "temporary password expired", now); err != nil {
		return nil, errors.Wrap(err, "deactivating users")
	}
	return users, nil
}

// Admins

// QueryAdmins lists the administrators, newest first.
func (svc *Service) QueryAdmins(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, &QueryFilter{Roles: []string{RoleAdmin}}, []core.DBOrdering{{Field: "created_at"}})
}

func (svc *Service) GetAdmin(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrNotAdmin
		}
		return User{}, err
	}
	if !usr.IsAdmin() {
		return User{}, ErrNotAdmin
	}
	return usr, nil
}

func (svc *Service) AdminStatistics(ctx context.Context) (AdminStats, error) {
	admins, err := svc.repo.QueryUsers(ctx, &QueryFilter{Roles: []string{RoleAdmin}}, nil)
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "querying admins")
	}
	stats := AdminStats{Total: len(admins)}
	for _, a := range admins {
		if a.IsActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if !a.SuspendedAt.IsZero() {
			stats.Suspended++
		}
		if a.IsDefaultPassword {
			stats.DefaultPassword++
		}
	}
	return stats, nil
}

// CreateAdmin creates an administrator account. An email or a phone number is required.
func (svc *Service) CreateAdmin(ctx context.Context, na NewAccount) (User, Credentials, error) {
	na.Clean()
	if na.Email == "" && na.Phone == "" {
		return User{}, Credentials{}, ErrLoginRequired
	}
	na.Roles = []string{RoleAdmin}
	return svc.CreateAccount(ctx, na)
}

// SetAdminActive toggles an administrator account. Admins cannot deactivate themselves.
func (svc *Service) SetAdminActive(ctx context.Context, actor User, id string, active bool, reason string) (User, error) {
	if actor.ID == id && !active {
		return User{}, ErrSelfDeactivation
	}
	admin, err := svc.GetAdmin(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !active {
		if err := svc.checkNotLastActiveAdmin(ctx, admin); err != nil {
			return User{}, err
		}
	}
	if _, err = svc.SetActive(ctx, []string{id}, active, reason); err != nil {
		return User{}, errors.Wrap(err, "setting admin active")
	}
	return svc.GetByID(ctx, id)
}

// DeleteAdmin deletes an administrator account. Admins cannot delete themselves nor the last active admin.
func (svc *Service) DeleteAdmin(ctx context.Context, actor User, id string) error {
	if actor.ID == id {
		return ErrSelfDeletion
	}
	admin, err := svc.GetAdmin(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.checkNotLastActiveAdmin(ctx, admin); err != nil {
		return err
	}
	return svc.Delete(ctx, id)
}

func (svc *Service) checkNotLastActiveAdmin(ctx context.Context, admin User) error {
	if !admin.IsActive {
		return nil
	}
	active := true
	cnt, err := svc.repo.CountUsers(ctx, &QueryFilter{Roles: []string{RoleAdmin}, IsActive: &active})
	if err != nil {
		return errors.Wrap(err, "counting active admins")
	}
	if cnt <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// Password reset

func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Login: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.IsActive || usr.Email == "" {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	token, err := makeResetToken(usr, svc.conf.SecretKey)
	if err != nil {
		svc.logger.Error("making password reset token", err, map[string]interface{}{"user_id": usr.ID})
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name(),
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
}

func (svc *Service) sendCredentialsMail(usr User, creds Credentials) {
	if usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject:      "Your new account",
		TemplateName: "account_credentials",
		TemplateData: map[string]string{
			"Name":      usr.Name(),
			"Login":     creds.Login,
			"Password":  creds.Password,
			"ExpiresAt": usr.PasswordExpiresAt.Format("2006-01-02 15:04 MST"),
		},
	})
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	invalidErr := core.NewValidationError(errors.New("invalid or expired token"))

	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return invalidErr
		}
		return err
	}
	if err = verifyToken(usr, rp.Token, svc.conf.SecretKey, svc.conf.PasswordResetTTL); err != nil {
		return invalidErr
	}
	_, err = svc.setPassword(ctx, usr, rp.Password, false)
	return err
}

func loginOf(usr User) string {
	switch {
	case usr.Username != "":
		return usr.Username
	case usr.Email != "":
		return usr.Email
	default:
		return usr.Phone
	}
}

// GenerateTemporaryPassword returns an easy to type password made of 3 words and 3 digits.
func GenerateTemporaryPassword() (string, error) {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pwdWords))))
		if err != nil {
			return "", err
		}
		w := pwdWords[n.Int64()]
		if i == 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		b.WriteString(w)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return "", err
	}
	b.WriteString(big.NewInt(n.Int64() + 100).String())
	return b.String(), nil
}
