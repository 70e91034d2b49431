package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, name, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Login: uname})
	if err == user.ErrNotFound && email != "" {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Login: email})
	}
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		now := user.NowFunc().UTC()
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if name = core.CleanString(name); name != "" {
		usr.LastName, usr.FirstName = name, name
		if parts := strings.SplitN(name, " ", 2); len(parts) == 2 {
			usr.LastName, usr.FirstName = parts[0], parts[1]
		}
	}
	if usr.FirstName == "" {
		usr.FirstName, usr.LastName = uname, uname
	}
	if isAdmin {
		usr.Roles = user.AdminRoles
	} else if len(usr.Roles) == 0 {
		usr.Roles = []string{user.RoleTeacher}
	}
	usr.IsActive = true
	usr.IsDefaultPassword = false
	usr.PasswordExpiresAt = time.Time{}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.PasswordChangedAt = user.NowFunc().UTC()
	usr.UpdatedAt = usr.PasswordChangedAt

	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
