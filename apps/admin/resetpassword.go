package main

import (
	"context"

	"github.com/trezcool/sala/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByLogin(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.users.SetPassword(ctx, usr, user.SetPassword{Password: pwd, PasswordConfirm: pwd})
	return err
}
