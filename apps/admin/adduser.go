package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/reliefbridge/core/user"
)

// addUser creates a new user or updates an existing one (matched by username
// or email). When admin is true the user is granted all roles.
func (cli *commandLine) addUser(uname, email, pwd string, admin bool) error {
	ctx := context.Background()

	roles := user.VendorRoles
	if admin {
		roles = user.AllRoles
	}

	usr, err := cli.usrRepo.GetUserByUsername(ctx, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "finding user by username")
		}
		usr, err = cli.usrRepo.GetUserByEmail(ctx, email)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "finding user by email")
		}
	}

	now := time.Now().UTC()
	if usr.ID == "" {
		usr = user.User{
			ID:        uuid.New().String(),
			Username:  uname,
			Email:     email,
			IsActive:  true,
			Roles:     roles,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return errors.Wrap(err, "setting password")
		}
		if _, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return errors.Wrap(err, "creating user")
		}
		return nil
	}

	usr.Username = uname
	usr.Email = email
	usr.Roles = roles
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	isActive := true
	if _, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}
