package main

import (
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	appfs "github.com/trezcool/reliefbridge/fs"
)

var gooseRunFunc = goose.RunFS // mockable

// migrate runs the embedded database migrations.
// args[0] is the goose command (up, down, status, ...); the rest are passed through.
func (cli *commandLine) migrate(args []string) error {
	if err := gooseRunFunc(args[0], cli.db, appfs.FS, "migrations", args[1:]...); err != nil {
		return errors.Wrapf(err, "running goose %s", args[0])
	}
	return nil
}
