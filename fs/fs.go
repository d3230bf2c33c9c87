// Package appfs exposes the application's embedded assets:
// database migrations, email templates and static data files.
package appfs

import "embed"

// The base layouts are named explicitly: embed skips _-prefixed files when
// matching a directory.
//go:embed assets migrations templates templates/email/_base.txt templates/email/_base.gohtml
var FS embed.FS
