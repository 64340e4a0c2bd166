package cli

import (
	"fmt"
	"io"
	"os"
)

// MigrateOptions defines the arguments of `migrate`.
type MigrateOptions struct {
	DSN    string
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

// Migrator applies pending migrations and reports the resulting version.
type Migrator func(dsn, path string) (uint, error)

// MigrateCommand runs every pending up migration.
func MigrateCommand(migrate Migrator, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.DSN == "" || opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: PG_DSN and MIGRATIONS_PATH are required")
		return 2
	}
	version, err := migrate(opts.DSN, opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "schema at version %d\n", version)
	return 0
}
