package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	hooks "github.com/goliatone/go-marketplace-hooks"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-marketplace-hooks"

	rootPath = "data/sql/migrations"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions lists the migration versions found, oldest first.
	Versions []string
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one filesystem per targeted dialect. Callers
// typically forward it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded filesystems. Entries without a
// dialect or filesystem are ignored.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var kept []FilesystemSpec
		for _, spec := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			spec.Dialect = dialect
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems resolves the Postgres and SQLite migration sets from source,
// or from the embedded schema when source is omitted. Both dialects must
// carry the same versions, each with an up and a down file.
func Filesystems(source ...fs.FS) ([]FilesystemSpec, error) {
	root := hooks.GetMigrationsFS()
	if len(source) > 0 && source[0] != nil {
		root = source[0]
	}
	postgres, basePath, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	sqlite, err := fs.Sub(postgres, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: postgres},
		{Dialect: DialectSQLite, Path: strings.TrimPrefix(basePath+"/sqlite", "./"), FS: sqlite},
	}
	for i := range specs {
		versions, err := Versions(specs[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s %q: %w", specs[i].Dialect, specs[i].Path, err)
		}
		specs[i].Versions = versions
	}
	if !slices.Equal(specs[0].Versions, specs[1].Versions) {
		return nil, fmt.Errorf("migrations: postgres versions %v differ from sqlite versions %v",
			specs[0].Versions, specs[1].Versions)
	}
	return specs, nil
}

// Versions returns the migration versions in fsys. Every *.up.sql needs a
// matching *.down.sql and at least one migration must exist.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("%s has no down migration", up)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

// Register hands each targeted dialect's filesystem to registerFn. The
// default targets are Postgres and SQLite.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       SourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, target := range reg.ValidationTargets {
		idx := slices.IndexFunc(reg.Filesystems, func(spec FilesystemSpec) bool { return spec.Dialect == target })
		if idx < 0 {
			return reg, fmt.Errorf("migrations: no filesystem for dialect %s", target)
		}
		spec := reg.Filesystems[idx]
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "pq":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

func resolveRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, rootPath); err == nil {
		if _, statErr := fs.Stat(sub, "sqlite"); statErr == nil {
			return sub, rootPath, nil
		}
	}
	if _, err := fs.Stat(root, "sqlite"); err == nil {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", rootPath)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		dialect := strings.TrimSpace(strings.ToLower(value))
		if dialect != "" && !slices.Contains(out, dialect) {
			out = append(out, dialect)
		}
	}
	return out
}
