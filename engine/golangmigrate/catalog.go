package golangmigrate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/getpup/migration-orchestrator/engine"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationFile is one versioned migration of a module's source.
type migrationFile struct {
	Version    uint
	Identifier string
}

// Name is how the orchestrator refers to the migration: "<version>_<identifier>".
func (f migrationFile) Name() string {
	return fmt.Sprintf("%d_%s", f.Version, f.Identifier)
}

// catalog lists and reads the migrations of a module's source.
type catalog struct {
	files []migrationFile
}

// openSource opens the iofs source driver for a module directory.
func openSource(fsys fs.FS, module string) (source.Driver, error) {
	if _, err := fs.Stat(fsys, module); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrModuleNotFound, module)
		}
		return nil, fmt.Errorf("failed to stat module %s: %w", module, err)
	}

	src, err := iofs.New(fsys, module)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source for %s: %w", module, err)
	}
	return src, nil
}

// loadCatalog walks the source from First to the last version.
func loadCatalog(src source.Driver) (catalog, error) {
	var c catalog

	version, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read first migration: %w", err)
	}

	for {
		identifier, err := readIdentifier(src, version)
		if err != nil {
			return c, err
		}
		c.files = append(c.files, migrationFile{Version: version, Identifier: identifier})

		version, err = src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		if err != nil {
			return c, fmt.Errorf("failed to read next migration: %w", err)
		}
	}
}

func readIdentifier(src source.Driver, version uint) (string, error) {
	r, identifier, err := src.ReadUp(version)
	if errors.Is(err, fs.ErrNotExist) {
		r, identifier, err = src.ReadDown(version)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read migration %d: %w", version, err)
	}
	_ = r.Close()
	return identifier, nil
}

// find resolves a migration by full name or by bare version number.
func (c catalog) find(name string) (migrationFile, int, bool) {
	version, numErr := strconv.ParseUint(strings.SplitN(name, "_", 2)[0], 10, 64)
	for i, f := range c.files {
		if f.Name() == name {
			return f, i, true
		}
		if numErr == nil && !strings.Contains(name, "_") && uint64(f.Version) == version {
			return f, i, true
		}
	}
	return migrationFile{}, -1, false
}

// after returns the names of migrations with a version greater than current.
func (c catalog) after(current uint, applied bool) []string {
	names := make([]string, 0)
	for _, f := range c.files {
		if !applied || f.Version > current {
			names = append(names, f.Name())
		}
	}
	return names
}

// between returns the names of migrations in (from, to].
func (c catalog) between(from uint, fromApplied bool, to uint) []string {
	names := make([]string, 0)
	for _, f := range c.files {
		if (!fromApplied || f.Version > from) && f.Version <= to {
			names = append(names, f.Name())
		}
	}
	return names
}

// previous returns the name of the migration before index i, or "".
func (c catalog) previous(i int) string {
	if i <= 0 {
		return ""
	}
	return c.files[i-1].Name()
}

func readScript(src source.Driver, version uint) (string, error) {
	r, _, err := src.ReadUp(version)
	if err != nil {
		return "", fmt.Errorf("failed to read migration %d: %w", version, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read migration %d: %w", version, err)
	}
	return string(body), nil
}
