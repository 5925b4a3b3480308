package database

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Resolver locates the dump/restore executable matching a detected
// server version. Packaging and installation of the utilities is out of
// scope, the resolver only finds a runnable path.
type Resolver struct {
	Engine string
	BinDir string // explicit directory override, wins over everything
}

// Resolve returns the path of the named utility for the given server
// version. An explicit BinDir is checked first, then the well-known
// versioned install directories for the engine, then PATH.
func (r *Resolver) Resolve(name string, version Version) (string, error) {
	if r.BinDir != "" {
		p := filepath.Join(r.BinDir, name)
		if isExecutable(p) {
			return p, nil
		}
		return "", fmt.Errorf("utility %s not found in %s", name, r.BinDir)
	}

	for _, dir := range r.versionedDirs(version) {
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p, nil
		}
	}

	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("utility %s for %s %s not found: %w", name, r.Engine, version, err)
	}
	return p, nil
}

// versionedDirs lists the per-major-version install locations used by
// the common packagings of each engine.
func (r *Resolver) versionedDirs(version Version) []string {
	major := strconv.Itoa(version.Major)

	switch r.Engine {
	case EnginePostgres:
		return []string{
			"/usr/lib/postgresql/" + major + "/bin",
			"/usr/pgsql-" + major + "/bin",
			"/opt/homebrew/opt/postgresql@" + major + "/bin",
			"/usr/local/opt/postgresql@" + major + "/bin",
		}
	case EngineMySQL:
		return []string{
			"/opt/homebrew/opt/mysql-client@" + major + "/bin",
			"/usr/local/opt/mysql-client@" + major + "/bin",
		}
	default:
		return nil
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
