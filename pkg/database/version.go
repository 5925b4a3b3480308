package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed engine server version. Dump and restore
// utilities are frequently coupled to the server's major version, so
// the resolver keys off this value.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

var postgresVersionRe = regexp.MustCompile(`PostgreSQL (\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// parsePostgresVersion extracts the server version from the output of
// SELECT version(), e.g.
// "PostgreSQL 16.4 (Ubuntu 16.4-1.pgdg22.04+1) on x86_64-pc-linux-gnu".
func parsePostgresVersion(raw string) (Version, error) {
	m := postgresVersionRe.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, &VersionParseError{Engine: EnginePostgres, Raw: raw}
	}

	v := Version{Major: atoi(m[1])}
	if m[2] != "" {
		v.Minor = atoi(m[2])
	}
	if m[3] != "" {
		v.Patch = atoi(m[3])
	}
	return v, nil
}

// parseNumericVersion handles dotted versions with optional suffixes,
// e.g. MySQL's "8.0.39-0ubuntu0.24.04.1" or SQLite's "3.45.1".
func parseNumericVersion(engine, raw string) (Version, error) {
	core := raw
	if i := strings.IndexAny(core, "-+ "); i >= 0 {
		core = core[:i]
	}

	parts := strings.Split(core, ".")
	if len(parts) == 0 || parts[0] == "" {
		return Version{}, &VersionParseError{Engine: engine, Raw: raw}
	}

	var v Version
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, &VersionParseError{Engine: engine, Raw: raw}
		}
		switch i {
		case 0:
			v.Major = n
		case 1:
			v.Minor = n
		case 2:
			v.Patch = n
		}
	}
	return v, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
