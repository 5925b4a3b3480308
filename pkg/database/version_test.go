package database

import (
	"errors"
	"testing"
)

func TestParsePostgresVersion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Version
		wantErr bool
	}{
		{
			name: "ubuntu build string",
			raw:  "PostgreSQL 16.4 (Ubuntu 16.4-1.pgdg22.04+1) on x86_64-pc-linux-gnu, compiled by gcc",
			want: Version{Major: 16, Minor: 4},
		},
		{
			name: "three component version",
			raw:  "PostgreSQL 9.6.24 on x86_64-pc-linux-gnu",
			want: Version{Major: 9, Minor: 6, Patch: 24},
		},
		{
			name: "major only",
			raw:  "PostgreSQL 17 on aarch64-apple-darwin",
			want: Version{Major: 17},
		},
		{
			name:    "garbage",
			raw:     "MariaDB 11.2",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePostgresVersion(tt.raw)

			if tt.wantErr {
				if err == nil {
					t.Fatal("parsePostgresVersion() expected error, got nil")
				}
				var parseErr *VersionParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("parsePostgresVersion() error type = %T, want *VersionParseError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("parsePostgresVersion() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parsePostgresVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNumericVersion(t *testing.T) {
	tests := []struct {
		name    string
		engine  string
		raw     string
		want    Version
		wantErr bool
	}{
		{
			name:   "mysql with distro suffix",
			engine: EngineMySQL,
			raw:    "8.0.39-0ubuntu0.24.04.1",
			want:   Version{Major: 8, Minor: 0, Patch: 39},
		},
		{
			name:   "mariadb log suffix",
			engine: EngineMySQL,
			raw:    "10.11.6-MariaDB-log",
			want:   Version{Major: 10, Minor: 11, Patch: 6},
		},
		{
			name:   "sqlite plain",
			engine: EngineSQLite,
			raw:    "3.45.1",
			want:   Version{Major: 3, Minor: 45, Patch: 1},
		},
		{
			name:    "not a version",
			engine:  EngineMySQL,
			raw:     "unknown",
			wantErr: true,
		},
		{
			name:    "empty",
			engine:  EngineSQLite,
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseNumericVersion(tt.engine, tt.raw)

			if tt.wantErr {
				if err == nil {
					t.Fatal("parseNumericVersion() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("parseNumericVersion() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseNumericVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	v := Version{Major: 16, Minor: 4, Patch: 2}
	if v.String() != "16.4.2" {
		t.Errorf("String() = %q, want %q", v.String(), "16.4.2")
	}
}
