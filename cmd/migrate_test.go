package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/killallgit/echonote-api/pkg/config"
)

func TestMigrateCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "migrate command with help",
			args:           []string{"migrate", "--help"},
			wantErr:        false,
			expectedOutput: "Manage the EchoNote database schema",
		},
		{
			name:           "migrate up subcommand",
			args:           []string{"migrate", "up", "--help"},
			wantErr:        false,
			expectedOutput: "Apply the current schema",
		},
		{
			name:           "migrate status subcommand",
			args:           []string{"migrate", "status", "--help"},
			wantErr:        false,
			expectedOutput: "Display the current status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.expectedOutput != "" && !strings.Contains(buf.String(), tt.expectedOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.expectedOutput, buf.String())
			}
		})
	}
}

func TestMigrateUpAndStatus(t *testing.T) {
	t.Chdir(t.TempDir())
	config.Reset()
	defer config.Reset()

	dbPath := filepath.Join(t.TempDir(), "echonote.db")

	run := func(args ...string) string {
		t.Helper()
		cmd := NewRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("Execute(%v) error = %v", args, err)
		}
		return buf.String()
	}

	out := run("migrate", "status", "--db", dbPath)
	if !strings.Contains(out, "transcript_jobs") || !strings.Contains(out, "missing") {
		t.Errorf("Expected missing tables before migrating, got %q", out)
	}

	out = run("migrate", "up", "--db", dbPath)
	if !strings.Contains(out, "Schema is up to date") {
		t.Errorf("Expected confirmation, got %q", out)
	}

	out = run("migrate", "status", "--db", dbPath)
	if strings.Contains(out, "missing") {
		t.Errorf("Expected every table present, got %q", out)
	}
	for _, table := range []string{"transcript_jobs", "audio_chunks", "usage_records"} {
		if !strings.Contains(out, table) {
			t.Errorf("Expected %s in status output", table)
		}
	}
}

func TestMigrateCommandSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	if err != nil {
		t.Fatalf("Failed to find migrate command: %v", err)
	}

	expectedSubcommands := []string{"up", "status"}
	for _, subCmd := range expectedSubcommands {
		found := false
		for _, child := range migrateCmd.Commands() {
			if child.Name() == subCmd {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected migrate command to have %q subcommand", subCmd)
		}
	}
}
