package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "root command without args shows help",
			args:           []string{},
			wantErr:        false,
			expectedOutput: "EchoNote API",
		},
		{
			name:           "root command with --help",
			args:           []string{"--help"},
			wantErr:        false,
			expectedOutput: "Available Commands:",
		},
		{
			name:           "root command with invalid flag",
			args:           []string{"--invalid-flag"},
			wantErr:        true,
			expectedOutput: "",
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

func TestSubcommandsRegistered(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "migrate", "transcribe", "version"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("Expected %q subcommand to be registered", name)
		}
	}
}

func TestLogFlags(t *testing.T) {
	cmd := NewRootCmd()

	logFlag := cmd.PersistentFlags().Lookup("log-level")
	if logFlag == nil {
		t.Error("Expected log-level flag to be registered")
		return
	}

	if logFlag.DefValue != "info" {
		t.Errorf("Expected default log-level to be 'info', got %s", logFlag.DefValue)
	}

	jsonFlag := cmd.PersistentFlags().Lookup("json-logs")
	if jsonFlag == nil {
		t.Error("Expected json-logs flag to be registered")
		return
	}
}
