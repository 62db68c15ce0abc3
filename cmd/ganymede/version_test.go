package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommandExists(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run":      false,
		"validate": false,
		"rules":    false,
		"state":    false,
		"control":  false,
		"version":  false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q is not registered", name)
		}
	}
}

func TestCompletionCommand(t *testing.T) {
	var out bytes.Buffer
	completionCmd.SetOut(&out)
	defer completionCmd.SetOut(nil)

	if err := completionCmd.RunE(completionCmd, []string{"bash"}); err != nil {
		t.Fatalf("generating bash completion: %v", err)
	}
	if !strings.Contains(out.String(), "ganymede") {
		t.Error("completion script does not mention the binary name")
	}

	if err := completionCmd.Args(completionCmd, []string{"tcsh"}); err == nil {
		t.Error("expected an error for an unsupported shell")
	}
}

func TestControlSubcommands(t *testing.T) {
	want := map[string]bool{
		"isolate": false,
		"restore": false,
		"halt":    false,
		"resume":  false,
		"status":  false,
	}
	for _, cmd := range controlCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("control subcommand %q is not registered", name)
		}
	}
}
