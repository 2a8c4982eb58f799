package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "--impact", "0.45", "--leverage", "1.2")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.HasPrefix(out, "notable: impact=45.0%") {
		t.Fatalf("out = %q", out)
	}

	out, err = execute(t, "classify", "--impact", "0.05", "--leverage", "1.0")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.HasPrefix(out, "skip:") {
		t.Fatalf("out = %q", out)
	}

	if _, err := execute(t, "classify", "--strategy", "team_homeruns"); err == nil {
		t.Fatal("team strategy without --team should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "impactwatch dev") {
		t.Fatalf("out = %q", out)
	}
}
