package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"unicode/utf8"
)

// captureStdout replaces os.Stdout with a pipe, calls f, then returns the
// captured output and restores os.Stdout. Not safe for parallel use.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		io.Copy(&buf, r) //nolint:errcheck // test pipe.
		close(done)
	}()

	f()

	w.Close()
	<-done
	os.Stdout = orig
	r.Close()
	return buf.String()
}

func setFormat(t *testing.T, format string) {
	t.Helper()
	orig := flagFmt
	flagFmt = format
	t.Cleanup(func() { flagFmt = orig })
}

func TestFormatJSON(t *testing.T) {
	type sample struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	got := captureStdout(t, func() { formatJSON(sample{ID: "abc-123", Content: "call Jane"}) })

	var out sample
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, got)
	}
	if out.ID != "abc-123" || out.Content != "call Jane" {
		t.Errorf("got %+v", out)
	}
	if !strings.Contains(got, "\n  ") {
		t.Errorf("expected indented JSON but got: %s", got)
	}
}

func TestFormatTable(t *testing.T) {
	headers := []string{"KEY", "SCORE", "CONTENT"}
	rows := [][]string{
		{"user:abc", "0.665", "call Jane about the budget review"},
		{"mua:x", "0.5", "follow up"},
	}

	got := captureStdout(t, func() { formatTable(headers, rows) })
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), got)
	}
	for _, h := range headers {
		if !strings.Contains(lines[0], h) {
			t.Errorf("header line missing %q: %s", h, lines[0])
		}
	}
	for _, ch := range strings.TrimSpace(lines[1]) {
		if ch != '-' && ch != ' ' {
			t.Errorf("separator contains unexpected char %q: %s", ch, lines[1])
		}
	}
	if !strings.Contains(lines[2], "user:abc") || !strings.Contains(lines[3], "follow up") {
		t.Errorf("rows missing values:\n%s", got)
	}
}

func TestFormatTableEmpty(t *testing.T) {
	got := captureStdout(t, func() { formatTable([]string{"ID", "NAME"}, nil) })
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and separator, got %d lines:\n%s", len(lines), got)
	}
}

func TestFormatTablePadsMultibyteCells(t *testing.T) {
	rows := [][]string{{"José"}, {"a-much-longer-value"}}
	got := captureStdout(t, func() { formatTable([]string{"NAME"}, rows) })
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if a, b := utf8.RuneCountInString(lines[2]), utf8.RuneCountInString(lines[3]); a != b {
		t.Errorf("row widths differ: %d vs %d\n%s\n%s", a, b, lines[2], lines[3])
	}
}

func TestOutputJSON(t *testing.T) {
	setFormat(t, "json")
	got := captureStdout(t, func() { output(map[string]string{"key": "val"}, "quiet-id") })

	var out map[string]string
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("expected JSON output: %v\noutput: %s", err, got)
	}
	if out["key"] != "val" {
		t.Errorf("got %q, want %q", out["key"], "val")
	}
}

func TestOutputQuiet(t *testing.T) {
	setFormat(t, "quiet")
	got := captureStdout(t, func() { output(map[string]string{"key": "val"}, "my-quiet-id") })
	if strings.TrimRight(got, "\n") != "my-quiet-id" {
		t.Errorf("got %q, want %q", got, "my-quiet-id")
	}
}

func TestOutputTableFallsBackToJSON(t *testing.T) {
	setFormat(t, "table")
	got := captureStdout(t, func() { output(map[string]string{"x": "y"}, "") })

	var out map[string]string
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("expected JSON fallback for table format: %v\noutput: %s", err, got)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line one\n  line two", 40, "line one line two"},
		{"abcdefghij", 5, "abcd…"},
		{"Zoë Zoë Zoë", 4, "Zoë…"},
	}
	for _, tc := range tests {
		if got := preview(tc.in, tc.n); got != tc.want {
			t.Errorf("preview(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	origCommit, origDate := commit, buildDate
	t.Cleanup(func() { commit, buildDate = origCommit, origDate })

	commit, buildDate = "", ""
	if s := versionString(); !strings.HasPrefix(s, "mua version ") || strings.Contains(s, "commit") {
		t.Errorf("dev build string: %q", s)
	}

	commit, buildDate = "abc1234", "2026-01-01"
	s := versionString()
	if !strings.Contains(s, "abc1234") || !strings.Contains(s, "2026-01-01") {
		t.Errorf("release build string missing commit or date: %q", s)
	}
}
