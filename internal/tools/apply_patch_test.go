package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func patchArgs(t *testing.T, patch string) string {
	t.Helper()
	data, err := json.Marshal(map[string]string{"patch": patch})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestApplyPatchBlocks(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "src/lib.txt", "alpha\nbeta\ngamma\n")
	doomed := writeFile(t, dir, "old.txt", "bye\n")

	patch := strings.Join([]string{
		"*** Begin Patch",
		"*** Add File: notes/new.txt",
		"+hello",
		"world",
		"*** End Patch",
		"*** Begin Patch",
		"*** Update File: src/lib.txt",
		"@@ -1,3 +1,3 @@",
		" alpha",
		"-beta",
		"+BETA",
		" gamma",
		"*** End Patch",
		"*** Begin Patch",
		"*** Delete File: old.txt",
		"*** End Patch",
		"*** Begin Patch",
		"*** Delete File: missing.txt",
		"*** End Patch",
	}, "\n")

	res, err := run(t, &ApplyPatchTool{}, dir, patchArgs(t, patch))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := "Added notes/new.txt\nUpdated src/lib.txt\nDeleted old.txt\nSkipped deleting missing.txt (file missing)"
	if res.Content != want {
		t.Errorf("summary =\n%s\nwant\n%s", res.Content, want)
	}
	if got := readFile(t, filepath.Join(dir, "notes/new.txt")); got != "hello\nworld\n" {
		t.Errorf("new.txt = %q", got)
	}
	if got := readFile(t, target); got != "alpha\nBETA\ngamma\n" {
		t.Errorf("lib.txt = %q", got)
	}
	if _, err := os.Stat(doomed); !os.IsNotExist(err) {
		t.Errorf("old.txt still exists")
	}
}

func TestApplyPatchRoundTrip(t *testing.T) {
	oldContent := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n\nfunc a() {}\nfunc b() {}\nfunc c() {}\nfunc d() {}\nfunc e() {}\n"
	newContent := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hello\")\n\tfmt.Println(\"world\")\n}\n\nfunc a() {}\nfunc b() {}\nfunc c() {}\nfunc d() {}\nfunc e() {}\nfunc f() {}\n"

	dir := t.TempDir()
	p := writeFile(t, dir, "main.go", oldContent)

	patch := BuildUpdatePatch("main.go", oldContent, newContent)
	if !strings.HasPrefix(patch, "*** Begin Patch\n*** Update File: main.go\n@@ -") {
		t.Fatalf("unexpected patch header:\n%s", patch)
	}
	if strings.Count(patch, "@@ -") != 2 {
		t.Errorf("want two hunks:\n%s", patch)
	}

	if _, err := run(t, &ApplyPatchTool{}, dir, patchArgs(t, patch)); err != nil {
		t.Fatalf("apply: %v\n%s", err, patch)
	}
	if got := readFile(t, p); got != newContent {
		t.Errorf("content =\n%s\nwant\n%s", got, newContent)
	}
}

func TestApplyPatchMismatchLeavesFilesUntouched(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.txt", "one\n")
	second := writeFile(t, dir, "second.txt", "a\nb\nc\n")

	patch := strings.Join([]string{
		"*** Begin Patch",
		"*** Update File: first.txt",
		"@@ -1,1 +1,1 @@",
		"-one",
		"+ONE",
		"*** End Patch",
		"*** Begin Patch",
		"*** Update File: second.txt",
		"@@ -2,1 +2,1 @@",
		"-x",
		"+y",
		"*** End Patch",
	}, "\n")

	_, err := run(t, &ApplyPatchTool{}, dir, patchArgs(t, patch))
	want := "Failed to apply patch to second.txt: Removal mismatch while applying patch: expected 'x', found 'b'"
	if err == nil || err.Error() != want {
		t.Fatalf("err = %v, want %q", err, want)
	}
	if got := readFile(t, first); got != "one\n" {
		t.Errorf("first.txt modified: %q", got)
	}
	if got := readFile(t, second); got != "a\nb\nc\n" {
		t.Errorf("second.txt modified: %q", got)
	}
}

func TestApplyPatchErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "short.txt", "only\n")

	tests := []struct {
		name  string
		patch string
		want  string
	}{
		{name: "no blocks", patch: "just text", want: "No patch blocks were provided"},
		{name: "bad header", patch: "*** Begin Patch\n*** Rename File: a\n*** End Patch", want: "Unrecognized patch header: *** Rename File: a"},
		{name: "missing header", patch: "*** Begin Patch", want: "Patch block missing header line"},
		{name: "absolute", patch: "*** Begin Patch\n*** Add File: /etc/passwd\n+x\n*** End Patch", want: "unsafe path '/etc/passwd': absolute paths are not allowed"},
		{name: "parent", patch: "*** Begin Patch\n*** Add File: ../x\n+x\n*** End Patch", want: "unsafe path '../x': parent directory components are not allowed"},
		{name: "update missing", patch: "*** Begin Patch\n*** Update File: gone.txt\n@@ -1,1 +1,1 @@\n-a\n+b\n*** End Patch", want: "Cannot update 'gone.txt': file does not exist"},
		{
			name:  "context mismatch",
			patch: "*** Begin Patch\n*** Update File: short.txt\n@@ -1,1 +1,1 @@\n other\n*** End Patch",
			want:  "Failed to apply patch to short.txt: Context mismatch while applying patch: expected 'other', found 'only'",
		},
		{
			name:  "past end",
			patch: "*** Begin Patch\n*** Update File: short.txt\n@@ -5,1 +5,1 @@\n-x\n*** End Patch",
			want:  "Failed to apply patch to short.txt: Patch removal exceeds file length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, &ApplyPatchTool{}, dir, patchArgs(t, tt.patch))
			if err == nil || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestApplyPatchSequentialBlocksSeeStagedContent(t *testing.T) {
	dir := t.TempDir()

	patch := strings.Join([]string{
		"*** Begin Patch",
		"*** Add File: a.txt",
		"+first",
		"*** End Patch",
		"*** Begin Patch",
		"*** Update File: a.txt",
		"@@ -1,1 +1,2 @@",
		" first",
		"+second",
		"*** End Patch",
	}, "\n")

	if _, err := run(t, &ApplyPatchTool{}, dir, patchArgs(t, patch)); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "first\nsecond\n" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestParseHunkHeader(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"@@ -12,4 +12,5 @@", 12},
		{"@@ -3 +3 @@", 3},
		{"@@ -x,1 +1 @@", 1},
	}
	for _, tt := range tests {
		got, err := parseHunkHeader(tt.header)
		if err != nil {
			t.Fatalf("%q: %v", tt.header, err)
		}
		if got != tt.want {
			t.Errorf("%q = %d, want %d", tt.header, got, tt.want)
		}
	}
}

func TestBuildFileDiff(t *testing.T) {
	diff := BuildFileDiff("notes.txt", "one\ntwo\nthree\n", "one\n2\nthree\nfour\n")
	for _, want := range []string{"--- notes.txt\n+++ notes.txt\n", "@@", "-two\n", "+2\n", "+four\n"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
	if got := BuildFileDiff("same.txt", "a\n", "a\n"); got != "--- same.txt\n+++ same.txt\n" {
		t.Errorf("diff of identical content = %q", got)
	}
}

func TestCountLineChanges(t *testing.T) {
	tests := []struct {
		old, new       string
		added, removed int
	}{
		{"", "a\nb\n", 2, 0},
		{"a\nb\n", "", 0, 2},
		{"a\nb\nc\n", "a\nB\nc\nd\n", 2, 1},
		{"a\n", "a\n", 0, 0},
	}
	for _, tt := range tests {
		added, removed := CountLineChanges(tt.old, tt.new)
		if added != tt.added || removed != tt.removed {
			t.Errorf("CountLineChanges(%q, %q) = %d, %d; want %d, %d", tt.old, tt.new, added, removed, tt.added, tt.removed)
		}
	}
}
