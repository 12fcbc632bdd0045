package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckRelative(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"src/main.go", false},
		{"a/b/../c.txt", true},
		{"../secret", true},
		{"/etc/passwd", true},
		{"dir..name/file", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := CheckRelative(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRelative(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestPathPolicyResolve(t *testing.T) {
	work := t.TempDir()
	policy := NewPathPolicy(work, []string{"**/.env", ".git/**", "[invalid"})

	got, err := policy.Resolve("src/app.go")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(work, "src", "app.go"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	if _, err := policy.Resolve("config/.env"); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Errorf("expected denied error for .env, got %v", err)
	}
	if _, err := policy.Resolve(".git/HEAD"); err == nil {
		t.Error("expected denied error for .git/HEAD")
	}
	if _, err := policy.Resolve(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestPathPolicyNoDenyList(t *testing.T) {
	policy := NewPathPolicy("/work", nil)
	got, err := policy.Resolve("/tmp/x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Clean("/tmp/x") {
		t.Errorf("Resolve = %q", got)
	}
}
