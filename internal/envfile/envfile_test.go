package envfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPathKeepsExistingValues(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".env")
	content := "# comment\nCANVASBRIDGE_ENVFILE_A=alpha\nexport CANVASBRIDGE_ENVFILE_B=\"beta\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	os.Setenv("CANVASBRIDGE_ENVFILE_B", "preset")
	defer os.Unsetenv("CANVASBRIDGE_ENVFILE_A")
	defer os.Unsetenv("CANVASBRIDGE_ENVFILE_B")

	res := LoadPath(path)
	if res.Err != nil {
		t.Fatalf("load: %v", res.Err)
	}
	if !res.Loaded || res.Keys != 1 {
		t.Fatalf("expected one key loaded, got loaded=%v keys=%d", res.Loaded, res.Keys)
	}
	if got := os.Getenv("CANVASBRIDGE_ENVFILE_A"); got != "alpha" {
		t.Fatalf("expected alpha, got %q", got)
	}
	if got := os.Getenv("CANVASBRIDGE_ENVFILE_B"); got != "preset" {
		t.Fatalf("expected preset value to win, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	res := LoadPath(filepath.Join(t.TempDir(), "missing.env"))
	if res.Err == nil {
		t.Fatalf("expected error for missing file")
	}
	if res.Loaded {
		t.Fatalf("expected not loaded")
	}
}

func TestFindUpwards(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("X=1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := findUpwards(nested, ".env"); got != filepath.Join(root, ".env") {
		t.Fatalf("expected root .env, got %q", got)
	}
}
