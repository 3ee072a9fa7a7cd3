package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	if err := os.WriteFile(path, []byte("TMS_TEST_HOST=tms.example.com\nTMS_TEST_KEEP=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TMS_TEST_KEEP", "env")
	t.Setenv("TMS_TEST_HOST", "")
	os.Unsetenv("TMS_TEST_HOST")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("TMS_TEST_HOST"); got != "tms.example.com" {
		t.Fatalf("TMS_TEST_HOST=%q", got)
	}
	if got := os.Getenv("TMS_TEST_KEEP"); got != "env" {
		t.Fatalf("existing env overridden: TMS_TEST_KEEP=%q", got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}
