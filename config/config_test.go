package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elpescado/kfxmpp/config"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kfxmpp.conf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, "# comment\n\nusername=romeo\nserver=montague.lit\npassword=montague\nconnect_to=192.0.2.1:5222\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Username != "romeo" || cfg.Server != "montague.lit" || cfg.Password != "montague" || cfg.ConnectTo != "192.0.2.1:5222" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	path := writeTemp(t, "password=montague\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing username/server")
	}
}

func TestLoadMalformedLine(t *testing.T) {
	path := writeTemp(t, "username romeo\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for line without '='")
	}
}
