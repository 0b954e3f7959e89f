package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"model", s.GetModel(), "goldstone-interfaces"},
		{"redis addr", s.GetRedisAddr(), "127.0.0.1:6379"},
		{"redis db", s.GetRedisDB(), 4},
		{"ssh port", s.GetSSHPort(), 22},
		{"log level", s.GetLogLevel(), "info"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s default = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestSettings_RedisDBZero(t *testing.T) {
	s := &Settings{}
	s.SetRedisDB(0)
	if got := s.GetRedisDB(); got != 0 {
		t.Errorf("GetRedisDB() = %d, want explicit 0", got)
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		Model:     "goldstone-mgmt-interfaces",
		RedisAddr: "10.0.0.1:6379",
		SSHHost:   "switch1",
		LogJSON:   true,
	}

	s.Clear()

	if s.Model != "" || s.RedisAddr != "" || s.SSHHost != "" || s.LogJSON {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "settings.json")

	s := &Settings{
		Model:       "goldstone-mgmt-interfaces",
		RedisAddr:   "192.0.2.10:6379",
		Netns:       "mgmt",
		MetricsAddr: ":9469",
		SSHHost:     "192.0.2.10",
		SSHUser:     "admin",
		SSHPass:     "secret",
	}
	s.SetRedisDB(0)

	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file mode = %o, want 600", perm)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.GetModel() != "goldstone-mgmt-interfaces" {
		t.Errorf("Model = %q", loaded.Model)
	}
	if loaded.GetRedisDB() != 0 {
		t.Errorf("RedisDB = %d, want 0", loaded.GetRedisDB())
	}
	if loaded.Netns != "mgmt" || loaded.MetricsAddr != ":9469" || loaded.SSHUser != "admin" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSettings_LoadMissing(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.Model != "" {
		t.Error("missing file should load empty settings")
	}
}

func TestSettings_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on invalid JSON")
	}
}

func TestDefaultSettingsPath(t *testing.T) {
	t.Setenv("IFBRIDGE_SETTINGS", "")
	if got := DefaultSettingsPath(); got != "/etc/ifbridge/settings.json" {
		t.Errorf("DefaultSettingsPath() = %q", got)
	}

	t.Setenv("IFBRIDGE_SETTINGS", "/tmp/x.json")
	if got := DefaultSettingsPath(); got != "/tmp/x.json" {
		t.Errorf("DefaultSettingsPath() = %q", got)
	}
}
