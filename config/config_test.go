package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(viper.New(), "", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.SpecialistID != 8 || cfg.Age != 25 || !cfg.UseGemini {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if !errors.Is(cfg.Validate(), ErrMissingIdentity) {
		t.Errorf("Validate() = %v, want ErrMissingIdentity", cfg.Validate())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "fono.yaml")
	data := "api_url: https://fono.example/\nclient_id: 12\nclient_name: Ana\nuse_gemini: false\ntimeout: 5s\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FONO_CLIENT_NAME", "Bia")

	cfg, err := Load(viper.New(), path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://fono.example" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.ClientID != 12 {
		t.Errorf("ClientID = %d, want 12", cfg.ClientID)
	}
	if cfg.ClientName != "Bia" {
		t.Errorf("ClientName = %q, want env to win", cfg.ClientName)
	}
	if cfg.UseGemini {
		t.Error("UseGemini = true, want false from file")
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	id := cfg.Identity()
	if id.ClientID != 12 || id.Name != "Bia" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Error("Load succeeded with a missing explicit config file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	env := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(env, []byte("FONO_TOKEN=segredo\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FONO_TOKEN") })

	cfg, err := Load(viper.New(), "", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "segredo" {
		t.Errorf("Token = %q, want segredo", cfg.Token)
	}

	if _, err := Load(viper.New(), "", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestFlagsOverride(t *testing.T) {
	isolate(t)
	v := viper.New()
	cmd := &cobra.Command{Use: "fono"}
	if err := BindFlags(v, cmd); err != nil {
		t.Fatal(err)
	}
	if err := cmd.PersistentFlags().Parse([]string{"--client-id", "99", "--age", "7"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FONO_CLIENT_ID", "5")

	cfg, err := Load(v, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientID != 99 || cfg.Age != 7 {
		t.Errorf("ClientID = %d, Age = %d, want flags to win", cfg.ClientID, cfg.Age)
	}
	if cfg.SpecialistID != 8 {
		t.Errorf("SpecialistID = %d, want default 8 when flag unset", cfg.SpecialistID)
	}
}

func TestSaveMergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "fono.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("logpath: /tmp/fono\nclient_id: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{APIURL: "https://fono.example", ClientID: 3, SpecialistID: 8, Age: 30}
	if err := Save(path, FileFrom(cfg)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["logpath"] != "/tmp/fono" {
		t.Errorf("logpath = %v, want kept", got["logpath"])
	}
	if got["client_id"] != 3 {
		t.Errorf("client_id = %v, want 3", got["client_id"])
	}
	if got["use_gemini"] != false {
		t.Errorf("use_gemini = %v, want false written explicitly", got["use_gemini"])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(viper.New(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ClientID != 3 || loaded.Age != 30 || loaded.LogPath != "/tmp/fono" {
		t.Errorf("reloaded = %+v", loaded)
	}
}

func TestValidators(t *testing.T) {
	if validateURL("ftp://x") == nil || validateURL("http://") == nil {
		t.Error("validateURL accepted a bad url")
	}
	if err := validateURL("https://fono.example"); err != nil {
		t.Errorf("validateURL: %v", err)
	}
	if validatePositive("0") == nil || validatePositive("abc") == nil {
		t.Error("validatePositive accepted a bad value")
	}
	if err := validatePositive(" 8 "); err != nil {
		t.Errorf("validatePositive: %v", err)
	}
}
