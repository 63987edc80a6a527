package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points every config lookup at a fresh directory and clears the
// credential environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, env := range EnvFallbacks {
		t.Setenv(env, "")
	}
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, AppName, "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppSettings.UseStreaming {
		t.Error("streaming enabled by default")
	}
	if cfg.AppSettings.StreamMinChars != 5 || cfg.AppSettings.StreamMaxInterval != 100*time.Millisecond {
		t.Errorf("stream settings = %+v", cfg.AppSettings)
	}
	if cfg.History.Backend != "json" {
		t.Errorf("backend = %q", cfg.History.Backend)
	}
	if cfg.ProbeCacheTTL != 5*time.Minute {
		t.Errorf("probe_cache_ttl = %s", cfg.ProbeCacheTTL)
	}
	if got := cfg.Credentials()["openai"]; got != "" {
		t.Errorf("openai credential = %q", got)
	}
}

func TestLoadFileAndEnvFallback(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
api_keys:
  openai: sk-file
  anthropic: ${MY_ANTHROPIC}
app_settings:
  use_streaming: true
  stream_min_chars: 12
  stream_max_interval: 250ms
history:
  backend: sqlite
`)
	t.Setenv("MY_ANTHROPIC", "sk-ant-env")
	t.Setenv("GEMINI_API_KEY", "gm-env")
	t.Setenv("OPENAI_API_KEY", "ignored-because-file-wins")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	creds := cfg.Credentials()
	if creds["openai"] != "sk-file" {
		t.Errorf("openai = %q", creds["openai"])
	}
	if creds["anthropic"] != "sk-ant-env" {
		t.Errorf("anthropic = %q", creds["anthropic"])
	}
	if creds["gemini"] != "gm-env" {
		t.Errorf("gemini = %q", creds["gemini"])
	}
	if !cfg.AppSettings.UseStreaming || cfg.AppSettings.StreamMinChars != 12 || cfg.AppSettings.StreamMaxInterval != 250*time.Millisecond {
		t.Errorf("app settings = %+v", cfg.AppSettings)
	}
	if cfg.History.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.History.Backend)
	}
}

func TestLoadUnresolvedKeepsReferences(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
api_keys:
  anthropic: ${MY_ANTHROPIC}
`)
	t.Setenv("MY_ANTHROPIC", "sk-ant-env")
	t.Setenv("GEMINI_API_KEY", "gm-env")

	cfg, err := LoadUnresolved("")
	if err != nil {
		t.Fatalf("LoadUnresolved: %v", err)
	}
	if got := cfg.APIKeys["anthropic"]; got != "${MY_ANTHROPIC}" {
		t.Errorf("anthropic = %q, want the reference kept", got)
	}
	if _, ok := cfg.APIKeys["gemini"]; ok {
		t.Error("environment fallback leaked into the unresolved config")
	}
	if cfg.History.Backend != "json" {
		t.Errorf("defaults not applied: backend = %q", cfg.History.Backend)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MISTRAL_API_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// t.Setenv registered MISTRAL_API_KEY as empty; unset it so the file can fill it.
	os.Unsetenv("MISTRAL_API_KEY")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Credentials()["mistral"]; got != "from-dotenv" {
		t.Errorf("mistral = %q", got)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "elsewhere.yaml")
	if err := os.WriteFile(path, []byte("api_keys:\n  deepseek: ds-key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Credentials()["deepseek"] != "ds-key" {
		t.Errorf("deepseek = %q", cfg.Credentials()["deepseek"])
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Errorf("missing explicit file: %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "backend", body: "history:\n  backend: postgres\n", want: "history.backend"},
		{name: "min chars", body: "app_settings:\n  stream_min_chars: 0\n", want: "stream_min_chars"},
		{name: "malformed", body: "api_keys: [\n", want: "failed to read config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			writeConfig(t, dir, tc.body)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)

	cfg := &Config{
		APIKeys:       map[string]string{"openai": "sk-saved", "ollama": "11500"},
		AppSettings:   AppSettings{UseStreaming: true, StreamMinChars: 8, StreamMaxInterval: 50 * time.Millisecond},
		History:       HistoryConfig{Backend: "json"},
		ProbeCacheTTL: time.Minute,
	}
	if err := Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, AppName, "config.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
	if !Exists() {
		t.Error("Exists = false after Save")
	}

	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Credentials()["openai"] != "sk-saved" || loaded.Credentials()["ollama"] != "11500" {
		t.Errorf("credentials = %v", loaded.Credentials())
	}
	if loaded.AppSettings != cfg.AppSettings || loaded.ProbeCacheTTL != time.Minute {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestResolveValue(t *testing.T) {
	t.Setenv("PROMPTLY_TEST_KEY", "secret")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  literal ", want: "literal"},
		{in: "${PROMPTLY_TEST_KEY}", want: "secret"},
		{in: "$PROMPTLY_TEST_KEY", want: "secret"},
		{in: "$(echo from-command)", want: "from-command"},
		{in: "$not a var", want: "$not a var"},
	}
	for _, tc := range tests {
		got, err := ResolveValue(tc.in)
		if err != nil {
			t.Errorf("ResolveValue(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := ResolveValue("$(exit 3)"); err == nil {
		t.Error("failing command resolved without error")
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                  "(not set)",
		"short":             "*****",
		"sk-abcdefghijklmn": "********klmn",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
