package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"workerwatch/internal/errors"
)

func TestParse_Defaults(t *testing.T) {
	f, err := Parse([]byte("name: my-worker\nmain: src/index.ts\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if f.DeployCommand != DefaultDeployCommand {
		t.Errorf("Expected default deploy command %q, got %q", DefaultDeployCommand, f.DeployCommand)
	}
	if f.Watch.Debounce.Std() != DefaultDebounce {
		t.Errorf("Expected default debounce %v, got %v", DefaultDebounce, f.Watch.Debounce.Std())
	}
	if f.Notifications.NotifyOn != "failures" {
		t.Errorf("Expected default notify_on failures, got %q", f.Notifications.NotifyOn)
	}
	if len(f.Extra) != 0 {
		t.Errorf("Expected no extra keys, got %v", f.Extra)
	}
}

func TestParse_FullSchema(t *testing.T) {
	data := []byte(`name: my-worker
main: src/index.ts
env: staging
account_id: abc123
compatibility_date: "2024-09-01"
compatibility_flags: [nodejs_compat, streams]
minify: true
no_bundle: true
assets: ./public
site: ./static
deploy_command: npx wrangler
watch:
  debounce: 750ms
  ignore: ["*.log", "tmp/**"]
notifications:
  discord_webhook: https://discord.com/api/webhooks/1/x
  notify_on: all
`)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if f.Env != "staging" || f.AccountID != "abc123" {
		t.Errorf("Identity fields not parsed: env=%q account=%q", f.Env, f.AccountID)
	}
	if diff := cmp.Diff([]string{"nodejs_compat", "streams"}, f.CompatibilityFlags); diff != "" {
		t.Errorf("CompatibilityFlags mismatch (-want +got):\n%s", diff)
	}
	if f.Watch.Debounce.Std() != 750*time.Millisecond {
		t.Errorf("Expected debounce 750ms, got %v", f.Watch.Debounce.Std())
	}
	if diff := cmp.Diff([]string{"*.log", "tmp/**"}, f.Watch.Ignore); diff != "" {
		t.Errorf("Ignore mismatch (-want +got):\n%s", diff)
	}
	if f.Notifications.DiscordWebhook == "" || f.Notifications.NotifyOn != "all" {
		t.Errorf("Notifications not parsed: %+v", f.Notifications)
	}
}

func TestParse_UnknownKeysLandInExtra(t *testing.T) {
	data := []byte(`name: my-worker
main: src/index.ts
vars:
  API_HOST: example.com
kv_namespaces:
  - binding: CACHE
`)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if len(f.Extra) != 2 {
		t.Fatalf("Expected 2 extra keys, got %d: %v", len(f.Extra), f.Extra)
	}
	if _, ok := f.Extra["vars"]; !ok {
		t.Error("Expected vars in Extra")
	}
	if _, ok := f.Extra["kv_namespaces"]; !ok {
		t.Error("Expected kv_namespaces in Extra")
	}
	if f.Name != "my-worker" {
		t.Errorf("Known keys must still decode, got name %q", f.Name)
	}
}

func TestParse_InvalidDebounce(t *testing.T) {
	_, err := Parse([]byte("name: w\nmain: m\nwatch:\n  debounce: soon\n"))
	if err == nil {
		t.Fatal("Expected error for invalid debounce duration")
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	_, err := Load("")
	if !errors.Is(err, errors.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_ExplicitPathErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config path")
	}
	if errors.Is(err, errors.ErrConfigNotFound) {
		t.Error("Explicit path misses should surface the real error, not ErrConfigNotFound")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.ts")
	if err := os.WriteFile(entry, []byte("export default {}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(_ *File) {},
			wantErr: nil,
		},
		{
			name:    "missing name",
			mutate:  func(f *File) { f.Name = "" },
			wantErr: errors.ErrMissingRequired,
		},
		{
			name:    "missing main",
			mutate:  func(f *File) { f.Main = "" },
			wantErr: errors.ErrMissingRequired,
		},
		{
			name:    "entry does not exist",
			mutate:  func(f *File) { f.Main = filepath.Join(dir, "gone.ts") },
			wantErr: errors.ErrEntryNotFound,
		},
		{
			name:    "assets dir does not exist",
			mutate:  func(f *File) { f.Assets = filepath.Join(dir, "public") },
			wantErr: errors.ErrInvalidConfig,
		},
		{
			name:    "bad notify_on",
			mutate:  func(f *File) { f.Notifications.NotifyOn = "sometimes" },
			wantErr: errors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{Name: "my-worker", Main: entry}
			f.applyDefaults()
			tt.mutate(f)

			err := f.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	f := &File{Path: filepath.Join("proj", DefaultFileName)}

	if got, want := f.Resolve("src/index.ts"), filepath.Join("proj", "src/index.ts"); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
	abs := filepath.Join(string(filepath.Separator), "opt", "index.ts")
	if got := f.Resolve(abs); got != abs {
		t.Errorf("Resolve() changed absolute path: %q", got)
	}
	if got := f.Resolve(""); got != "" {
		t.Errorf("Resolve(\"\") = %q, want empty", got)
	}

	f = &File{}
	if got := f.Root(); got != "." {
		t.Errorf("Root() without a path = %q, want .", got)
	}
	if got := f.Resolve("index.ts"); got != "index.ts" {
		t.Errorf("Resolve() without a path = %q, want index.ts", got)
	}
}

func TestWriteLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	f := &File{
		Name:              "my-worker",
		Main:              "src/index.ts",
		CompatibilityDate: "2024-09-01",
		Watch:             Watch{Debounce: Duration(time.Second), Ignore: []string{"*.log"}},
	}
	if err := Write(path, f); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Name != f.Name || loaded.Main != f.Main {
		t.Errorf("Roundtrip lost identity fields: %+v", loaded)
	}
	if loaded.Watch.Debounce.Std() != time.Second {
		t.Errorf("Roundtrip lost debounce, got %v", loaded.Watch.Debounce.Std())
	}
	if loaded.Path != path {
		t.Errorf("Expected Path %q, got %q", path, loaded.Path)
	}
}

// chdir switches the working directory for a test and returns the restore func
func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	return func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("Chdir back failed: %v", err)
		}
	}
}
