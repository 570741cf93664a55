package xrootd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromFileAppliesOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	contents := `
client_name = "test-client"
connection_retry = 7
multistream_count = 4
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if cfg.ClientName != "test-client" {
		t.Fatalf("ClientName = %q, want test-client", cfg.ClientName)
	}
	if cfg.Stream.ConnectionRetry != 7 {
		t.Fatalf("ConnectionRetry = %d, want 7", cfg.Stream.ConnectionRetry)
	}
	if cfg.MultiStream.MaxStreams != 4 {
		t.Fatalf("MaxStreams = %d, want 4", cfg.MultiStream.MaxStreams)
	}
	// Fields absent from the file keep the built-in default.
	if cfg.Stream.TimeoutResolution != DefaultConfig().Stream.TimeoutResolution {
		t.Fatalf("TimeoutResolution should have kept its default when absent from the file")
	}
}

func TestLoadConfigEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(path, []byte("connection_retry = 7\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("XRD_CONNECTIONRETRY", "9")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Stream.ConnectionRetry != 9 {
		t.Fatalf("ConnectionRetry = %d, want env override 9", cfg.Stream.ConnectionRetry)
	}
}

func TestLoadConfigWithNoFileUsesDefaultsPlusEnv(t *testing.T) {
	t.Setenv("XRD_MULTISTREAMCNT", "2")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MultiStream.MaxStreams != 2 {
		t.Fatalf("MaxStreams = %d, want 2", cfg.MultiStream.MaxStreams)
	}
	if cfg.ClientName != DefaultConfig().ClientName {
		t.Fatalf("ClientName should be the built-in default with no file")
	}
}

func TestValidateRejectsEmptyClientName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientName = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate should reject an empty ClientName")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate cleanly: %v", err)
	}
}
