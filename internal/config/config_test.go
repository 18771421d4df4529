package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfigMissingFileIsNotError(t *testing.T) {
	c, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 0 {
		t.Errorf("Port = %d, want zero value", c.Port)
	}
}

func TestLoadServerConfigParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := "port: 9999\nlog_level: debug\nsyslog: true\nmetrics_addr: \":9100\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 9999 || c.LogLevel != "debug" || !c.Syslog || c.MetricsAddr != ":9100" {
		t.Errorf("LoadServerConfig = %+v, unexpected fields", c)
	}
}

func TestLoadClientConfigEmptyPathIsNoop(t *testing.T) {
	c, err := LoadClientConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != (ClientConfig{}) {
		t.Errorf("LoadClientConfig(\"\") = %+v, want zero value", c)
	}
}
