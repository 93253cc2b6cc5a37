package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gnutrition/internal/refdata"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gnutr.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GNUTR_USER_DIR", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBFile != "gnutr_db.lt3" || cfg.Data.Driver != "fs" || cfg.Data.Root != "data" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.DBPath() != filepath.Join(cfg.UserDir, "gnutr_db.lt3") {
		t.Fatalf("DBPath = %s", cfg.DBPath())
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
user_dir: /srv/gnutr
db_file: store.lt3
data:
  driver: s3
  prefix: sr24
  s3:
    bucket: nutrient-data
    endpoint: http://minio:9000
    path_style: true
legacy:
  dsn: postgres://localhost/gnutr_db
log:
  level: debug
`)
	t.Setenv("GNUTR_LOG_FORMAT", "json")
	t.Setenv("GNUTR_DATA_S3_REGION", "eu-west-1")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath() != "/srv/gnutr/store.lt3" {
		t.Fatalf("DBPath = %s", cfg.DBPath())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	rd := cfg.RefData()
	if rd.Driver != refdata.DriverS3 || rd.S3.Bucket != "nutrient-data" || rd.S3.Region != "eu-west-1" || !rd.S3.PathStyle {
		t.Fatalf("refdata config = %+v", rd)
	}
	if cfg.Data.Prefix != "sr24" || cfg.Legacy.DSN != "postgres://localhost/gnutr_db" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"data:\n  driver: ftp\n": "invalid data.driver",
		"data:\n  driver: s3\n":  "data.s3.bucket",
		"log:\n  format: xml\n":  "invalid log.format",
		"db_file: \"\"\n":        "db_file",
	}
	for body, want := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("Load(%q) error = %v, want %q", body, err, want)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestAbsoluteDBFile(t *testing.T) {
	cfg := Default()
	cfg.DBFile = "/tmp/elsewhere.lt3"
	if cfg.DBPath() != "/tmp/elsewhere.lt3" {
		t.Fatalf("DBPath = %s", cfg.DBPath())
	}
}
