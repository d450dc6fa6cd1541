package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := Load(viper.New(), t.TempDir())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Serial.Port != "auto" || cfg.Serial.BaudRate != 115200 {
			t.Errorf("serial = %+v", cfg.Serial)
		}
		if cfg.Modem.PollInterval != 100*time.Millisecond {
			t.Errorf("poll interval = %v", cfg.Modem.PollInterval)
		}
		if cfg.Worker.ScanInterval != 30*time.Second {
			t.Errorf("scan interval = %v", cfg.Worker.ScanInterval)
		}
		if cfg.Database.Driver != "sqlite" {
			t.Errorf("database driver = %q", cfg.Database.Driver)
		}
	})

	t.Run("file values", func(t *testing.T) {
		dir := writeConfig(t, `
serial:
  port: /dev/ttyUSB2
  exclude_ports: [/dev/ttyS0]
modem:
  apn: internet.example
  auth: 1
  sms_charset: ucs2
  attach_timeout: 2m
auth:
  users:
    - username: ops
      password_hash: "$2a$10$abc"
      role: viewer
`)
		cfg, err := Load(viper.New(), dir)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Serial.Port != "/dev/ttyUSB2" || len(cfg.Serial.ExcludePorts) != 1 {
			t.Errorf("serial = %+v", cfg.Serial)
		}
		if cfg.Modem.AttachTimeout != 2*time.Minute {
			t.Errorf("attach timeout = %v", cfg.Modem.AttachTimeout)
		}
		if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Role != "viewer" {
			t.Errorf("users = %+v", cfg.Auth.Users)
		}

		apn := cfg.Modem.AccessPoint()
		if apn.Name != "internet.example" || apn.Auth != 1 {
			t.Errorf("AccessPoint() = %+v", apn)
		}
		if got := cfg.Driver().SMSCharset; got != "UCS2" {
			t.Errorf("driver charset = %q", got)
		}
		if got := cfg.Driver().Dialer; got == nil {
			t.Error("driver has no dialer")
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("UG96_MODEM_APN", "env.apn")
		cfg, err := Load(viper.New(), t.TempDir())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Modem.APN != "env.apn" {
			t.Errorf("apn = %q, want env.apn", cfg.Modem.APN)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		cases := map[string]string{
			"charset": "modem:\n  sms_charset: latin1\n",
			"auth":    "modem:\n  auth: 7\n",
			"role":    "auth:\n  users:\n    - username: x\n      role: root\n",
		}
		for name, body := range cases {
			if _, err := Load(viper.New(), writeConfig(t, body)); err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})
}
