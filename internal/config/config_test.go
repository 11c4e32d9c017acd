package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.conf")
	content := `# comment line
enable_api: true
api_port: 9999
capture_interface: "eth1"
cpu_threshold_warning: 70
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.EnableAPI {
		t.Errorf("EnableAPI = false, want true")
	}
	if cfg.APIPort != 9999 {
		t.Errorf("APIPort = %d, want 9999", cfg.APIPort)
	}
	if cfg.CaptureInterface != "eth1" {
		t.Errorf("CaptureInterface = %q, want eth1", cfg.CaptureInterface)
	}
	if cfg.CPUThresholdWarning != 70 {
		t.Errorf("CPUThresholdWarning = %d, want 70", cfg.CPUThresholdWarning)
	}
	// Unset keys keep their defaults.
	if cfg.WebPort != 9090 {
		t.Errorf("WebPort = %d, want default 9090", cfg.WebPort)
	}
	if cfg.AlertCooldownSeconds != 60 {
		t.Errorf("AlertCooldownSeconds = %d, want default 60", cfg.AlertCooldownSeconds)
	}
}

func TestLoadParsesSMTPKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.conf")
	content := `enable_email_alerts: true
smtp_host: smtp.example.com
smtp_port: 2525
smtp_username: alerts
smtp_password: secret
smtp_from: alerts@example.com
smtp_to: oncall@example.com
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.EnableEmailAlerts {
		t.Error("EnableEmailAlerts = false, want true")
	}
	if cfg.SMTPHost != "smtp.example.com" || cfg.SMTPPort != 2525 {
		t.Errorf("SMTPHost/Port = %s:%d, want smtp.example.com:2525", cfg.SMTPHost, cfg.SMTPPort)
	}
	if cfg.SMTPFrom != "alerts@example.com" || cfg.SMTPTo != "oncall@example.com" {
		t.Errorf("SMTPFrom/To = %s/%s", cfg.SMTPFrom, cfg.SMTPTo)
	}
}

func TestLoadParsesCaptureSourceKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.conf")
	content := `capture_source: nats
nats_url: nats://broker:4222
nats_subject: probes.lab1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CaptureSource != "nats" {
		t.Errorf("CaptureSource = %q, want nats", cfg.CaptureSource)
	}
	if cfg.NATSURL != "nats://broker:4222" || cfg.NATSSubject != "probes.lab1" {
		t.Errorf("NATSURL/Subject = %s/%s", cfg.NATSURL, cfg.NATSSubject)
	}
	// Unset keys keep their defaults.
	if Default().CaptureSource != "live" {
		t.Errorf("default CaptureSource = %q, want live", Default().CaptureSource)
	}
}

func TestParseValueShapes(t *testing.T) {
	cases := map[string]interface{}{
		"true":     true,
		"yes":      true,
		"off":      false,
		"42":       int64(42),
		"-3":       int64(-3),
		"3.14":     3.14,
		"eth0":     "eth0",
		`"quoted"`: "quoted",
	}
	for input, want := range cases {
		got := parseValue(input)
		if got != want {
			t.Errorf("parseValue(%q) = %#v, want %#v", input, got, want)
		}
	}
}

func TestDumpGroupsByPrefix(t *testing.T) {
	cfg := Default()
	cfg.apply("cpu_threshold_warning", int64(55))
	dump := cfg.Dump()
	if dump == "" {
		t.Fatal("Dump returned empty string")
	}
}
