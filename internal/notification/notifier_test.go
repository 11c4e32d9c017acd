package notification

import (
	"testing"

	"netsentry/internal/config"
)

func TestNewEmailNotifierUsesConfiguredSMTPSettings(t *testing.T) {
	cfg := config.Default()
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 2525
	cfg.SMTPFrom = "alerts@example.com"
	cfg.SMTPTo = "oncall@example.com"

	n := NewEmailNotifier(cfg)

	if n.host != "smtp.example.com" || n.port != 2525 {
		t.Fatalf("host/port = %s:%d, want smtp.example.com:2525", n.host, n.port)
	}
	if n.from != "alerts@example.com" || n.to != "oncall@example.com" {
		t.Fatalf("from/to = %s/%s", n.from, n.to)
	}
}
