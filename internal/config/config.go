// Package config loads the agent's flat key:value configuration format and
// exposes it as a typed Config struct: one "key: value" pair per line,
// '#' comments, blank lines ignored, and shape-based type inference for
// unquoted values.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Config holds every typed setting the agent reads at startup. Field
// names mirror the config keys.
type Config struct {
	EnableAPI bool
	APIPort   uint16
	EnableWeb bool
	WebPort   uint16

	EnablePacketCapture bool
	CaptureInterface    string
	CaptureSource       string // "live" (default) or "nats"
	NATSURL             string
	NATSSubject         string

	LogLevel string
	LogFile  string

	MetricRetentionSeconds uint32
	AlertCooldownSeconds   uint32

	CPUThresholdWarning  uint32
	CPUThresholdCritical uint32

	MemoryThresholdWarning  uint32
	MemoryThresholdCritical uint32

	EnableEmailAlerts bool
	SMTPHost          string
	SMTPPort          uint16
	SMTPUsername      string
	SMTPPassword      string
	SMTPFrom          string
	SMTPTo            string

	// raw retains every key seen while parsing, typed values included, so
	// Dump can round-trip keys the struct doesn't have a field for.
	raw map[string]interface{}
}

// Default returns a Config populated with the agent's built-in defaults.
func Default() *Config {
	return &Config{
		EnableAPI:               false,
		APIPort:                 8080,
		EnableWeb:               false,
		WebPort:                 9090,
		EnablePacketCapture:     false,
		CaptureInterface:        "eth0",
		CaptureSource:           "live",
		NATSURL:                 "nats://localhost:4222",
		NATSSubject:             "netsentry.packets",
		LogLevel:                "info",
		LogFile:                 "netsentry.log",
		MetricRetentionSeconds:  3600,
		AlertCooldownSeconds:    60,
		CPUThresholdWarning:     80,
		CPUThresholdCritical:    90,
		MemoryThresholdWarning:  75,
		MemoryThresholdCritical: 85,
		EnableEmailAlerts:       false,
		SMTPPort:                587,
		raw:                     map[string]interface{}{},
	}
}

var (
	intRe   = regexp.MustCompile(`^-?\d+$`)
	floatRe = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// Load reads filePath and overlays its key:value pairs onto Default().
func Load(filePath string) (*Config, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}

		cfg.apply(key, parseValue(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed to scan file: %w", err)
	}
	return cfg, nil
}

// parseValue infers a type for an unquoted scalar: boolean synonyms
// first, then integer shape, then decimal shape, and otherwise a
// (possibly quoted) string.
func parseValue(value string) interface{} {
	switch value {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if intRe.MatchString(value) {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	if floatRe.MatchString(value) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

func (c *Config) apply(key string, value interface{}) {
	c.raw[key] = value

	switch key {
	case "enable_api":
		c.EnableAPI = toBool(value)
	case "api_port":
		c.APIPort = uint16(toInt(value))
	case "enable_web":
		c.EnableWeb = toBool(value)
	case "web_port":
		c.WebPort = uint16(toInt(value))
	case "enable_packet_capture":
		c.EnablePacketCapture = toBool(value)
	case "capture_interface":
		c.CaptureInterface = toString(value)
	case "capture_source":
		c.CaptureSource = toString(value)
	case "nats_url":
		c.NATSURL = toString(value)
	case "nats_subject":
		c.NATSSubject = toString(value)
	case "log_level":
		c.LogLevel = toString(value)
	case "log_file":
		c.LogFile = toString(value)
	case "metric_retention_seconds":
		c.MetricRetentionSeconds = uint32(toInt(value))
	case "alert_cooldown_seconds":
		c.AlertCooldownSeconds = uint32(toInt(value))
	case "cpu_threshold_warning":
		c.CPUThresholdWarning = uint32(toInt(value))
	case "cpu_threshold_critical":
		c.CPUThresholdCritical = uint32(toInt(value))
	case "memory_threshold_warning":
		c.MemoryThresholdWarning = uint32(toInt(value))
	case "memory_threshold_critical":
		c.MemoryThresholdCritical = uint32(toInt(value))
	case "enable_email_alerts":
		c.EnableEmailAlerts = toBool(value)
	case "smtp_host":
		c.SMTPHost = toString(value)
	case "smtp_port":
		c.SMTPPort = uint16(toInt(value))
	case "smtp_username":
		c.SMTPUsername = toString(value)
	case "smtp_password":
		c.SMTPPassword = toString(value)
	case "smtp_from":
		c.SMTPFrom = toString(value)
	case "smtp_to":
		c.SMTPTo = toString(value)
	}
}

func toBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Dump renders the keys read by Load back into the flat key:value grammar,
// grouped by the prefix preceding each key's first underscore. Settings
// left at their built-in defaults are not included.
func (c *Config) Dump() string {
	keys := make([]string, 0, len(c.raw))
	for k := range c.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	categories := map[string][]string{}
	for _, k := range keys {
		cat := "general"
		if idx := strings.Index(k, "_"); idx >= 0 {
			cat = k[:idx]
		}
		categories[cat] = append(categories[cat], k)
	}

	catNames := make([]string, 0, len(categories))
	for cat := range categories {
		catNames = append(catNames, cat)
	}
	sort.Strings(catNames)

	var b strings.Builder
	b.WriteString("# netsentry configuration\n\n")
	for _, cat := range catNames {
		fmt.Fprintf(&b, "# %s settings\n", cat)
		for _, k := range categories[cat] {
			fmt.Fprintf(&b, "%s: %s\n", k, formatValue(c.raw[k]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
