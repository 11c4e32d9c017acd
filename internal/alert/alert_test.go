package alert

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/metrics"
)

func TestMetricThresholdEvaluatesGreaterThan(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := reg.Register("cpu.usage", metrics.Gauge)
	m.Update(95)

	cond := NewMetricThreshold(m, GreaterThan, 90)
	assert.True(t, cond.Evaluate(), "expected 95 > 90 to evaluate true")
	assert.Equal(t, "cpu.usage > 90", cond.Description())
}

func TestEqualToUsesFloatTolerance(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := reg.Register("x", metrics.Gauge)
	m.Update(1.0000001)

	cond := NewMetricThreshold(m, EqualTo, 1.0)
	assert.True(t, cond.Evaluate(), "expected value within 1e-6 tolerance to compare equal")
}

func TestCheckAlertsFiresCallbackOnce(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := reg.Register("cpu.usage", metrics.Gauge)
	m.Update(95)

	engine := NewEngine(time.Hour, time.Minute)
	require.NoError(t, engine.AddMetricThresholdAlert(reg, "cpu_high", "cpu.usage", GreaterThan, 90, Critical))

	var mu sync.Mutex
	var fired []Alert
	engine.RegisterCallback(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, a)
	})

	engine.CheckAlerts()
	engine.CheckAlerts() // within cooldown, must not fire again

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1, "cooldown should suppress the second check")
	assert.Equal(t, Critical, fired[0].Severity)
}

func TestCheckAlertsRefiresAfterCooldownElapses(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := reg.Register("cpu.usage", metrics.Gauge)
	m.Update(95)

	engine := NewEngine(10*time.Millisecond, time.Minute)
	engine.AddMetricThresholdAlert(reg, "cpu_high", "cpu.usage", GreaterThan, 90, Warning)

	count := 0
	engine.RegisterCallback(func(Alert) { count++ })

	engine.CheckAlerts()
	time.Sleep(20 * time.Millisecond)
	engine.CheckAlerts()

	assert.Equal(t, 2, count, "want 2 fires after cooldown elapses")
}

func TestCheckAlertsDoesNotFireWhenConditionFalse(t *testing.T) {
	reg := metrics.NewRegistry()
	m, _ := reg.Register("cpu.usage", metrics.Gauge)
	m.Update(10)

	engine := NewEngine(time.Hour, time.Minute)
	engine.AddMetricThresholdAlert(reg, "cpu_high", "cpu.usage", GreaterThan, 90, Warning)

	fired := false
	engine.RegisterCallback(func(Alert) { fired = true })
	engine.CheckAlerts()

	assert.False(t, fired, "expected no alert when condition is false")
}

func TestLoadRuleFileAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - name: cpu_high
    metric: cpu.usage
    comparator: ">"
    threshold: 90
    severity: critical
  - name: mem_high
    metric: memory.usage_percent
    comparator: ">="
    threshold: 85
    severity: warning
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg := metrics.NewRegistry()
	reg.Register("cpu.usage", metrics.Gauge)
	reg.Register("memory.usage_percent", metrics.Gauge)

	rf, err := LoadRuleFile(path)
	require.NoError(t, err)
	require.Len(t, rf.Rules, 2)

	engine := NewEngine(time.Minute, time.Minute)
	require.NoError(t, ApplyRuleFile(engine, reg, rf))
	assert.Len(t, engine.Alerts(), 2)
}

func TestApplyRuleFileErrorsOnUnknownMetric(t *testing.T) {
	rf := &RuleFile{Rules: []RuleSpec{{Name: "x", Metric: "does.not.exist", Comparator: ">", Threshold: 1, Severity: "warning"}}}
	engine := NewEngine(time.Minute, time.Minute)
	reg := metrics.NewRegistry()
	require.Error(t, ApplyRuleFile(engine, reg, rf), "expected error for unresolvable metric")
}
