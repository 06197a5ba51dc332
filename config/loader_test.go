// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 验证仲裁默认阈值
	assert.Equal(t, 50.0, cfg.Reconcile.DeviationThresholdPx)
	assert.Equal(t, 150.0, cfg.Reconcile.SafeThresholdPx)

	// 验证显示默认值
	assert.Equal(t, 0.05, cfg.Display.ScaleTolerance)

	// 验证点击默认值
	assert.Equal(t, 120*time.Millisecond, cfg.Click.Dwell)
	assert.Equal(t, 1, cfg.Click.JitterPx)
	assert.True(t, cfg.Click.ConfirmTap)

	// 验证注入默认值
	assert.Equal(t, "react", cfg.Inject.Framework)
	assert.Equal(t, 3*time.Second, cfg.Inject.ConfirmTimeout)

	// 验证定位器默认值
	assert.Equal(t, "claude", cfg.Locator.Provider)
	assert.Equal(t, 45*time.Second, cfg.Locator.Timeout)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 50.0, cfg.Reconcile.DeviationThresholdPx)
	assert.Equal(t, "anchors.yaml", cfg.Anchors.Path)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "heidi.yaml")

	yamlContent := `
locator:
  model: "claude-opus-4"
  timeout: 90s
  rate_limit: 1.0

reconcile:
  deviation_threshold_px: 40
  safe_threshold_px: 120

click:
  dwell: 200ms
  jitter_px: 2

record:
  base_url: "https://api.example.com"
  retry_count: 5

pipeline:
  steps:
    - id: open_patient
      action: navigate
      target: patient_row
      description: "first patient row in the list"
      retry_budget: 2
    - id: read_details
      action: extract
      retry_budget: 1
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, "claude-opus-4", cfg.Locator.Model)
	assert.Equal(t, 90*time.Second, cfg.Locator.Timeout)
	assert.Equal(t, 1.0, cfg.Locator.RateLimit)

	assert.Equal(t, 40.0, cfg.Reconcile.DeviationThresholdPx)
	assert.Equal(t, 120.0, cfg.Reconcile.SafeThresholdPx)

	assert.Equal(t, 200*time.Millisecond, cfg.Click.Dwell)
	assert.Equal(t, 2, cfg.Click.JitterPx)

	assert.Equal(t, "https://api.example.com", cfg.Record.BaseURL)
	assert.Equal(t, 5, cfg.Record.RetryCount)

	require.Len(t, cfg.Pipeline.Steps, 2)
	assert.Equal(t, "open_patient", cfg.Pipeline.Steps[0].ID)
	assert.Equal(t, "navigate", cfg.Pipeline.Steps[0].Action)
	assert.Equal(t, 2, cfg.Pipeline.Steps[0].RetryBudget)

	// 未覆盖的保持默认
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("HEIDI_LOCATOR_MODEL", "claude-haiku")
	t.Setenv("HEIDI_RECONCILE_DEVIATION_THRESHOLD_PX", "60")
	t.Setenv("HEIDI_CLICK_DWELL", "250ms")
	t.Setenv("HEIDI_METRICS_ENABLED", "false")
	t.Setenv("HEIDI_LOG_OUTPUT_PATHS", "stdout, /var/log/heidi.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku", cfg.Locator.Model)
	assert.Equal(t, 60.0, cfg.Reconcile.DeviationThresholdPx)
	assert.Equal(t, 250*time.Millisecond, cfg.Click.Dwell)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/heidi.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "heidi.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("locator:\n  model: from-yaml\n"), 0644))

	t.Setenv("HEIDI_LOCATOR_MODEL", "from-env")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Locator.Model)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Locator.Provider)
}

func TestLoader_ValidatorFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "heidi.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("reconcile:\n  safe_threshold_px: 10\n"), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safe_threshold_px")
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Steps = []StepConfig{
		{ID: "a", Action: "navigate", RetryBudget: 1},
		{ID: "b", Action: "inject"},
		{ID: "c", Action: "send", RetryBudget: 2},
	}
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "thresholds inverted",
			mutate:  func(c *Config) { c.Reconcile.SafeThresholdPx = 10 },
			wantSub: "safe_threshold_px",
		},
		{
			name:    "negative dwell",
			mutate:  func(c *Config) { c.Click.Dwell = -time.Second },
			wantSub: "dwell",
		},
		{
			name:    "bad scale tolerance",
			mutate:  func(c *Config) { c.Display.ScaleTolerance = 0.7 },
			wantSub: "scale_tolerance",
		},
		{
			name: "duplicate step id",
			mutate: func(c *Config) {
				c.Pipeline.Steps = []StepConfig{
					{ID: "x", Action: "navigate"},
					{ID: "x", Action: "inject"},
				}
			},
			wantSub: "duplicate id",
		},
		{
			name: "unknown action",
			mutate: func(c *Config) {
				c.Pipeline.Steps = []StepConfig{{ID: "x", Action: "teleport"}}
			},
			wantSub: "unknown action",
		},
		{
			name: "negative retry budget",
			mutate: func(c *Config) {
				c.Pipeline.Steps = []StepConfig{{ID: "x", Action: "navigate", RetryBudget: -1}}
			},
			wantSub: "retry_budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}
