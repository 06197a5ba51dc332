// =============================================================================
// 📦 Heidi Bridge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Display:   DefaultDisplayConfig(),
		Locator:   DefaultLocatorConfig(),
		Reconcile: DefaultReconcileConfig(),
		Click:     DefaultClickConfig(),
		Inject:    DefaultInjectConfig(),
		Record:    DefaultRecordConfig(),
		Anchors:   AnchorsConfig{Path: "anchors.yaml"},
		Database:  DatabaseConfig{Path: "heidi_runs.db"},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Addr:      ":9091",
		Namespace: "heidi",
	}
}

// DefaultDisplayConfig 返回默认显示配置
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Width:          0, // 运行时探测
		Height:         0,
		ScaleTolerance: 0.05,
	}
}

// DefaultLocatorConfig 返回默认定位器配置
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		Provider:  "claude",
		Model:     "claude-sonnet-4-20250514",
		Timeout:   45 * time.Second,
		RateLimit: 0.5,
		MaxTokens: 1024,
	}
}

// DefaultReconcileConfig 返回默认仲裁配置
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		DeviationThresholdPx: 50,
		SafeThresholdPx:      150,
	}
}

// DefaultClickConfig 返回默认点击配置
func DefaultClickConfig() ClickConfig {
	return ClickConfig{
		Dwell:        120 * time.Millisecond,
		JitterPx:     1,
		MoveDuration: 300 * time.Millisecond,
		ConfirmTap:   true,
	}
}

// DefaultInjectConfig 返回默认注入配置
func DefaultInjectConfig() InjectConfig {
	return InjectConfig{
		Framework:      "react",
		ConfirmPoll:    100 * time.Millisecond,
		ConfirmTimeout: 3 * time.Second,
	}
}

// DefaultRecordConfig 返回默认记录 API 配置
func DefaultRecordConfig() RecordConfig {
	return RecordConfig{
		BaseURL:           "https://registrar.api.heidihealth.com/api/v2/ml-scribe/open-api",
		Timeout:           30 * time.Second,
		RetryCount:        2,
		TokenExpiryMargin: 60 * time.Second,
	}
}
