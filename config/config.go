// =============================================================================
// 📦 Heidi Bridge 配置结构
// =============================================================================
// 所有组件的配置集中在一个不可变对象中，启动时加载一次，
// 显式传递给各组件 —— 绝不从进程环境中隐式读取。
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 是 Heidi Bridge 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Display 逻辑显示配置
	Display DisplayConfig `yaml:"display" env:"DISPLAY"`

	// Locator 视觉定位器配置
	Locator LocatorConfig `yaml:"locator" env:"LOCATOR"`

	// Reconcile 偏差仲裁配置
	Reconcile ReconcileConfig `yaml:"reconcile" env:"RECONCILE"`

	// Click 鼠标点击配置
	Click ClickConfig `yaml:"click" env:"CLICK"`

	// Inject 网页注入配置
	Inject InjectConfig `yaml:"inject" env:"INJECT"`

	// Record 记录系统 API 配置
	Record RecordConfig `yaml:"record" env:"RECORD"`

	// Anchors 锚点表文件路径
	Anchors AnchorsConfig `yaml:"anchors" env:"ANCHORS"`

	// Database 运行台账数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Pipeline 流水线步骤定义
	Pipeline PipelineConfig `yaml:"pipeline" env:"-"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址（流水线运行期间暴露 /metrics）
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DisplayConfig 逻辑显示配置
type DisplayConfig struct {
	// 逻辑宽度（0 表示运行时探测）
	Width int `yaml:"width" env:"WIDTH"`
	// 逻辑高度（0 表示运行时探测）
	Height int `yaml:"height" env:"HEIGHT"`
	// 缩放容差：捕获密度与 {1,2,3} 的允许偏差
	ScaleTolerance float64 `yaml:"scale_tolerance" env:"SCALE_TOLERANCE"`
}

// LocatorConfig 视觉定位器配置
type LocatorConfig struct {
	// Provider 名称（当前仅 claude）
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次定位请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数上限
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 最大返回 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// ReconcileConfig 偏差仲裁配置
// 阈值是经验值而非定律，部署前应按目标环境的实际漂移校验。
type ReconcileConfig struct {
	// AI 估计与锚点的信任阈值（像素）
	DeviationThresholdPx float64 `yaml:"deviation_threshold_px" env:"DEVIATION_THRESHOLD_PX"`
	// 超过该阈值则认为 AI 估计不可靠（像素）
	SafeThresholdPx float64 `yaml:"safe_threshold_px" env:"SAFE_THRESHOLD_PX"`
}

// ClickConfig 鼠标点击配置
type ClickConfig struct {
	// 按下后的停留时间（让目标 UI 的 hover/focus 处理器注册到交互）
	Dwell time.Duration `yaml:"dwell" env:"DWELL"`
	// 按住期间的抖动幅度（像素）
	JitterPx int `yaml:"jitter_px" env:"JITTER_PX"`
	// 鼠标移动耗时
	MoveDuration time.Duration `yaml:"move_duration" env:"MOVE_DURATION"`
	// 验证回调为假时是否补一次确认点击
	ConfirmTap bool `yaml:"confirm_tap" env:"CONFIRM_TAP"`
}

// InjectConfig 网页注入配置
type InjectConfig struct {
	// 目标框架: react（每种框架一个 writer 实现）
	Framework string `yaml:"framework" env:"FRAMEWORK"`
	// 写入后确认轮询间隔
	ConfirmPoll time.Duration `yaml:"confirm_poll" env:"CONFIRM_POLL"`
	// 写入后确认总超时
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"CONFIRM_TIMEOUT"`
	// Chrome 调试端口 URL（留空则启动新实例）
	RemoteURL string `yaml:"remote_url" env:"REMOTE_URL"`
	// 目标文档 URL
	DocumentURL string `yaml:"document_url" env:"DOCUMENT_URL"`
}

// RecordConfig 记录系统 API 配置
type RecordConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 共享 API Key（换取 JWT）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 认证邮箱
	AuthEmail string `yaml:"auth_email" env:"AUTH_EMAIL"`
	// 内部用户 ID
	AuthInternalID int `yaml:"auth_internal_id" env:"AUTH_INTERNAL_ID"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 重试次数
	RetryCount int `yaml:"retry_count" env:"RETRY_COUNT"`
	// Token 过期提前量（剩余有效期小于该值时重新认证）
	TokenExpiryMargin time.Duration `yaml:"token_expiry_margin" env:"TOKEN_EXPIRY_MARGIN"`
}

// AnchorsConfig 锚点表配置
type AnchorsConfig struct {
	// 锚点表 YAML 文件路径
	Path string `yaml:"path" env:"PATH"`
}

// DatabaseConfig 运行台账数据库配置
type DatabaseConfig struct {
	// sqlite 数据库文件路径（:memory: 用于测试）
	Path string `yaml:"path" env:"PATH"`
}

// PipelineConfig 流水线步骤定义
type PipelineConfig struct {
	// 步骤列表，严格按顺序执行
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig 单个流水线步骤
type StepConfig struct {
	// 步骤 ID
	ID string `yaml:"id"`
	// 动作: navigate, extract, inject, send
	Action string `yaml:"action"`
	// 目标：navigate 时为锚点名，inject 时为文档标识
	Target string `yaml:"target"`
	// 视觉定位的自然语言描述（navigate 使用）
	Description string `yaml:"description"`
	// 重试预算
	RetryBudget int `yaml:"retry_budget"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Reconcile.DeviationThresholdPx <= 0 {
		errs = append(errs, "reconcile.deviation_threshold_px must be positive")
	}
	if c.Reconcile.SafeThresholdPx < c.Reconcile.DeviationThresholdPx {
		errs = append(errs, "reconcile.safe_threshold_px must be >= deviation_threshold_px")
	}
	if c.Display.ScaleTolerance < 0 || c.Display.ScaleTolerance >= 0.5 {
		errs = append(errs, "display.scale_tolerance must be in [0, 0.5)")
	}
	if c.Click.Dwell < 0 {
		errs = append(errs, "click.dwell must not be negative")
	}
	if c.Locator.Timeout <= 0 {
		errs = append(errs, "locator.timeout must be positive")
	}
	seen := make(map[string]bool, len(c.Pipeline.Steps))
	for i, s := range c.Pipeline.Steps {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("pipeline.steps[%d]: id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("pipeline.steps[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		switch s.Action {
		case "navigate", "extract", "inject", "send":
		default:
			errs = append(errs, fmt.Sprintf("pipeline.steps[%d]: unknown action %q", i, s.Action))
		}
		if s.RetryBudget < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.steps[%d]: retry_budget must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
