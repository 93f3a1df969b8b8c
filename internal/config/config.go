package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 中文说明：
// 引擎及其协作方的配置。YAML 载入，宽松类型解码，缺省值集中在
// applyDefaults，校验集中在 validate。

// Config 顶层配置。
type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Store    StoreConfig  `mapstructure:"store"`
	Policies PolicyConfig `mapstructure:"policies"`
	Market   MarketConfig `mapstructure:"market"`
	Engine   EngineConfig `mapstructure:"engine"`
}

// StoreConfig 策略库配置。
type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryMinDelay time.Duration `mapstructure:"retry_min_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
}

// PolicyConfig 文件型策略来源配置（可选，替代数据库来源）。
type PolicyConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// MarketConfig 行情快照数据源配置。
type MarketConfig struct {
	RESTBaseURL    string        `mapstructure:"rest_base_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	QuoteAsset     string        `mapstructure:"quote_asset"`
	CandidateLimit int           `mapstructure:"candidate_limit"`
	Timeframes     []string      `mapstructure:"timeframes"`
	KlineLimit     int           `mapstructure:"kline_limit"`
}

// EngineConfig 解析引擎配置。
type EngineConfig struct {
	DefaultLeverage float64 `mapstructure:"default_leverage"`
}

// Load 读取并解析配置文件。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = 3
	}
	if c.Market.QuoteAsset == "" {
		c.Market.QuoteAsset = "USDT"
	}
	if c.Market.CandidateLimit <= 0 {
		c.Market.CandidateLimit = 20
	}
	if len(c.Market.Timeframes) == 0 {
		c.Market.Timeframes = []string{"1h", "4h"}
	}
	if c.Market.KlineLimit <= 0 {
		c.Market.KlineLimit = 200
	}
	if c.Engine.DefaultLeverage < 1 {
		c.Engine.DefaultLeverage = 1
	}
}

func validate(c *Config) error {
	if c.Store.Path == "" && c.Policies.FilePath == "" {
		return fmt.Errorf("either store.path or policies.file_path must be set")
	}
	for _, tf := range c.Market.Timeframes {
		if strings.TrimSpace(tf) == "" {
			return fmt.Errorf("market.timeframes contains empty entry")
		}
	}
	return nil
}
