package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/skalibog/perpsentry/pkg/logger"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Exchange  ExchangeConfig   `yaml:"exchange"`
	Scan      ScanConfig       `yaml:"scan"`
	Pipelines []PipelineConfig `yaml:"pipelines" validate:"required,min=1,dive"`
	Signal    SignalConfig     `yaml:"signal"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	OI5Min    OI5MinConfig     `yaml:"oi5min"`
	Paper     PaperConfig      `yaml:"paper"`
	Notify    NotifyConfig     `yaml:"notify"`
	Storage   StorageConfig    `yaml:"storage"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Log       LogConfig        `yaml:"log"`
}

// ExchangeConfig содержит список площадок в порядке приоритета
type ExchangeConfig struct {
	Venues         []VenueConfig `yaml:"venues" validate:"required,min=1,dive"`
	TimeoutSeconds int           `yaml:"timeout_seconds" validate:"gt=0,lte=15"`
	Retries        int           `yaml:"retries" validate:"gte=0,lte=10"`
	BackoffMillis  int           `yaml:"backoff_ms" validate:"gte=0"`
	Concurrency    int           `yaml:"concurrency" validate:"gt=0,lte=64"`
}

// VenueConfig настройки одной площадки
type VenueConfig struct {
	Name       string `yaml:"name" validate:"required,oneof=binance bybit okx"`
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	MinDelayMs int    `yaml:"min_delay_ms" validate:"gte=0"`
}

// ScanConfig фильтры вселенной символов и дедлайн цикла
type ScanConfig struct {
	SymbolsWatchlist     []string `yaml:"symbols_watchlist"`
	ExcludedSymbols      []string `yaml:"excluded_symbols"`
	MinOIUSD             float64  `yaml:"min_oi_usd" validate:"gte=0"`
	MinVolume24h         float64  `yaml:"min_volume_24h" validate:"gte=0"`
	MaxSymbols           int      `yaml:"max_symbols" validate:"gte=0"`
	CycleDeadlineSeconds int      `yaml:"cycle_deadline_seconds" validate:"gt=0"`
}

// PipelineConfig описывает один периодический сканер
type PipelineConfig struct {
	Name         string `yaml:"name" validate:"required,alphanum"`
	Kind         string `yaml:"kind" validate:"required,oneof=trend early oi5min"`
	Interval     string `yaml:"interval" validate:"required,oneof=1m 5m 15m 30m 1h 4h"`
	EveryMinutes int    `yaml:"every_minutes" validate:"gt=0"`
	CandleLimit  int    `yaml:"candle_limit" validate:"gte=0"`
	ThreadID     string `yaml:"thread_id"`
	Paper        bool   `yaml:"paper"`
}

// SignalConfig пороги классификатора
type SignalConfig struct {
	OIThreshold      float64 `yaml:"oi_threshold" validate:"gt=0"`
	PriceThreshold   float64 `yaml:"price_threshold" validate:"gt=0"`
	PendingOI        float64 `yaml:"pending_oi" validate:"gt=0"`
	PendingPrice     float64 `yaml:"pending_price" validate:"gt=0"`
	EarlyPriceChange float64 `yaml:"early_price_change" validate:"gt=0"`
	EarlyVolRatio    float64 `yaml:"early_vol_ratio" validate:"gt=0"`
	EarlyLookback    int     `yaml:"early_lookback" validate:"gt=0"`
	VolRecent        int     `yaml:"vol_recent" validate:"gt=0"`
	VolPrior         int     `yaml:"vol_prior" validate:"gt=0"`
	SwingLength      int     `yaml:"swing_length" validate:"gt=0"`
	ADXTrend         float64 `yaml:"adx_trend" validate:"gte=0"`
	FundingExtreme   float64 `yaml:"funding_extreme" validate:"gte=0"`
}

// TrackerConfig настройки дедупликации алертов
type TrackerConfig struct {
	EvictHours           float64 `yaml:"evict_hours" validate:"gt=0"`
	SustainedMinutes     float64 `yaml:"sustained_minutes" validate:"gt=0"`
	DecayRatio           float64 `yaml:"decay_ratio" validate:"gt=0,lt=1"`
	CooldownMinutes      float64 `yaml:"cooldown_minutes" validate:"gt=0"`
	CooldownHistoryHours float64 `yaml:"cooldown_history_hours" validate:"gt=0"`
}

// OI5MinConfig пороги пятиминутного сканера OI
type OI5MinConfig struct {
	ChangeThreshold float64 `yaml:"change_threshold" validate:"gt=0"`
	Extreme         float64 `yaml:"extreme" validate:"gtefield=ChangeThreshold"`
	CooldownMin     float64 `yaml:"cooldown_min" validate:"gt=0"`
}

// PaperConfig настройки виртуальной торговли
type PaperConfig struct {
	Capital       float64 `yaml:"capital" validate:"gt=0"`
	PositionPct   float64 `yaml:"position_pct" validate:"gt=0,lte=100"`
	MaxPositions  int     `yaml:"max_positions" validate:"gt=0"`
	SLPct         float64 `yaml:"sl_pct" validate:"gt=0,lt=100"`
	TP1Pct        float64 `yaml:"tp1_pct" validate:"gt=0"`
	TP2Pct        float64 `yaml:"tp2_pct" validate:"gtfield=TP1Pct"`
	TP3Pct        float64 `yaml:"tp3_pct" validate:"omitempty,gtfield=TP2Pct"`
	TimeExitHours float64 `yaml:"time_exit_hours" validate:"gt=0"`
	MinGrade      string  `yaml:"min_grade" validate:"omitempty,oneof=S A B C"`
	RiskMode      string  `yaml:"risk_mode" validate:"oneof=flat orderblock"`
	TrailPct      float64 `yaml:"trail_pct" validate:"gt=0,lt=100"`
	OBEpsilonPct  float64 `yaml:"ob_epsilon_pct" validate:"gte=0"`
}

// NotifyConfig настройки вебхука
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url" validate:"omitempty,url"`
	BookThreadID   string `yaml:"book_thread_id"`
	ChunkSize      int    `yaml:"chunk_size" validate:"gt=100,lte=2000"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gt=0"`
}

// StorageConfig настройки хранения состояния
type StorageConfig struct {
	StateDir string       `yaml:"state_dir" validate:"required"`
	Influx   InfluxConfig `yaml:"influx"`
}

// InfluxConfig необязательная история сигналов и сделок
type InfluxConfig struct {
	URL          string `yaml:"url" validate:"omitempty,url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization" validate:"required_with=URL"`
	Bucket       string `yaml:"bucket" validate:"required_with=URL"`
}

// MetricsConfig адрес для /metrics, пусто - выключено
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// ConfigError ошибка конфигурации, фатальна при старте
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ошибка конфигурации %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load загружает конфигурацию из файла, применяя значения по умолчанию и переменные окружения
func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.Int("pipelines", len(cfg.Pipelines)),
		zap.Int("venues", len(cfg.Exchange.Venues)),
		zap.Strings("watchlist", cfg.Scan.SymbolsWatchlist))
	return cfg, nil
}

// Parse разбирает YAML поверх значений по умолчанию и проверяет результат
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Списки из YAML заменяют умолчания целиком
	cfg.Pipelines = nil
	cfg.Exchange.Venues = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML: %w", err)
	}
	if len(cfg.Pipelines) == 0 {
		cfg.Pipelines = Default().Pipelines
	}
	if len(cfg.Exchange.Venues) == 0 {
		cfg.Exchange.Venues = Default().Exchange.Venues
	}

	applyEnv(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет ограничения на значения
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: нарушено правило %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	seen := make(map[string]bool, len(c.Pipelines))
	paper := 0
	for _, p := range c.Pipelines {
		if seen[p.Name] {
			return fmt.Errorf("повторяющееся имя пайплайна %q", p.Name)
		}
		seen[p.Name] = true
		if p.Paper {
			if p.Kind != "trend" {
				return fmt.Errorf("пайплайн %q: виртуальная торговля доступна только для kind=trend", p.Name)
			}
			paper++
		}
	}
	// Файл книги принадлежит ровно одному пайплайну
	if paper > 1 {
		return fmt.Errorf("виртуальную книгу может вести только один пайплайн, указано %d", paper)
	}
	return nil
}

// PaperPipeline возвращает пайплайн, который ведет виртуальную книгу
func (c *Config) PaperPipeline() (PipelineConfig, bool) {
	for _, p := range c.Pipelines {
		if p.Paper {
			return p, true
		}
	}
	return PipelineConfig{}, false
}

// applyEnv переопределяет секреты из окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("PERPSENTRY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("PERPSENTRY_STATE_DIR"); v != "" {
		cfg.Storage.StateDir = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Storage.Influx.Token = v
	}
	for i := range cfg.Exchange.Venues {
		if cfg.Exchange.Venues[i].Name != "binance" {
			continue
		}
		if v := os.Getenv("BINANCE_API_KEY"); v != "" {
			cfg.Exchange.Venues[i].APIKey = v
		}
		if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
			cfg.Exchange.Venues[i].APISecret = v
		}
	}
}

// normalize приводит символы к верхнему регистру
func (c *Config) normalize() {
	for i, s := range c.Scan.SymbolsWatchlist {
		c.Scan.SymbolsWatchlist[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i, s := range c.Scan.ExcludedSymbols {
		c.Scan.ExcludedSymbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	c.Paper.MinGrade = strings.ToUpper(c.Paper.MinGrade)
}
