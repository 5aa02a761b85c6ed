package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del trader.
type Config struct {
	Trading  TradingConfig  `yaml:"trading"`
	Risk     RiskConfig     `yaml:"risk"`
	Cooldown CooldownConfig `yaml:"cooldown"`
	Queue    QueueConfig    `yaml:"queue"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// TradingConfig controla el comportamiento del ciclo de ejecución.
type TradingConfig struct {
	Mode            string  `yaml:"mode" validate:"oneof=auto manual"` // auto | manual
	IntervalMinutes int     `yaml:"interval_minutes" validate:"gte=1,lte=1440"`
	OrderQuantity   float64 `yaml:"order_quantity" validate:"gt=0,lte=10000"` // contratos por orden
	FeeDefault      float64 `yaml:"fee_default" validate:"gte=0,lte=0.10"`    // fee por contrato si la API no devuelve uno
}

// RiskConfig son los límites duros del Risk Manager.
// Los rangos documentados se validan al cargar — un límite fuera de rango
// es un error de arranque, nunca un valor silenciosamente ajustado.
type RiskConfig struct {
	MaxTradeSize     float64 `yaml:"max_trade_size" validate:"gt=0,lte=1000"`
	DailyLossLimit   float64 `yaml:"daily_loss_limit" validate:"gt=0,lte=10000"`
	MaxDailyExposure float64 `yaml:"max_daily_exposure" validate:"gt=0,lte=100000"`
	MinEVThreshold   float64 `yaml:"min_ev_threshold" validate:"gte=0,lt=1"`
}

// CooldownConfig controla la supresión de trades tras pérdidas.
// Un valor de 0 desactiva el mecanismo correspondiente.
type CooldownConfig struct {
	PerLossMinutes       int `yaml:"per_loss_minutes" validate:"gte=0,lte=1440"`
	ConsecutiveLossLimit int `yaml:"consecutive_loss_limit" validate:"gte=0,lte=100"`
}

// QueueConfig controla la cola de aprobación manual.
type QueueConfig struct {
	ExpiryMinutes int `yaml:"expiry_minutes" validate:"gt=0,lte=1440"`
}

// APIConfig contiene los base URLs de los colaboradores externos.
type APIConfig struct {
	MarketBase   string `yaml:"market_base"`
	ForecastBase string `yaml:"forecast_base"`
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
// Valida los rangos documentados después de aplicar defaults — un límite fuera
// de rango falla en arranque, no en el primer trade.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validate: %w", err)
	}

	return &cfg, nil
}

// CycleInterval devuelve el intervalo del ciclo como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Trading.IntervalMinutes) * time.Minute
}

// PendingExpiry devuelve la ventana de expiración de trades pendientes.
func (c *Config) PendingExpiry() time.Duration {
	return time.Duration(c.Queue.ExpiryMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "manual" // el modo seguro es el default
	}
	if cfg.Trading.IntervalMinutes <= 0 {
		cfg.Trading.IntervalMinutes = 15
	}
	if cfg.Trading.OrderQuantity <= 0 {
		cfg.Trading.OrderQuantity = 10
	}
	if cfg.Trading.FeeDefault <= 0 {
		cfg.Trading.FeeDefault = 0.01
	}
	if cfg.Risk.MaxTradeSize <= 0 {
		cfg.Risk.MaxTradeSize = 25
	}
	if cfg.Risk.DailyLossLimit <= 0 {
		cfg.Risk.DailyLossLimit = 10
	}
	if cfg.Risk.MaxDailyExposure <= 0 {
		cfg.Risk.MaxDailyExposure = 100
	}
	if cfg.Queue.ExpiryMinutes <= 0 {
		cfg.Queue.ExpiryMinutes = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "skytrader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
