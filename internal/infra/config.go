package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/nexusflow/internal/audit"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
)

// Config — корневая структура конфигурации.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP, метрик и gRPC health.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"` // 0: не поднимать
	GRPCPort     int           `mapstructure:"grpc_port"`    // 0: не поднимать
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL. При пустом URL журнал аудита выключен.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub событий и команд).
type RedisConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	EventsChannel   string `mapstructure:"events_channel"`
	CommandsChannel string `mapstructure:"commands_channel"`
}

// AuthConfig содержит пути к RSA ключам, настройки JWT и список операторов.
type AuthConfig struct {
	PublicKeyPath  string            `mapstructure:"public_key_path"`
	PrivateKeyPath string            `mapstructure:"private_key_path"`
	TokenTTL       time.Duration     `mapstructure:"token_ttl"`
	BcryptCost     int               `mapstructure:"bcrypt_cost"`
	Operators      []domain.Operator `mapstructure:"operators"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig — параметры транзакции, темпа и журнала аудита.
type EngineConfig struct {
	Item       string `mapstructure:"item"`
	Quantity   int    `mapstructure:"quantity"`
	Deadline   string `mapstructure:"deadline"`
	Capability string `mapstructure:"capability"`
	Currency   string `mapstructure:"currency"`

	BasePrice       float64            `mapstructure:"base_price"`
	JitterMax       float64            `mapstructure:"jitter_max"`
	PriceModifiers  map[string]float64 `mapstructure:"price_modifiers"`
	LeadTimes       map[string]int     `mapstructure:"lead_times"`
	DefaultLeadTime int                `mapstructure:"default_lead_time"`

	DestinationCode  string  `mapstructure:"destination_code"`
	CargoWeightKg    float64 `mapstructure:"cargo_weight_kg"`
	QuoteFailureRate float64 `mapstructure:"quote_failure_rate"` // Resilience Test

	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	CandidateDelay time.Duration `mapstructure:"candidate_delay"`
	ShipmentDelay  time.Duration `mapstructure:"shipment_delay"`
	Seed           uint64        `mapstructure:"seed"`

	LedgerCapacity     int           `mapstructure:"ledger_capacity"`
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	SeedFile string `mapstructure:"seed_file"` // пусто: встроенный состав агентов
}

// Workflow переводит секцию конфига в параметры движка.
func (c EngineConfig) Workflow() engine.Config {
	return engine.Config{
		Item:             c.Item,
		Quantity:         c.Quantity,
		Deadline:         c.Deadline,
		Capability:       c.Capability,
		Currency:         c.Currency,
		BasePrice:        c.BasePrice,
		JitterMax:        c.JitterMax,
		PriceModifiers:   c.PriceModifiers,
		LeadTimes:        c.LeadTimes,
		DefaultLeadTime:  c.DefaultLeadTime,
		DestinationCode:  c.DestinationCode,
		CargoWeightKg:    c.CargoWeightKg,
		QuoteFailureRate: c.QuoteFailureRate,
		SettleDelay:      c.SettleDelay,
		CandidateDelay:   c.CandidateDelay,
		ShipmentDelay:    c.ShipmentDelay,
		Seed:             c.Seed,
	}
}

func (c EngineConfig) Journal() audit.Options {
	return audit.Options{
		BufferSize:    c.AuditBufferSize,
		BatchSize:     c.AuditBatchSize,
		FlushInterval: c.AuditFlushInterval,
	}
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig объединяет значения из файла, ENV и дефолтов.
// path задает файл явно; если пустой, ищем config.yaml в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// 2. ENV перекрывает конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. PEM-ключ из ENV (Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает значения, с которыми движок работать не может.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if r := c.Engine.QuoteFailureRate; r < 0 || r > 1 {
		return fmt.Errorf("engine.quote_failure_rate must be within [0, 1], got %v", r)
	}
	if c.Engine.JitterMax < 0 {
		return fmt.Errorf("engine.jitter_max must not be negative")
	}
	for i, op := range c.Auth.Operators {
		if op.Username == "" || op.PasswordHash == "" {
			return fmt.Errorf("auth.operators[%d]: username and password_hash are required", i)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := engine.DefaultConfig()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.grpc_port", 50052)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.events_channel", RedisChanEngineEvents)
	v.SetDefault("redis.commands_channel", RedisChanEngineCommands)

	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("engine.item", def.Item)
	v.SetDefault("engine.quantity", def.Quantity)
	v.SetDefault("engine.deadline", def.Deadline)
	v.SetDefault("engine.capability", def.Capability)
	v.SetDefault("engine.currency", def.Currency)
	v.SetDefault("engine.base_price", def.BasePrice)
	v.SetDefault("engine.jitter_max", def.JitterMax)
	v.SetDefault("engine.price_modifiers", def.PriceModifiers)
	v.SetDefault("engine.lead_times", def.LeadTimes)
	v.SetDefault("engine.default_lead_time", def.DefaultLeadTime)
	v.SetDefault("engine.destination_code", def.DestinationCode)
	v.SetDefault("engine.cargo_weight_kg", def.CargoWeightKg)
	v.SetDefault("engine.quote_failure_rate", 0.0)
	v.SetDefault("engine.settle_delay", def.SettleDelay)
	v.SetDefault("engine.candidate_delay", def.CandidateDelay)
	v.SetDefault("engine.shipment_delay", def.ShipmentDelay)
	v.SetDefault("engine.seed", def.Seed)
	v.SetDefault("engine.ledger_capacity", 50)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.seed_file", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: сначала PEM прямо из ENV, затем файл по пути из конфига.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
