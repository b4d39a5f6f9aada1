// Package config carrega a configuração do simulador: valores padrão,
// arquivo pdwsim.{toml,yaml,json}, variáveis PDWSIM_* e flags de linha de comando,
// nessa ordem de precedência crescente.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"esm_pdw/internal/emitter"
	"esm_pdw/pkg/models"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// ErrInvalidTickInterval indica engine.tick_interval não positivo
	ErrInvalidTickInterval = errors.New("config: engine.tick_interval must be > 0")

	// ErrInvalidLossProbability indica engine.loss_probability fora de [0, 1)
	ErrInvalidLossProbability = errors.New("config: engine.loss_probability must be in [0, 1)")
)

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	WebDir string `mapstructure:"web_dir"`
}

type EngineConfig struct {
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	Seed                 int64         `mapstructure:"seed"`
	LossProbability      float64       `mapstructure:"loss_probability"`
	DetectionThresholdDB float64       `mapstructure:"detection_threshold_db"`
}

type StreamConfig struct {
	SuppressEmpty  bool          `mapstructure:"suppress_empty"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

type SnapshotConfig struct {
	Dir      string `mapstructure:"dir"`
	SensorID string `mapstructure:"sensor_id"`
	Version  string `mapstructure:"version"`
}

type NATSConfig struct {
	URL             string `mapstructure:"url"`
	Subject         string `mapstructure:"subject"`
	SnapshotSubject string `mapstructure:"snapshot_subject"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type LogConfig struct {
	BasePath      string `mapstructure:"base_path"`
	Debug         bool   `mapstructure:"debug"`
	Console       bool   `mapstructure:"console"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config é a configuração completa do processo
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Engine   EngineConfig           `mapstructure:"engine"`
	Stream   StreamConfig           `mapstructure:"stream"`
	Snapshot SnapshotConfig         `mapstructure:"snapshot"`
	NATS     NATSConfig             `mapstructure:"nats"`
	Redis    RedisConfig            `mapstructure:"redis"`
	Log      LogConfig              `mapstructure:"log"`
	Emitters []models.EmitterConfig `mapstructure:"emitters"`

	// ConfigFile é o arquivo efetivamente lido ("" quando só padrões)
	ConfigFile string `mapstructure:"-"`
}

// flagKeys liga as flags da CLI às chaves de configuração
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"web-dir":      "server.web_dir",
	"seed":         "engine.seed",
	"tick":         "engine.tick_interval",
	"snapshot-dir": "snapshot.dir",
	"nats-url":     "nats.url",
	"redis-addr":   "redis.addr",
	"log-dir":      "log.base_path",
	"debug":        "log.debug",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.web_dir", "web")

	v.SetDefault("engine.tick_interval", "10ms")
	v.SetDefault("engine.seed", 0)
	v.SetDefault("engine.loss_probability", 0.02)
	v.SetDefault("engine.detection_threshold_db", -40.0)

	v.SetDefault("stream.suppress_empty", false)
	v.SetDefault("stream.status_interval", "30s")

	v.SetDefault("snapshot.dir", ".")
	v.SetDefault("snapshot.sensor_id", "ESM-SENTRY-01")
	v.SetDefault("snapshot.version", "NG-PDW-1.0")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "esm.pdw.batch")
	v.SetDefault("nats.snapshot_subject", "esm.pdw.snapshot")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "pdw:snapshots")

	v.SetDefault("log.base_path", "logs")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.console", true)
	v.SetDefault("log.retention_days", 7)
}

// Load lê a configuração. configFile vazio procura pdwsim.* em /etc/pdwsim e no diretório atual;
// a ausência do arquivo nesse caso não é erro.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PDWSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("pdwsim")
		v.AddConfigPath("/etc/pdwsim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if len(cfg.Emitters) == 0 {
		cfg.Emitters = emitter.DefaultConfigs()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejeita configuração inválida antes de o motor iniciar
func (c *Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTickInterval, c.Engine.TickInterval)
	}
	if !(c.Engine.LossProbability >= 0 && c.Engine.LossProbability < 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidLossProbability, c.Engine.LossProbability)
	}
	if _, err := emitter.NewRegistry(c.Emitters); err != nil {
		return fmt.Errorf("config: emitters: %w", err)
	}
	return nil
}

// Registry cria o registro de emissores a partir da configuração
func (c *Config) Registry() (*emitter.Registry, error) {
	return emitter.NewRegistry(c.Emitters)
}
