package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"

	"github.com/gnuser/red-envelope-server/infra/logging"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	BrokerNone    = "none"
	BrokerSarama  = "sarama"
	BrokerKafkaGo = "kafka-go"
	BrokerAMQP    = "amqp"
)

type Server struct {
	GRPCAddr    string   `yaml:"grpc_addr"`
	HTTPAddr    string   `yaml:"http_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type WAL struct {
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segment_size"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	SyncEveryWrite  bool          `yaml:"sync_every_write"`
}

type Store struct {
	Dir string `yaml:"dir"`
}

type Snapshot struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

// Redis is optional: an empty Addr keeps last prices in memory only.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Broker struct {
	Driver     string        `yaml:"driver"`
	Brokers    []string      `yaml:"brokers"`
	Topic      string        `yaml:"topic"`
	URL        string        `yaml:"url"`
	Exchange   string        `yaml:"exchange"`
	Interval   time.Duration `yaml:"interval"`
	MaxRetries uint32        `yaml:"max_retries"`
}

type Envelope struct {
	ExpireInterval time.Duration `yaml:"expire_interval"`
}

type Asset struct {
	Name string `yaml:"name"`
	Prec int    `yaml:"prec"`
}

type Market struct {
	Name      string `yaml:"name"`
	Stock     string `yaml:"stock"`
	Money     string `yaml:"money"`
	StockPrec int    `yaml:"stock_prec"`
	MoneyPrec int    `yaml:"money_prec"`
	FeePrec   int    `yaml:"fee_prec"`
	MinAmount string `yaml:"min_amount"`
}

type Config struct {
	Server   Server         `yaml:"server"`
	Log      logging.Config `yaml:"log"`
	WAL      WAL            `yaml:"wal"`
	Outbox   Store          `yaml:"outbox"`
	Balance  Store          `yaml:"balance"`
	Snapshot Snapshot       `yaml:"snapshot"`
	Redis    Redis          `yaml:"redis"`
	Broker   Broker         `yaml:"broker"`
	Envelope Envelope       `yaml:"envelope"`

	Assets         []Asset  `yaml:"assets"`
	Markets        []Market `yaml:"markets"`
	DiscountTokens []string `yaml:"discount_tokens"`
}

func Default() Config {
	return Config{
		Server: Server{
			GRPCAddr: ":7316",
			HTTPAddr: ":7317",
		},
		Log: logging.NewDefaultConfig(),
		WAL: WAL{
			Dir:             "data/wal",
			SegmentSize:     64 << 20,
			SegmentDuration: time.Hour,
		},
		Outbox:  Store{Dir: "data/outbox"},
		Balance: Store{Dir: "data/balance"},
		Snapshot: Snapshot{
			Dir:      "data/snapshot",
			Interval: 10 * time.Minute,
		},
		Broker: Broker{
			Driver:     BrokerNone,
			Topic:      "engine",
			Exchange:   "engine",
			Interval:   250 * time.Millisecond,
			MaxRetries: 10,
		},
		Envelope: Envelope{ExpireInterval: time.Minute},
	}
}

// Load reads path over the defaults, then applies the environment.
// Priority: ENV > .env file > YAML > defaults
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}

	// optional, a missing .env is fine
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("ENGINE_GRPC_ADDR", &c.Server.GRPCAddr)
	str("ENGINE_HTTP_ADDR", &c.Server.HTTPAddr)
	str("ENGINE_LOG_ENV", &c.Log.Environment)
	str("ENGINE_LOG_LEVEL", &c.Log.Level)
	str("ENGINE_LOG_FILE", &c.Log.File)
	str("ENGINE_WAL_DIR", &c.WAL.Dir)
	str("ENGINE_OUTBOX_DIR", &c.Outbox.Dir)
	str("ENGINE_BALANCE_DIR", &c.Balance.Dir)
	str("ENGINE_SNAPSHOT_DIR", &c.Snapshot.Dir)
	str("ENGINE_REDIS_ADDR", &c.Redis.Addr)
	str("ENGINE_REDIS_PASSWORD", &c.Redis.Password)
	str("ENGINE_BROKER_DRIVER", &c.Broker.Driver)
	str("ENGINE_BROKER_TOPIC", &c.Broker.Topic)
	str("ENGINE_BROKER_URL", &c.Broker.URL)
	str("ENGINE_BROKER_EXCHANGE", &c.Broker.Exchange)

	if v := os.Getenv("ENGINE_BROKER_BROKERS"); v != "" {
		c.Broker.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ENGINE_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "ENGINE_REDIS_DB")
		}
		c.Redis.DB = db
	}
	if v := os.Getenv("ENGINE_SNAPSHOT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "ENGINE_SNAPSHOT_INTERVAL")
		}
		c.Snapshot.Interval = d
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.Assets) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no assets")
	}
	if len(c.Markets) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no markets")
	}

	assets := make(map[string]struct{}, len(c.Assets))
	for _, a := range c.Assets {
		if a.Name == "" || a.Prec < 0 {
			return errors.Wrapf(ErrInvalidConfig, "asset %q", a.Name)
		}
		if _, dup := assets[a.Name]; dup {
			return errors.Wrapf(ErrInvalidConfig, "duplicate asset %s", a.Name)
		}
		assets[a.Name] = struct{}{}
	}

	markets := make(map[string]struct{}, len(c.Markets))
	for _, m := range c.Markets {
		if m.Name == "" {
			return errors.Wrap(ErrInvalidConfig, "market without name")
		}
		if _, dup := markets[m.Name]; dup {
			return errors.Wrapf(ErrInvalidConfig, "duplicate market %s", m.Name)
		}
		markets[m.Name] = struct{}{}
		if _, ok := assets[m.Stock]; !ok {
			return errors.Wrapf(ErrInvalidConfig, "market %s: unknown stock %s", m.Name, m.Stock)
		}
		if _, ok := assets[m.Money]; !ok {
			return errors.Wrapf(ErrInvalidConfig, "market %s: unknown money %s", m.Name, m.Money)
		}
	}

	for _, t := range c.DiscountTokens {
		if _, ok := assets[t]; !ok {
			return errors.Wrapf(ErrInvalidConfig, "unknown discount token %s", t)
		}
	}

	switch c.Broker.Driver {
	case "", BrokerNone:
	case BrokerSarama, BrokerKafkaGo:
		if len(c.Broker.Brokers) == 0 {
			return errors.Wrapf(ErrInvalidConfig, "broker %s needs brokers", c.Broker.Driver)
		}
	case BrokerAMQP:
		if c.Broker.URL == "" {
			return errors.Wrap(ErrInvalidConfig, "broker amqp needs url")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown broker driver %q", c.Broker.Driver)
	}
	return nil
}

// AssetPrecs maps asset names to their storage precision.
func (c Config) AssetPrecs() map[string]int {
	out := make(map[string]int, len(c.Assets))
	for _, a := range c.Assets {
		out[a.Name] = a.Prec
	}
	return out
}
