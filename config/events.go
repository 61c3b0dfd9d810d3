package config

import "time"

// DispatchConfig toggles dispatch instrumentation. Both are on by default.
type DispatchConfig struct {
	DisableMetrics bool `yaml:"disable_metrics" mapstructure:"disable_metrics"`
	DisableTracing bool `yaml:"disable_tracing" mapstructure:"disable_tracing"`
}

// TelemetryConfig configures OTLP export. Without it dispatch records to
// the global OpenTelemetry providers, which are no-ops by default.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval" validate:"gte=0"`
}

// ApplyDefaults applies telemetry defaults.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// TimerConfig declares a periodic source.
type TimerConfig struct {
	Name     string        `yaml:"name" mapstructure:"name" validate:"required"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gt=0"`
}

// TopicConfig declares an in-process publish/subscribe source.
type TopicConfig struct {
	Name   string `yaml:"name" mapstructure:"name" validate:"required"`
	Buffer int    `yaml:"buffer" mapstructure:"buffer" validate:"gte=0"`
}

// WatchConfig declares a filesystem change source.
type WatchConfig struct {
	Name  string   `yaml:"name" mapstructure:"name" validate:"required"`
	Paths []string `yaml:"paths" mapstructure:"paths" validate:"min=1,dive,required"`
	Ops   []string `yaml:"ops" mapstructure:"ops" validate:"dive,oneof=create write remove rename chmod"`
}

// KafkaConfig declares a Kafka topic consumed as an event source.
type KafkaConfig struct {
	Name    string   `yaml:"name" mapstructure:"name" validate:"required"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers" validate:"min=1,dive,hostname_port"`
	Topic   string   `yaml:"topic" mapstructure:"topic" validate:"required"`
	// GroupID enables consumer-group offsets. Without it every partition is
	// read from StartOffset on each start.
	GroupID     string          `yaml:"group_id" mapstructure:"group_id"`
	StartOffset string          `yaml:"start_offset" mapstructure:"start_offset" validate:"oneof=first last"`
	DialTimeout time.Duration   `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gte=0"`
	TLS         KafkaTLSConfig  `yaml:"tls" mapstructure:"tls"`
	SASL        KafkaSASLConfig `yaml:"sasl" mapstructure:"sasl"`
}

// KafkaTLSConfig enables TLS to the brokers.
type KafkaTLSConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	SkipVerify bool   `yaml:"skip_verify" mapstructure:"skip_verify"`
	CAFile     string `yaml:"ca_file" mapstructure:"ca_file"`
	CertFile   string `yaml:"cert_file" mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile    string `yaml:"key_file" mapstructure:"key_file" validate:"required_with=CertFile"`
}

// KafkaSASLConfig enables SASL authentication. An empty mechanism disables it.
type KafkaSASLConfig struct {
	Mechanism string `yaml:"mechanism" mapstructure:"mechanism" validate:"omitempty,oneof=PLAIN SCRAM-SHA-256 SCRAM-SHA-512"`
	Username  string `yaml:"username" mapstructure:"username" validate:"required_with=Mechanism"`
	Password  string `yaml:"password" mapstructure:"password"`
}

// RedisConfig declares Redis pub/sub channels consumed as an event source.
type RedisConfig struct {
	Name     string   `yaml:"name" mapstructure:"name" validate:"required"`
	Addr     string   `yaml:"addr" mapstructure:"addr" validate:"hostname_port"`
	Password string   `yaml:"password" mapstructure:"password"`
	DB       int      `yaml:"db" mapstructure:"db" validate:"gte=0"`
	Channels []string `yaml:"channels" mapstructure:"channels" validate:"min=1,dive,required"`
	// Pattern subscribes with PSUBSCRIBE, so channels are glob patterns.
	Pattern bool `yaml:"pattern" mapstructure:"pattern"`
}

// WebhookConfig declares an HTTP endpoint whose POST requests are
// delivered as events.
type WebhookConfig struct {
	Name            string        `yaml:"name" mapstructure:"name" validate:"required"`
	Addr            string        `yaml:"addr" mapstructure:"addr" validate:"hostname_port"`
	Path            string        `yaml:"path" mapstructure:"path" validate:"startswith=/"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// ApplyDefaults applies webhook defaults.
func (c *WebhookConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/events"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// SourcesConfig lists the event sources the service runs.
type SourcesConfig struct {
	// MaxInFlight bounds concurrent deliveries per timer, topic, watch and
	// Redis source. Kafka delivers in order and webhooks deliver on the
	// request goroutine, so neither uses it.
	MaxInFlight int             `yaml:"max_in_flight" mapstructure:"max_in_flight" validate:"gte=0"`
	Timers      []TimerConfig   `yaml:"timers" mapstructure:"timers" validate:"dive"`
	Topics      []TopicConfig   `yaml:"topics" mapstructure:"topics" validate:"dive"`
	Watches     []WatchConfig   `yaml:"watches" mapstructure:"watches" validate:"dive"`
	Kafka       []KafkaConfig   `yaml:"kafka" mapstructure:"kafka" validate:"dive"`
	Redis       []RedisConfig   `yaml:"redis" mapstructure:"redis" validate:"dive"`
	Webhooks    []WebhookConfig `yaml:"webhooks" mapstructure:"webhooks" validate:"dive"`
}

// ApplyDefaults applies source defaults.
func (c *SourcesConfig) ApplyDefaults() {
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 64
	}
	for i := range c.Topics {
		if c.Topics[i].Buffer == 0 {
			c.Topics[i].Buffer = 256
		}
	}
	for i := range c.Kafka {
		k := &c.Kafka[i]
		if len(k.Brokers) == 0 {
			k.Brokers = []string{"localhost:9092"}
		}
		if k.StartOffset == "" {
			k.StartOffset = "first"
		}
		if k.DialTimeout == 0 {
			k.DialTimeout = 10 * time.Second
		}
	}
	for i := range c.Redis {
		if c.Redis[i].Addr == "" {
			c.Redis[i].Addr = "localhost:6379"
		}
	}
	for i := range c.Webhooks {
		c.Webhooks[i].ApplyDefaults()
	}
}

// Names returns every source name in declaration order.
func (c *SourcesConfig) Names() []string {
	names := make([]string, 0, len(c.Timers)+len(c.Topics)+len(c.Watches)+len(c.Kafka)+len(c.Redis)+len(c.Webhooks))
	for _, t := range c.Timers {
		names = append(names, t.Name)
	}
	for _, t := range c.Topics {
		names = append(names, t.Name)
	}
	for _, w := range c.Watches {
		names = append(names, w.Name)
	}
	for _, k := range c.Kafka {
		names = append(names, k.Name)
	}
	for _, r := range c.Redis {
		names = append(names, r.Name)
	}
	for _, w := range c.Webhooks {
		names = append(names, w.Name)
	}
	return names
}
