package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能缺少时区数据

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"carefollow"`

	// PostgreSQL 配置
	PostgreSQLHost     string   `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string   `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string   `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string   `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string   `env:"POSTGRESQL_DATABASE" envDefault:"carefollow"`
	PostgreSQLSchema   string   `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string   `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int      `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int      `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	PostgreSQLReplicas []string `env:"POSTGRESQL_REPLICAS" envSeparator:","` // 只读副本 host:port，可为空

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"cf"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 服务间鉴权（出院登记流程、消息路由调用 /v1 接口时使用）
	AuthEnabled      bool   `env:"AUTH_ENABLED" envDefault:"true"`
	JWTSecret        string `env:"JWT_SECRET"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"43200"`
	RateLimitPerMin  int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"` // 0 关闭限流

	// 推送通道配置
	NotifyProvider         string        `env:"NOTIFY_PROVIDER" envDefault:"line"` // line, aliyun, mock
	LineChannelAccessToken string        `env:"LINE_CHANNEL_ACCESS_TOKEN"`
	LinePushEndpoint       string        `env:"LINE_PUSH_ENDPOINT" envDefault:"https://api.line.me/v2/bot/message/push"`
	NurseGroupID           string        `env:"NURSE_GROUP_ID"`       // 默认接收方
	EscalationRecipient    string        `env:"ESCALATION_RECIPIENT"` // 为空时使用 NURSE_GROUP_ID
	NotifyTimeout          time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"8s"`
	RecipientMinLength     int           `env:"RECIPIENT_MIN_LENGTH" envDefault:"10"`

	// 阿里云短信（NOTIFY_PROVIDER=aliyun）
	// AccessKey 由 SDK 从 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 读取
	AliCloudAccessKeyID string `env:"ALIBABA_CLOUD_ACCESS_KEY_ID"`
	SMSSignName         string `env:"SMS_SIGN_NAME"`
	SMSTemplateCode     string `env:"SMS_TEMPLATE_CODE"`

	// 随访提醒配置
	StalenessThreshold time.Duration `env:"STALENESS_THRESHOLD" envDefault:"24h"`
	ReminderSendAt     string        `env:"REMINDER_SEND_AT" envDefault:""` // 例如 09:00:00，为空则按出院时间精确偏移
	ReminderTimezone   string        `env:"REMINDER_TIMEZONE" envDefault:"Asia/Bangkok"`
	DispatchInterval   time.Duration `env:"DISPATCH_INTERVAL" envDefault:"10m"`
	EscalationAt       string        `env:"ESCALATION_AT" envDefault:"10:00:00"`
	JobTimeout         time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ConcernKeywords    []string      `env:"CONCERN_KEYWORDS" envSeparator:"," envDefault:"ปวดมาก,ปวดเพิ่มขึ้น,หนอง,มีกลิ่น,บวมแดง,มีไข้,ตัวร้อน,เจ็บมาก,แผลแยก,เลือดออก,ไม่ดีขึ้น"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`
	ServiceVersion  string  `env:"SERVICE_VERSION" envDefault:"dev"`
}

// Load 读取 .env 与环境变量并校验
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
	}

	switch c.NotifyProvider {
	case "line":
		if c.LineChannelAccessToken == "" {
			log.Printf("WARN: LINE_CHANNEL_ACCESS_TOKEN is not set, every push will fail validation")
		}
	case "aliyun":
		if c.SMSSignName == "" || c.SMSTemplateCode == "" {
			return fmt.Errorf("SMS_SIGN_NAME and SMS_TEMPLATE_CODE are required for aliyun provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported NOTIFY_PROVIDER: %s", c.NotifyProvider)
	}

	if c.NurseGroupID == "" && c.EscalationRecipient == "" {
		log.Printf("WARN: NURSE_GROUP_ID is not set, staff alerts will fail validation")
	}

	if c.JWTExpireMinutes <= 0 {
		return fmt.Errorf("JWT_EXPIRE_MINUTES must be positive, got %d", c.JWTExpireMinutes)
	}

	if c.StalenessThreshold <= 0 {
		return fmt.Errorf("STALENESS_THRESHOLD must be positive, got %s", c.StalenessThreshold)
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL must be positive, got %s", c.DispatchInterval)
	}

	if c.ReminderSendAt != "" {
		if _, err := ParseClock(c.ReminderSendAt); err != nil {
			return fmt.Errorf("REMINDER_SEND_AT: %w", err)
		}
	}
	if _, err := ParseClock(c.EscalationAt); err != nil {
		return fmt.Errorf("ESCALATION_AT: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("REMINDER_TIMEZONE: %w", err)
	}

	return nil
}

// Location 返回提醒使用的时区
func (c *Config) Location() (*time.Location, error) {
	if c.ReminderTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.ReminderTimezone)
}

// StaffRecipient 升级/关注告警的接收方
func (c *Config) StaffRecipient() string {
	if c.EscalationRecipient != "" {
		return c.EscalationRecipient
	}
	return c.NurseGroupID
}

// GatewayCredential 当前推送通道的凭据，用于网关的凭据校验
func (c *Config) GatewayCredential() string {
	switch c.NotifyProvider {
	case "aliyun":
		return c.AliCloudAccessKeyID
	case "mock":
		return "mock"
	default:
		return c.LineChannelAccessToken
	}
}

// TokenTTL 服务令牌有效期
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpireMinutes) * time.Minute
}

func (c *Config) GetDSN() string {
	return c.dsnForHost(c.PostgreSQLHost, c.PostgreSQLPort)
}

// GetReplicaDSNs 根据 POSTGRESQL_REPLICAS 生成只读副本 DSN
func (c *Config) GetReplicaDSNs() []string {
	dsns := make([]string, 0, len(c.PostgreSQLReplicas))
	for _, replica := range c.PostgreSQLReplicas {
		replica = strings.TrimSpace(replica)
		if replica == "" {
			continue
		}
		host, port := replica, c.PostgreSQLPort
		if i := strings.LastIndex(replica, ":"); i > 0 {
			host, port = replica[:i], replica[i+1:]
		}
		dsns = append(dsns, c.dsnForHost(host, port))
	}
	return dsns
}

func (c *Config) dsnForHost(host, port string) string {
	return "host=" + host +
		" port=" + port +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ParseClock 解析 "15:04:05" 或 "15:04" 形式的时刻，返回当天零点起的偏移
func ParseClock(value string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock value %q, want HH:MM[:SS]", value)
}
