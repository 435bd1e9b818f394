package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvironmentProduction = "production"

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	BucketAvatars  string
	UseSSL         bool
	Region         string
	PublicBaseURL  string
	MaxUploadBytes int64
}

type SecurityConfig struct {
	JWTAccessSecret      string
	JWTAccessTTL         time.Duration
	JWTRefreshTTL        time.Duration
	AllowPublicSignup    bool
	RequireVerifiedEmail bool
	PasswordMinLength    int
}

type OTPConfig struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

type FirebaseConfig struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
}

func (c FirebaseConfig) Enabled() bool {
	return c.ProjectID != "" && c.ClientEmail != "" && c.PrivateKey != ""
}

type JobsConfig struct {
	SessionPurge     string
	SessionRetention time.Duration
	ClaimInterval    time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	OTP              OTPConfig
	SMTP             SMTPConfig
	Firebase         FirebaseConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) Production() bool {
	return c.Environment == EnvironmentProduction
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("OCEANSTELLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Firebase.PrivateKey = strings.ReplaceAll(cfg.Firebase.PrivateKey, `\n`, "\n")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Security.JWTAccessSecret == "" {
		errs = append(errs, errors.New("security.jwtaccesssecret is required"))
	}
	if c.Security.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("security.jwtaccessttl must be positive"))
	}
	if c.Security.JWTRefreshTTL < c.Security.JWTAccessTTL {
		errs = append(errs, errors.New("security.jwtrefreshttl must not be shorter than the access ttl"))
	}
	if c.OTP.TTL <= 0 || c.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("otp.ttl and otp.maxattempts must be positive"))
	}
	if c.Security.PasswordMinLength <= 0 {
		errs = append(errs, errors.New("security.passwordminlength must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "oceanstella:tasks")
	v.SetDefault("redis.group", "api")
	v.SetDefault("redis.consumer", "api-1")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketavatars", "oceanstella-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.maxuploadbytes", 8<<20)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "240h") // 10 days
	v.SetDefault("security.allowpublicsignup", false)
	v.SetDefault("security.requireverifiedemail", true)
	v.SetDefault("security.passwordminlength", 8)

	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.maxattempts", 8)
	v.SetDefault("otp.resendcooldown", "60s")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("firebase.projectid", "")
	v.SetDefault("firebase.clientemail", "")
	v.SetDefault("firebase.privatekey", "")

	v.SetDefault("jobs.sessionpurge", "0 30 3 * * *")
	v.SetDefault("jobs.sessionretention", "168h")
	v.SetDefault("jobs.claiminterval", "1m")

	v.SetDefault("allowcorsorigins", "")
}
