// Package config loads pestwatch settings from a YAML file, .env files and
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/pestwatch/internal/logger"
)

const DefaultPath = "config.yaml"

type Config struct {
	Server struct {
		Port            int               `yaml:"port" env:"PORT"`
		ReadTimeout     time.Duration     `yaml:"readTimeout"`
		WriteTimeout    time.Duration     `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration     `yaml:"shutdownTimeout"`
		AllowedOrigins  []string          `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
		Operators       map[string]string `yaml:"operators"` // operator name -> API key
		OperatorKey     string            `yaml:"operatorKey" env:"OPERATOR_API_KEY"`
		RateLimit       struct {
			RequestsPerMinute int `yaml:"requestsPerMinute" env:"RATE_LIMIT_RPM"`
			Burst             int `yaml:"burst"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Log logger.Config `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver" env:"DB_DRIVER"` // mysql | postgres | memory
		Host     string `yaml:"host" env:"DB_HOST"`
		Port     int    `yaml:"port" env:"DB_PORT"`
		User     string `yaml:"user" env:"DB_USER"`
		Password string `yaml:"password" env:"DB_PASSWORD"`
		Name     string `yaml:"name" env:"DB_NAME"`
		SSLMode  string `yaml:"sslMode" env:"DB_SSLMODE"`

		MaxOpenConns    int           `yaml:"maxOpenConns"`
		MaxIdleConns    int           `yaml:"maxIdleConns"`
		ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string        `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey  string        `yaml:"accessKey" env:"MINIO_ACCESS_KEY"`
		SecretKey  string        `yaml:"secretKey" env:"MINIO_SECRET_KEY"`
		BucketName string        `yaml:"bucketName" env:"MINIO_BUCKET"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL" env:"MINIO_USE_SSL"`
		URLExpiry  time.Duration `yaml:"urlExpiry"`
	} `yaml:"minio"`

	AI struct {
		APIKey  string `yaml:"apiKey" env:"OPENAI_API_KEY"`
		Model   string `yaml:"model" env:"OPENAI_MODEL"`
		BaseURL string `yaml:"baseURL" env:"OPENAI_BASE_URL"`
	} `yaml:"ai"`

	Redis struct {
		Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED"`
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Catalogs struct {
		INaturalistURL string `yaml:"inaturalistURL"`
		WikimediaURL   string `yaml:"wikimediaURL"`
	} `yaml:"catalogs"`

	Timeouts struct {
		Classification time.Duration `yaml:"classification" env:"CLASSIFICATION_TIMEOUT"`
		Enrichment     time.Duration `yaml:"enrichment" env:"ENRICHMENT_TIMEOUT"`
		Catalog        time.Duration `yaml:"catalog"`
	} `yaml:"timeouts"`

	Images struct {
		MinBytes int `yaml:"minBytes"`
		MaxBytes int `yaml:"maxBytes"`
	} `yaml:"images"`

	Species struct {
		Source string `yaml:"source" env:"SPECIES_SOURCE"` // database | file
		File   string `yaml:"file" env:"SPECIES_FILE"`
	} `yaml:"species"`

	AllowedImageHosts []string `yaml:"allowedImageHosts" env:"ALLOWED_IMAGE_HOSTS"`
}

// Load baca file config, .env, lalu env override. A missing config file is
// not an error; defaults and the environment are enough to boot.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	cfg.SetDefaults()
	return &cfg, nil
}

// Path returns CONFIG_PATH or the default path.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func loadEnvFiles() error {
	if f := os.Getenv("ENV_FILE"); f != "" {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
		return nil
	}
	// godotenv never overrides, so .env.local must load first to win
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateLimit.RequestsPerMinute == 0 {
		c.Server.RateLimit.RequestsPerMinute = 30
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "pestwatch-uploads"
	}
	if c.Minio.URLExpiry == 0 {
		c.Minio.URLExpiry = time.Hour
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Catalogs.INaturalistURL == "" {
		c.Catalogs.INaturalistURL = "https://api.inaturalist.org"
	}
	if c.Catalogs.WikimediaURL == "" {
		c.Catalogs.WikimediaURL = "https://commons.wikimedia.org"
	}
	if c.Timeouts.Classification == 0 {
		c.Timeouts.Classification = 30 * time.Second
	}
	if c.Timeouts.Enrichment == 0 {
		c.Timeouts.Enrichment = 10 * time.Second
	}
	if c.Timeouts.Catalog == 0 {
		c.Timeouts.Catalog = 5 * time.Second
	}
	if c.Images.MinBytes == 0 {
		c.Images.MinBytes = 100
	}
	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = 20 << 20
	}
	if c.Species.Source == "" {
		c.Species.Source = "database"
	}
	if c.Species.File == "" {
		c.Species.File = "configs/species.yaml"
	}
}

// Validate reports settings the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AI.APIKey) == "" {
		errs = append(errs, errors.New("ai.apiKey (OPENAI_API_KEY) is required"))
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Species.Source {
	case "database", "file":
	default:
		errs = append(errs, fmt.Errorf("species.source %q is not supported", c.Species.Source))
	}
	if c.Species.Source == "database" && c.Database.Driver == "memory" {
		errs = append(errs, errors.New("species.source database needs a sql driver"))
	}
	if c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required"))
	}
	if c.Images.MinBytes >= c.Images.MaxBytes {
		errs = append(errs, errors.New("images.minBytes must be below images.maxBytes"))
	}
	return errors.Join(errs...)
}

// OperatorKeys merges server.operators with the single OPERATOR_API_KEY entry.
func (c *Config) OperatorKeys() map[string]string {
	keys := make(map[string]string, len(c.Server.Operators)+1)
	for name, key := range c.Server.Operators {
		if key != "" {
			keys[name] = key
		}
	}
	if c.Server.OperatorKey != "" {
		keys["default"] = c.Server.OperatorKey
	}
	return keys
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC&clientFoundRows=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func applyEnv(cfg *Config) {
	applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

func applyEnvToStruct(v reflect.Value) {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyEnvToStruct(field)
			continue
		}
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		if val, ok := os.LookupEnv(name); ok && val != "" {
			setField(field, val)
		}
	}
}

func setField(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(val); err == nil {
			field.SetBool(b)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}
