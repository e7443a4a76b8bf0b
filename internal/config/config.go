package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"synxronmarket/internal/logger"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"Server"`
	Database   DatabaseConfig   `mapstructure:"Database"`
	Submission SubmissionConfig `mapstructure:"Submission"`
	Review     ReviewConfig     `mapstructure:"Review"`
	Janitor    JanitorConfig    `mapstructure:"Janitor"`
	Log        logger.Config    `mapstructure:"Log"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	BaseURL  string `mapstructure:"BaseURL"`
	GRPCPort string `mapstructure:"GRPCPort"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type SubmissionConfig struct {
	Timeout        time.Duration `mapstructure:"Timeout"`
	MaxPackageSize int64         `mapstructure:"MaxPackageSize"`
}

type ReviewConfig struct {
	Timeout time.Duration `mapstructure:"Timeout"`
	// DeniedPermissions разрешения манифеста, при которых публикация отклоняется
	DeniedPermissions []string `mapstructure:"DeniedPermissions"`
}

type JanitorConfig struct {
	Interval time.Duration `mapstructure:"Interval"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Server.BaseURL", "BASE_URL")
	v.BindEnv("Submission.Timeout", "SUBMISSION_TIMEOUT")
	v.BindEnv("Submission.MaxPackageSize", "SUBMISSION_MAX_PACKAGE_SIZE")
	v.BindEnv("Review.Timeout", "REVIEW_TIMEOUT")
	v.BindEnv("Review.DeniedPermissions", "REVIEW_DENIED_PERMISSIONS")
	v.BindEnv("Janitor.Interval", "JANITOR_INTERVAL")
	v.BindEnv("Log.Level", "LOG_LEVEL")
	v.BindEnv("Log.Format", "LOG_FORMAT")

	// Установка значений по умолчанию
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Submission.Timeout", 10*time.Second)
	v.SetDefault("Submission.MaxPackageSize", 50<<20)
	v.SetDefault("Review.Timeout", 30*time.Second)
	v.SetDefault("Janitor.Interval", time.Hour)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "json")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Из переменной окружения список приходит одной строкой через запятую
	cfg.Review.DeniedPermissions = splitList(strings.Join(cfg.Review.DeniedPermissions, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}
	if c.Submission.Timeout <= 0 {
		return fmt.Errorf("submission timeout must be positive, got %s", c.Submission.Timeout)
	}
	if c.Submission.MaxPackageSize <= 0 {
		return fmt.Errorf("max package size must be positive, got %d", c.Submission.MaxPackageSize)
	}
	if c.Review.Timeout <= 0 {
		return fmt.Errorf("review timeout must be positive, got %s", c.Review.Timeout)
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL строка подключения в формате URL для golang-migrate
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
