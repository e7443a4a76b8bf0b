package s3

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverMemory = "memory"
)

type Config struct {
	Driver          string        `mapstructure:"Driver"`
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	UseSSL          bool          `mapstructure:"UseSSL"`
	UsePathStyle    bool          `mapstructure:"UsePathStyle"`
	TempBucket      string        `mapstructure:"TempBucket"`
	PermanentBucket string        `mapstructure:"PermanentBucket"`
	IconBucket      string        `mapstructure:"IconBucket"`
	SignedURLTTL    time.Duration `mapstructure:"SignedURLTTL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("S3")
	v.AutomaticEnv()

	v.SetDefault("Driver", DriverS3)
	v.SetDefault("Endpoint", "https://storage.yandexcloud.net")
	v.SetDefault("Region", "ru-central1")
	v.SetDefault("UseSSL", true)
	v.SetDefault("SignedURLTTL", time.Hour)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read config from %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	if c.Driver != DriverMemory {
		if c.AccessKeyID == "" {
			return fmt.Errorf("AccessKeyID is required")
		}
		if c.SecretAccessKey == "" {
			return fmt.Errorf("SecretAccessKey is required")
		}
	}
	if c.TempBucket == "" {
		return fmt.Errorf("TempBucket is required")
	}
	if c.PermanentBucket == "" {
		return fmt.Errorf("PermanentBucket is required")
	}
	if c.IconBucket == "" {
		c.IconBucket = c.PermanentBucket
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = time.Hour
	}
	return nil
}
