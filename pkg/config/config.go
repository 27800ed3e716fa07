package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// Port is the port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	Auth     struct {
		// Secret is the key the session service signs tokens with. The
		// gateway only verifies. It must be a base64 encoded string; the
		// default is a random 32 byte key, which is only useful for local
		// runs where tokens are minted with the same process lifetime.
		Secret Base64Encoded `validate:"required"`
	}
	SQLite struct {
		// File is the path to the SQLite database file.
		File string `validate:"required"`
		// Migrations is the path to the directory holding the goose
		// migration files.
		Migrations string `validate:"required"`
	}
	Gateway struct {
		// OpTimeout bounds store appends, history reads and membership
		// checks issued while handling one event.
		OpTimeout time.Duration `validate:"required"`
		// HistoryLimit is the number of messages replayed on join.
		HistoryLimit int `validate:"required,min=1,max=50"`
		// TypingTTL is the inactivity window after which a typing entry
		// is treated as expired.
		TypingTTL time.Duration `validate:"required"`
	}
	// AllowedOrigins is a list of origins that are allowed to connect to
	// the server. The default is ["*"].
	AllowedOrigins []string
	valid          bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// Load loads the configuration from config.yaml, a .env file and
// environment variables, in increasing order of precedence. Invalid values
// are deferred to the validation step.
func Load() (*Config, error) {
	// a missing .env file is fine, env vars may come from the environment
	godotenv.Load()

	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8080)
	viper.SetDefault("hostname", "0.0.0.0")

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	viper.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))

	viper.SetDefault("sqlite.file", "./collab.db")
	viper.SetDefault("sqlite.migrations", "./migrations")

	viper.SetDefault("gateway.optimeout", "5s")
	viper.SetDefault("gateway.historylimit", 50)
	viper.SetDefault("gateway.typingttl", "5s")

	viper.SetDefault("allowedorigins", []string{"*"})

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	c.valid = true
	return nil
}
