package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Config is built once at startup and handed to every constructor that needs it.
// Nothing reads the environment after Load returns.
type Config struct {
	HTTPAddr       string
	AppName        string
	AppVersion     string
	Debug          bool
	LogLevel       string
	StorageBackend string
	AllowedOrigins []string

	// ProvisionDefaultLabels creates starter labels for every new user.
	ProvisionDefaultLabels bool

	Mongo MongoConfig
	Auth  AuthConfig
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type AuthConfig struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPAddr:               ":" + getenv("PORT", "8080"),
		AppName:                getenv("APP_NAME", "TODO API"),
		AppVersion:             getenv("APP_VERSION", "1.0.0"),
		Debug:                  getBool("DEBUG", false),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		StorageBackend:         strings.ToLower(getenv("STORAGE_BACKEND", StorageMongo)),
		AllowedOrigins:         splitOrigins(getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		ProvisionDefaultLabels: getBool("DEFAULT_LABELS", true),
		Mongo: MongoConfig{
			URI:            getenv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getenv("DATABASE_NAME", "todo"),
			ConnectTimeout: getDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Secret:     os.Getenv("JWT_SECRET_KEY"),
			Algorithm:  getenv("JWT_ALGORITHM", jwt.SigningMethodHS256.Alg()),
			AccessTTL:  time.Duration(getInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
			RefreshTTL: time.Duration(getInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
			BcryptCost: getInt("BCRYPT_COST", bcrypt.DefaultCost),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("%w: JWT_SECRET_KEY is required", ErrInvalidConfig)
	}
	switch c.Auth.Algorithm {
	case jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg():
	default:
		return fmt.Errorf("%w: unsupported JWT_ALGORITHM %q", ErrInvalidConfig, c.Auth.Algorithm)
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("%w: ACCESS_TOKEN_EXPIRE_MINUTES must be positive", ErrInvalidConfig)
	}
	if c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("%w: REFRESH_TOKEN_EXPIRE_DAYS must be positive", ErrInvalidConfig)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: BCRYPT_COST must be between %d and %d", ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.StorageBackend {
	case StorageMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("%w: MONGODB_URI and DATABASE_NAME are required", ErrInvalidConfig)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("%w: unknown STORAGE_BACKEND %q", ErrInvalidConfig, c.StorageBackend)
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid int in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid bool in environment, using default", "key", key, "value", v)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func splitOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
