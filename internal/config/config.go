package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Garage   GarageConfig
	Vision   VisionConfig
	Limiter  LimiterConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type GarageConfig struct {
	// Rows is the number of tandem pairs; the garage holds 2*Rows spots.
	Rows int
}

type VisionConfig struct {
	DetectorURL string
	PlateOCRURL string
	Timeout     time.Duration
	// RequestsPerSecond throttles outbound calls to the metered vision APIs.
	RequestsPerSecond float64
}

type LimiterConfig struct {
	// DetectionsPerMinute caps detection uploads per client IP.
	DetectionsPerMinute int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	rows, err := intEnv("GARAGE_ROWS", 5)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rows < 1 {
		return nil, fmt.Errorf("%s: GARAGE_ROWS must be at least 1", op)
	}

	detectorURL := os.Getenv("VISION_DETECTOR_URL")
	if detectorURL == "" {
		return nil, fmt.Errorf("%s: missing VISION_DETECTOR_URL", op)
	}

	plateURL := os.Getenv("VISION_PLATE_OCR_URL")
	if plateURL == "" {
		return nil, fmt.Errorf("%s: missing VISION_PLATE_OCR_URL", op)
	}

	visionTimeoutSec, err := intEnv("VISION_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	visionRPS := 2.0
	if v := os.Getenv("VISION_REQUESTS_PER_SEC"); v != "" {
		visionRPS, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid VISION_REQUESTS_PER_SEC: %w", op, err)
		}
	}

	detectionsPerMinute, err := intEnv("DETECTIONS_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Garage:   GarageConfig{Rows: rows},
		Vision: VisionConfig{
			DetectorURL:       detectorURL,
			PlateOCRURL:       plateURL,
			Timeout:           time.Duration(visionTimeoutSec) * time.Second,
			RequestsPerSecond: visionRPS,
		},
		Limiter: LimiterConfig{DetectionsPerMinute: detectionsPerMinute},
	}, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
