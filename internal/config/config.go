package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database is optional; without DATABASE_URL sessions live in memory and
	// feedback routes are disabled.
	DatabaseURL      string
	BunDebug         bool
	SessionBackend   string // memory | postgres
	SessionCacheSize int

	// JWT verification of agent layer calls. With a private key the server
	// can sign tokens too, and in development it prints one at startup.
	AuthEnabled       bool
	JWTPublicKeyPath  string
	JWTPrivateKeyPath string
	JWTIssuer         string

	AllowedOrigins []string

	// CAR registry
	SICARBaseURL     string
	SICARTimeout     time.Duration
	SICARInsecureTLS bool

	// Raster provider. Without a base URL the in-process grid engine is used.
	RasterBaseURL     string
	RasterAPIKey      string
	RasterTimeout     time.Duration
	RasterScaleMeters float64
	RasterGridDir     string
	AssetBiomass      string
	AssetAge          string
	AssetVigor        string
	AssetLandCover    string

	PreviewEnabled  bool
	PreviewTileSize int
}

// Load loads environment variables and returns a Config struct
func Load() *Config {
	_ = godotenv.Load()

	// Parse allowed origins from env (comma-separated)
	allowedOrigins := strings.Split(
		getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8501"),
		",",
	)
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	return &Config{
		Port:             getEnv("APP_PORT", "8780"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogLevel:         getEnv("LOG_LEVEL", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		BunDebug:         getEnvAsBool("BUNDEBUG", false),
		SessionBackend:   strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		SessionCacheSize: getEnvAsInt("SESSION_CACHE_SIZE", 1024),

		AuthEnabled:       getEnvAsBool("AUTH_ENABLED", false),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "keys/jwt_public.pem"),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "pasto-legal"),

		AllowedOrigins: allowedOrigins,

		SICARBaseURL:     getEnv("SICAR_BASE_URL", "https://consultapublica.car.gov.br/publico/imoveis"),
		SICARTimeout:     getEnvAsDuration("SICAR_TIMEOUT", 5*time.Second),
		SICARInsecureTLS: getEnvAsBool("SICAR_INSECURE_TLS", true),

		RasterBaseURL:     getEnv("RASTER_BASE_URL", ""),
		RasterAPIKey:      getEnv("RASTER_API_KEY", ""),
		RasterTimeout:     getEnvAsDuration("RASTER_TIMEOUT", 60*time.Second),
		RasterScaleMeters: getEnvAsFloat("RASTER_SCALE_METERS", 30),
		RasterGridDir:     getEnv("RASTER_GRID_DIR", ""),
		AssetBiomass:      getEnv("RASTER_ASSET_BIOMASS", "projects/mapbiomas-public/assets/brazil/lulc/collection10/pasture_biomass"),
		AssetAge:          getEnv("RASTER_ASSET_AGE", "projects/mapbiomas-public/assets/brazil/lulc/collection10/pasture_age"),
		AssetVigor:        getEnv("RASTER_ASSET_VIGOR", "projects/mapbiomas-public/assets/brazil/lulc/collection10/pasture_vigor"),
		AssetLandCover:    getEnv("RASTER_ASSET_LULC", "projects/mapbiomas-public/assets/brazil/lulc/collection10/mapbiomas_brazil_collection10_integration_v2"),

		PreviewEnabled:  getEnvAsBool("PREVIEW_ENABLED", true),
		PreviewTileSize: getEnvAsInt("PREVIEW_TILE_SIZE", 256),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("invalid bool for %s, defaulting to %v\n", key, fallback)
		return fallback
	}
	return val
}

func getEnvAsInt(key string, fallback int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("invalid int for %s, defaulting to %v\n", key, fallback)
		return fallback
	}
	return val
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("invalid float for %s, defaulting to %v\n", key, fallback)
		return fallback
	}
	return val
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return fallback
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("invalid duration for %s, defaulting to %v\n", key, fallback)
		return fallback
	}
	return val
}
