package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every tunable the components need. It is built once by
// Load and passed into constructors explicitly; no component reads the
// process environment directly.
type Config struct {
	Server   ServerConfig
	Ledger   LedgerConfig
	Image    ImageConfig
	Analysis AnalysisConfig
	Folders  FolderConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Env       string
	Version   string
	UpdateURL string
}

type LedgerConfig struct {
	// Separator is the CSV field separator (single rune).
	Separator string
	// DecimalSeparator is applied to price columns on save ("." or ",").
	DecimalSeparator string
	// CustomColumns are appended after the fixed schema, preserved but
	// never interpreted.
	CustomColumns []string
	// IncludeThumbnail controls the image_thumbnail column.
	IncludeThumbnail bool
}

type ImageConfig struct {
	ThumbnailMaxWidth    int
	ThumbnailMaxHeight   int
	ThumbnailJPEGQuality int

	CompressionMaxKB         int
	CompressionInitialMaxDim int
	CompressionStartQuality  int
	CompressionQualityStep   int
	CompressionMinQuality    int
}

type AnalysisConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	// TimeoutSeconds bounds a single analysis call; the batch loop is only
	// cancellable between calls.
	TimeoutSeconds int
	// ReliabilityThreshold is the confidence score below which the
	// low-confidence action applies.
	ReliabilityThreshold int
	// LowConfidenceAction is "flag", "move" or "ask".
	LowConfidenceAction string
}

type FolderConfig struct {
	Processed    string
	ManualReview string
	Retake       string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// Load reads .env plus the environment and returns the populated config.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Env:       getEnv("ENV", "development"),
			Version:   getEnv("APP_VERSION", "1.0.0"),
			UpdateURL: getEnv("UPDATE_CHECK_URL", ""),
		},
		Ledger: LedgerConfig{
			Separator:        getEnv("CSV_SEPARATOR", ","),
			DecimalSeparator: getEnv("CSV_DECIMAL", "."),
			CustomColumns:    splitList(getEnv("ADDITIONAL_CSV_COLUMNS", "")),
			IncludeThumbnail: getBool("INCLUDE_IMAGE_BASE64", true),
		},
		Image: ImageConfig{
			ThumbnailMaxWidth:        getInt("THUMBNAIL_MAX_WIDTH", 300),
			ThumbnailMaxHeight:       getInt("THUMBNAIL_MAX_HEIGHT", 300),
			ThumbnailJPEGQuality:     getInt("THUMBNAIL_JPEG_QUALITY", 70),
			CompressionMaxKB:         getInt("COMPRESSION_MAX_SIZE_KB", 250),
			CompressionInitialMaxDim: getInt("COMPRESSION_INITIAL_MAX_DIM", 2000),
			CompressionStartQuality:  getInt("COMPRESSION_START_QUALITY", 85),
			CompressionQualityStep:   getInt("COMPRESSION_QUALITY_STEP", 10),
			CompressionMinQuality:    getInt("COMPRESSION_MIN_QUALITY", 20),
		},
		Analysis: AnalysisConfig{
			APIKey:               getEnv("GEMINI_API_KEY", ""),
			Model:                getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Endpoint:             getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			TimeoutSeconds:       getInt("ANALYSIS_TIMEOUT_SECONDS", 120),
			ReliabilityThreshold: getInt("RELIABILITY_THRESHOLD", 85),
			LowConfidenceAction:  getEnv("LOW_CONFIDENCE_ACTION", "move"),
		},
		Folders: FolderConfig{
			Processed:    getEnv("PROCESSED_FOLDER", "processed"),
			ManualReview: getEnv("MANUAL_REVIEW_FOLDER", "manual_review"),
			Retake:       getEnv("RETAKE_FOLDER", "a_refaire"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}

	log.Printf("Config loaded: env=%s, model=%s, threshold=%d",
		cfg.Server.Env, cfg.Analysis.Model, cfg.Analysis.ReliabilityThreshold)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getBool(key string, defaultVal bool) bool {
	val := strings.ToLower(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "t"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
