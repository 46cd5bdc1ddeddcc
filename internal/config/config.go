package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL string // base websocket URL of the detection service, e.g. ws://localhost:8000/api/v1
	Token     string // bearer credential passed at connect time

	CameraDevice int
	FrameWidth   int
	FrameHeight  int
	JPEGQuality  int

	CatalogFrameInterval int // ms between frames for catalog / cart scanning
	PickFrameInterval    int // ms between frames while picking (faster)

	ReconnectAttempts int // retries after an unexpected close
	ReconnectDelay    int // ms between retries
	HandshakeTimeout  int // ms budget for the websocket handshake

	DatabasePath string // product catalog used by the mock detection service
	MockPort     int
	DetectEvery  int // mock service fabricates a detection every Nth frame

	LogDirectory string
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		ServerURL: getEnv("SERVER_URL", "ws://localhost:8000/api/v1"),
		Token:     getEnv("ACCESS_TOKEN", ""),

		CameraDevice: getEnvAsInt("CAMERA_DEVICE", 0),
		FrameWidth:   getEnvAsInt("FRAME_WIDTH", 1280),
		FrameHeight:  getEnvAsInt("FRAME_HEIGHT", 720),
		JPEGQuality:  getEnvAsInt("JPEG_QUALITY", 80),

		CatalogFrameInterval: getEnvAsInt("CATALOG_FRAME_INTERVAL", 300),
		PickFrameInterval:    getEnvAsInt("PICK_FRAME_INTERVAL", 200),

		ReconnectAttempts: getEnvAsInt("RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:    getEnvAsInt("RECONNECT_DELAY", 2000),
		HandshakeTimeout:  getEnvAsInt("HANDSHAKE_TIMEOUT", 10000),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(".", "products.db")),
		MockPort:     getEnvAsInt("MOCK_PORT", 8000),
		DetectEvery:  getEnvAsInt("DETECT_EVERY", 5),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
