package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	ControlToken   string
	LogDirectory   string
	DetectionLog   string
	DBPath         string
	ImageDirectory string
	ThumbWidth     int
	MaxImageDirGB  int64
	ShutdownGrace  time.Duration

	CameraDevice   string
	CameraName     string
	CameraWidth    int
	CameraHeight   int
	CameraFPS      int
	StartupTimeout time.Duration
	IdleTimeout    time.Duration
	ShowWindow     bool

	ModelPath   string
	ConfigPath  string
	Classes     []string
	Confidence  float64
	DetectScale float64
	MinBoxArea  float64
	Tracking    bool
	FrameSkip   int

	MotionMask    bool
	Sensitivity   int
	Brightness    float64
	BrightnessMin float64
	BrightnessMax float64
	Contrast      float64
	Gamma         float64

	SoundEnabled     bool
	NotifyEnabled    bool
	SoundFile        string
	SoundCommand     string
	SoundCooldown    time.Duration
	SnapshotCooldown time.Duration
	MessageTTL       time.Duration

	TelegramToken  string
	TelegramChatID string
	MQTTBroker     string
	MQTTClientID   string
	MQTTTopic      string
	KafkaBrokers   string
	KafkaTopic     string
}

// Load reads the configuration from the environment, after merging any .env
// files given (missing files are ignored).
func Load(envFiles ...string) *Config {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	return &Config{
		Port:           getEnvAsInt("PORT", 8080),
		ControlToken:   getEnv("CONTROL_TOKEN", ""),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DetectionLog:   getEnv("DETECTION_LOG", filepath.Join(".", "logs", "detections.log")),
		DBPath:         getEnv("DB_PATH", filepath.Join(".", "data", "camwatch.db")),
		ImageDirectory: getEnv("IMAGE_DIR", filepath.Join(".", "snapshots")),
		ThumbWidth:     getEnvAsInt("THUMB_WIDTH", 160),
		MaxImageDirGB:  getEnvAsInt64("MAX_IMAGE_DIRECTORY_SIZE", 4),
		ShutdownGrace:  getEnvAsDuration("SHUTDOWN_GRACE", 3*time.Second),

		CameraDevice:   getEnv("CAMERA_DEVICE", "0"),
		CameraName:     getEnv("CAMERA_NAME", "local"),
		CameraWidth:    getEnvAsInt("CAMERA_WIDTH", 640),
		CameraHeight:   getEnvAsInt("CAMERA_HEIGHT", 480),
		CameraFPS:      getEnvAsInt("CAMERA_FPS", 30),
		StartupTimeout: getEnvAsDuration("STARTUP_TIMEOUT", 5*time.Second),
		IdleTimeout:    getEnvAsDuration("CAMERA_IDLE_TIMEOUT", 10*time.Second),
		ShowWindow:     getEnvAsBool("SHOW_WINDOW", true),

		ModelPath:   getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:  getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		Classes:     getEnvAsList("DETECT_CLASSES", []string{"person", "car", "dog", "cat"}),
		Confidence:  getEnvAsFloat("CONFIDENCE", 0.5),
		DetectScale: getEnvAsFloat("DETECT_SCALE", 0.5),
		MinBoxArea:  getEnvAsFloat("MIN_BOX_AREA", 1000),
		Tracking:    getEnvAsBool("TRACKING", true),
		FrameSkip:   getEnvAsInt("FRAME_SKIP", 2), // fast mode submits every Nth frame

		MotionMask:    getEnvAsBool("MOTION_MASK", true),
		Sensitivity:   getEnvAsInt("SENSITIVITY", 50),
		Brightness:    getEnvAsFloat("BRIGHTNESS", 1.0),
		BrightnessMin: getEnvAsFloat("BRIGHTNESS_MIN", 0.5),
		BrightnessMax: getEnvAsFloat("BRIGHTNESS_MAX", 1.5),
		Contrast:      getEnvAsFloat("CONTRAST", 1.0),
		Gamma:         getEnvAsFloat("GAMMA", 1.0),

		SoundEnabled:     getEnvAsBool("SOUND_ENABLED", false),
		NotifyEnabled:    getEnvAsBool("NOTIFY_ENABLED", false),
		SoundFile:        getEnv("SOUND_FILE", "beep.wav"),
		SoundCommand:     getEnv("SOUND_COMMAND", "aplay -q"),
		SoundCooldown:    getEnvAsDuration("SOUND_COOLDOWN", 1500*time.Millisecond),
		SnapshotCooldown: getEnvAsDuration("SNAPSHOT_COOLDOWN", 333*time.Millisecond),
		MessageTTL:       getEnvAsDuration("MESSAGE_TTL", 2*time.Second),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		MQTTBroker:     getEnv("MQTT_BROKER", ""),
		MQTTClientID:   getEnv("MQTT_CLIENT_ID", "camwatch"),
		MQTTTopic:      getEnv("MQTT_TOPIC", "camwatch/alerts"),
		KafkaBrokers:   getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "camwatch.alerts"),
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1.5s") or plain seconds ("1.5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
