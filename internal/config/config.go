// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"repcount/internal/capture"
	"repcount/internal/frame"
	"repcount/internal/pose"
)

type Config struct {
	HTTPAddr string

	CameraDevice   string
	CameraWidth    int
	CameraHeight   int
	CameraFPS      int
	CaptureBackend string

	PoseBackend  string
	PoseEndpoint string
	PoseScript   string
	PosePython   string
	PoseTimeout  time.Duration

	UploadDir      string
	OutputDir      string
	JPEGQuality    int
	ReportsEnabled bool
}

// Capture returns the capture backend settings.
func (c *Config) Capture() capture.Config {
	return capture.Config{
		Backend: c.CaptureBackend,
		Width:   c.CameraWidth,
		Height:  c.CameraHeight,
		FPS:     c.CameraFPS,
		Quality: c.JPEGQuality,
	}
}

// Pose returns the pose backend settings.
func (c *Config) Pose() pose.Config {
	return pose.Config{
		Backend:  c.PoseBackend,
		Endpoint: c.PoseEndpoint,
		Script:   c.PoseScript,
		Python:   c.PosePython,
		Timeout:  c.PoseTimeout,
	}
}

// Load reads a .env file from the working directory, if present, and then
// the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] Ignoring .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
		CameraDevice:   getEnv("CAMERA_DEVICE", "0"),
		CameraWidth:    getEnvInt("CAMERA_WIDTH", 640),
		CameraHeight:   getEnvInt("CAMERA_HEIGHT", 480),
		CameraFPS:      getEnvInt("CAMERA_FPS", 15),
		CaptureBackend: strings.ToLower(getEnv("CAPTURE_BACKEND", "ffmpeg")),
		PoseBackend:    strings.ToLower(getEnv("POSE_BACKEND", pose.BackendMediaPipe)),
		PoseEndpoint:   getEnv("POSE_ENDPOINT", ""),
		PoseScript:     getEnv("POSE_SCRIPT", ""),
		PosePython:     getEnv("POSE_PYTHON", "python3"),
		PoseTimeout:    getEnvDuration("POSE_TIMEOUT", 5*time.Second),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:      getEnv("OUTPUT_DIR", "outputs"),
		JPEGQuality:    getEnvInt("JPEG_QUALITY", frame.DefaultQuality),
		ReportsEnabled: getEnvBool("REPORTS_ENABLED", true),
	}

	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		log.Printf("[Config] JPEG_QUALITY %d out of range, using %d", cfg.JPEGQuality, frame.DefaultQuality)
		cfg.JPEGQuality = frame.DefaultQuality
	}
	if (cfg.PoseBackend == pose.BackendHTTP || cfg.PoseBackend == pose.BackendGRPC) && cfg.PoseEndpoint == "" {
		log.Printf("[Config] WARNING: POSE_BACKEND=%s requires POSE_ENDPOINT", cfg.PoseBackend)
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("750ms") and plain seconds ("5").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
