package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Jobs    JobsConfig
	Worker  WorkerConfig
	Engine  EngineConfig
	FFmpeg  FFmpegConfig
}

type ServerConfig struct {
	Port     string
	LogLevel string
}

type StorageConfig struct {
	UploadDir string
	OutputDir string
}

type JobsConfig struct {
	TTL     time.Duration
	MaxJobs int
}

type WorkerConfig struct {
	Concurrency int
	QueueSize   int
}

type EngineConfig struct {
	ServiceURL    string
	Timeout       int // seconds
	DefaultDevice string
}

type FFmpegConfig struct {
	Path string // empty means look up "ffmpeg" on PATH
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.output_dir", "OUTPUT_DIR")
	_ = viper.BindEnv("jobs.ttl_seconds", "JOB_TTL_SECONDS")
	_ = viper.BindEnv("jobs.max", "MAX_JOBS")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("worker.queue_size", "WORKER_QUEUE_SIZE")
	_ = viper.BindEnv("engine.service_url", "ENGINE_SERVICE_URL")
	_ = viper.BindEnv("engine.timeout", "ENGINE_TIMEOUT")
	_ = viper.BindEnv("engine.default_device", "ENGINE_DEFAULT_DEVICE")
	_ = viper.BindEnv("ffmpeg.path", "FFMPEG_PATH")

	// Defaults
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.output_dir", "outputs")
	viper.SetDefault("jobs.ttl_seconds", 3600)
	viper.SetDefault("jobs.max", 500)
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.queue_size", 64)

	// Engine defaults: the XTTS inference sidecar shares the local filesystem
	viper.SetDefault("engine.service_url", "http://localhost:8020")
	viper.SetDefault("engine.timeout", 300)
	viper.SetDefault("engine.default_device", "")

	viper.SetDefault("ffmpeg.path", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Storage: StorageConfig{
			UploadDir: viper.GetString("storage.upload_dir"),
			OutputDir: viper.GetString("storage.output_dir"),
		},
		Jobs: JobsConfig{
			TTL:     time.Duration(viper.GetInt("jobs.ttl_seconds")) * time.Second,
			MaxJobs: viper.GetInt("jobs.max"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
			QueueSize:   viper.GetInt("worker.queue_size"),
		},
		Engine: EngineConfig{
			ServiceURL:    viper.GetString("engine.service_url"),
			Timeout:       viper.GetInt("engine.timeout"),
			DefaultDevice: viper.GetString("engine.default_device"),
		},
		FFmpeg: FFmpegConfig{
			Path: viper.GetString("ffmpeg.path"),
		},
	}

	return cfg, nil
}
