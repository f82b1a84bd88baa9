package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Storage StorageConfig `mapstructure:"storage"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Render  RenderConfig  `mapstructure:"render"`
	Lock    LockConfig    `mapstructure:"lock"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"` // 草稿（Edit Batch）的过期时间
}

type StorageConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

type UploadConfig struct {
	MaxSize         int64    `mapstructure:"max_size"`
	AllowedSuffixes []string `mapstructure:"allowed_suffixes"`
}

type RenderConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	QueueTimeout  int    `mapstructure:"queue_timeout"`
	PreviewWidth  int    `mapstructure:"preview_width"`
	PreviewFormat string `mapstructure:"preview_format"` // png 或 webp
	CheckerSize   int    `mapstructure:"checker_size"`
}

// LockConfig 图片锁。锁在渲染排队之后才获取，TTL 只需覆盖一次保存的渲染与写入
type LockConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Wait          time.Duration `mapstructure:"wait"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("storage.root_dir", d.Storage.RootDir)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_suffixes", d.Upload.AllowedSuffixes)

	v.SetDefault("render.max_concurrent", d.Render.MaxConcurrent)
	v.SetDefault("render.queue_timeout", d.Render.QueueTimeout)
	v.SetDefault("render.preview_width", d.Render.PreviewWidth)
	v.SetDefault("render.preview_format", d.Render.PreviewFormat)
	v.SetDefault("render.checker_size", d.Render.CheckerSize)

	v.SetDefault("lock.ttl", d.Lock.TTL)
	v.SetDefault("lock.wait", d.Lock.Wait)
	v.SetDefault("lock.retry_interval", d.Lock.RetryInterval)
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Storage: StorageConfig{
			RootDir: "./data",
		},
		Upload: UploadConfig{
			MaxSize:         20 * 1024 * 1024,
			AllowedSuffixes: []string{".jpg", ".png", ".sgbdi"},
		},
		Render: RenderConfig{
			MaxConcurrent: 4,
			QueueTimeout:  30,
			PreviewWidth:  250,
			PreviewFormat: "png",
			CheckerSize:   50,
		},
		Lock: LockConfig{
			TTL:           30 * time.Second,
			Wait:          10 * time.Second,
			RetryInterval: 100 * time.Millisecond,
		},
	}
}
