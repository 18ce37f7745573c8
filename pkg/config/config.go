package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/code-100-precent/wallace/pkg/logger"
	"github.com/joho/godotenv"
)

// EnvPrefix 环境变量前缀，覆盖格式为 WALLACE_<SECTION>__<FIELD>
const EnvPrefix = "WALLACE_"

// Config main configuration structure
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	ASR      ASRConfig        `mapstructure:"asr"`
	LLM      LLMConfig        `mapstructure:"llm"`
	TTS      TTSConfig        `mapstructure:"tts"`
	MQTT     MQTTConfig       `mapstructure:"mqtt"`
	Care     CareConfig       `mapstructure:"care"`
	Sensor   SensorConfig     `mapstructure:"sensor"`
	Weather  WeatherConfig    `mapstructure:"weather"`
	Wakeword WakewordConfig   `mapstructure:"wakeword"`
	Log      logger.LogConfig `mapstructure:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Addr             string        `env:"SERVER__ADDR"`
	Mode             string        `env:"SERVER__MODE"`
	DataDir          string        `env:"SERVER__DATA_DIR"`
	MemSyncInterval  time.Duration `env:"SERVER__MEM_SYNC_INTERVAL"`
	HeartbeatTimeout time.Duration `env:"SERVER__HEARTBEAT_TIMEOUT"`
}

// ASRConfig speech recognition configuration
type ASRConfig struct {
	BaseURL      string        `env:"ASR__BASE_URL"`
	Language     string        `env:"ASR__LANGUAGE"`
	VADThreshold float64       `env:"ASR__VAD_THRESHOLD"`
	Timeout      time.Duration `env:"ASR__TIMEOUT"`
}

// LLMConfig LLM service configuration
type LLMConfig struct {
	BaseURL             string  `env:"LLM__BASE_URL"`
	APIKey              string  `env:"LLM__API_KEY"`
	Model               string  `env:"LLM__MODEL"`
	Temperature         float64 `env:"LLM__TEMPERATURE"`
	MaxTokens           int     `env:"LLM__MAX_TOKENS"`
	MaxHistoryTurns     int     `env:"LLM__MAX_HISTORY_TURNS"`
	HealthCheckInterval int     `env:"LLM__HEALTH_CHECK_INTERVAL"`
}

// TTSConfig speech synthesis configuration
type TTSConfig struct {
	DefaultBackend string `env:"TTS__DEFAULT_BACKEND"`
	EdgeVoice      string `env:"TTS__EDGE_VOICE"`
	CosyVoiceURL   string `env:"TTS__COSYVOICE_URL"`
	CosyVoiceVoice string `env:"TTS__COSYVOICE_VOICE"`
}

// MQTTConfig smart-home broker configuration
type MQTTConfig struct {
	Broker            string `env:"MQTT__BROKER"`
	Port              int    `env:"MQTT__PORT"`
	Username          string `env:"MQTT__USERNAME"`
	Password          string `env:"MQTT__PASSWORD"`
	TopicPrefix       string `env:"MQTT__TOPIC_PREFIX"`
	ReconnectInterval int    `env:"MQTT__RECONNECT_INTERVAL"`
}

// CareConfig proactive care configuration
type CareConfig struct {
	SedentaryIntervalHours int    `env:"CARE__SEDENTARY_INTERVAL_HOURS"`
	MorningTime            string `env:"CARE__MORNING_TIME"`
	EveningTime            string `env:"CARE__EVENING_TIME"`
	PushTimeout            int    `env:"CARE__PUSH_TIMEOUT"`
}

// SensorConfig sensor threshold configuration
type SensorConfig struct {
	AlertCooldown       int     `env:"SENSOR__ALERT_COOLDOWN"`
	AirQualityThreshold float64 `env:"SENSOR__AIR_QUALITY_THRESHOLD"`
	LightDarkThreshold  float64 `env:"SENSOR__LIGHT_DARK_THRESHOLD"`
	TempHigh            float64 `env:"SENSOR__TEMP_HIGH"`
	TempLow             float64 `env:"SENSOR__TEMP_LOW"`
}

// WakewordConfig 唤醒词二次确认配置
type WakewordConfig struct {
	BaseURL   string  `env:"WAKEWORD__BASE_URL"`
	Threshold float64 `env:"WAKEWORD__THRESHOLD"`
}

// WeatherConfig weather provider configuration
type WeatherConfig struct {
	APIURL string `env:"WEATHER__API_URL"`
	APIKey string `env:"WEATHER__API_KEY"`
	City   string `env:"WEATHER__CITY"`
}

var GlobalConfig *Config

// Load 加载配置：.env 文件可选，环境变量覆盖默认值
func Load() error {
	if err := godotenv.Load(); err != nil {
		// .env 不存在时使用默认值，不影响启动
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		Server: ServerConfig{
			Addr:             getStringOrDefault("SERVER__ADDR", ":8000"),
			Mode:             getStringOrDefault("SERVER__MODE", "development"),
			DataDir:          getStringOrDefault("SERVER__DATA_DIR", "./data"),
			MemSyncInterval:  parseDuration(getStringOrDefault("SERVER__MEM_SYNC_INTERVAL", "5m"), 5*time.Minute),
			HeartbeatTimeout: parseDuration(getStringOrDefault("SERVER__HEARTBEAT_TIMEOUT", "90s"), 90*time.Second),
		},
		ASR: ASRConfig{
			BaseURL:      getStringOrDefault("ASR__BASE_URL", "http://localhost:9000"),
			Language:     getStringOrDefault("ASR__LANGUAGE", "zh"),
			VADThreshold: getFloatOrDefault("ASR__VAD_THRESHOLD", 0.5),
			Timeout:      parseDuration(getStringOrDefault("ASR__TIMEOUT", "30s"), 30*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:             getStringOrDefault("LLM__BASE_URL", "http://localhost:11434"),
			APIKey:              getStringOrDefault("LLM__API_KEY", "ollama"),
			Model:               getStringOrDefault("LLM__MODEL", "deepseek-r1:8b"),
			Temperature:         getFloatOrDefault("LLM__TEMPERATURE", 0.7),
			MaxTokens:           getIntOrDefault("LLM__MAX_TOKENS", 512),
			MaxHistoryTurns:     getIntOrDefault("LLM__MAX_HISTORY_TURNS", 10),
			HealthCheckInterval: getIntOrDefault("LLM__HEALTH_CHECK_INTERVAL", 60),
		},
		TTS: TTSConfig{
			DefaultBackend: getStringOrDefault("TTS__DEFAULT_BACKEND", "edge"),
			EdgeVoice:      getStringOrDefault("TTS__EDGE_VOICE", "zh-CN-XiaoxiaoNeural"),
			CosyVoiceURL:   getStringOrDefault("TTS__COSYVOICE_URL", "http://localhost:9880"),
			CosyVoiceVoice: getStringOrDefault("TTS__COSYVOICE_VOICE", "default"),
		},
		MQTT: MQTTConfig{
			Broker:            getStringOrDefault("MQTT__BROKER", "localhost"),
			Port:              getIntOrDefault("MQTT__PORT", 1883),
			Username:          getStringOrDefault("MQTT__USERNAME", ""),
			Password:          getStringOrDefault("MQTT__PASSWORD", ""),
			TopicPrefix:       getStringOrDefault("MQTT__TOPIC_PREFIX", "wallace/home"),
			ReconnectInterval: getIntOrDefault("MQTT__RECONNECT_INTERVAL", 5),
		},
		Care: CareConfig{
			SedentaryIntervalHours: getIntOrDefault("CARE__SEDENTARY_INTERVAL_HOURS", 2),
			MorningTime:            getStringOrDefault("CARE__MORNING_TIME", "07:30"),
			EveningTime:            getStringOrDefault("CARE__EVENING_TIME", "22:00"),
			PushTimeout:            getIntOrDefault("CARE__PUSH_TIMEOUT", 30),
		},
		Sensor: SensorConfig{
			AlertCooldown:       getIntOrDefault("SENSOR__ALERT_COOLDOWN", 300),
			AirQualityThreshold: getFloatOrDefault("SENSOR__AIR_QUALITY_THRESHOLD", 200),
			LightDarkThreshold:  getFloatOrDefault("SENSOR__LIGHT_DARK_THRESHOLD", 50),
			TempHigh:            getFloatOrDefault("SENSOR__TEMP_HIGH", 35),
			TempLow:             getFloatOrDefault("SENSOR__TEMP_LOW", 10),
		},
		Wakeword: WakewordConfig{
			BaseURL:   getStringOrDefault("WAKEWORD__BASE_URL", "http://localhost:9001"),
			Threshold: getFloatOrDefault("WAKEWORD__THRESHOLD", 0.5),
		},
		Weather: WeatherConfig{
			APIURL: getStringOrDefault("WEATHER__API_URL", "https://api.seniverse.com/v3/weather/now.json"),
			APIKey: getStringOrDefault("WEATHER__API_KEY", ""),
			City:   getStringOrDefault("WEATHER__CITY", "beijing"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG__LEVEL", "info"),
			Filename:   getStringOrDefault("LOG__FILENAME", "./logs/wallace.log"),
			MaxSize:    getIntOrDefault("LOG__MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG__MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG__MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG__DAILY", true),
		},
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm base url is required")
	}
	if c.TTS.DefaultBackend != "edge" && c.TTS.DefaultBackend != "cosyvoice" {
		return errors.New("tts default backend must be edge or cosyvoice")
	}
	if c.LLM.MaxHistoryTurns <= 0 {
		return errors.New("llm max history turns must be positive")
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

// getFloatOrDefault gets float environment variable value, returns default if empty
func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
