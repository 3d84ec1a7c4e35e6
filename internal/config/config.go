package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Database，为空时不记录历史
	DatabaseURL string

	// Teslemetry API
	APIHost     string
	AccessToken string

	// Token 存储路径，通过 API 更新的 token 会写入此文件
	TokenFile string

	// Polling
	VehicleInterval      time.Duration
	VehicleSleepInterval time.Duration
	SleepAfterIdle       time.Duration
	SleepRearmAfter      time.Duration
	EnergyLiveInterval   time.Duration
	EnergyInfoInterval   time.Duration

	// Wake
	WakeStep   time.Duration
	WakeBudget time.Duration

	// MQTT，Broker 为空时不发布
	MQTTBroker    string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopicRoot string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("PORT", "4000"),
		Debug:                getEnvBool("DEBUG", false),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		APIHost:              getEnv("TESLEMETRY_API_HOST", "https://api.teslemetry.com"),
		AccessToken:          getEnv("TESLEMETRY_ACCESS_TOKEN", ""),
		TokenFile:            getEnv("TOKEN_FILE", "token.json"),
		VehicleInterval:      getEnvDuration("VEHICLE_INTERVAL", 30*time.Second),
		VehicleSleepInterval: getEnvDuration("VEHICLE_SLEEP_INTERVAL", 15*time.Minute),
		SleepAfterIdle:       getEnvDuration("SLEEP_AFTER_IDLE", 15*time.Minute),
		SleepRearmAfter:      getEnvDuration("SLEEP_REARM_AFTER", 20*time.Minute),
		EnergyLiveInterval:   getEnvDuration("ENERGY_LIVE_INTERVAL", 30*time.Second),
		EnergyInfoInterval:   getEnvDuration("ENERGY_INFO_INTERVAL", 30*time.Second),
		WakeStep:             getEnvDuration("WAKE_STEP", 5*time.Second),
		WakeBudget:           getEnvDuration("WAKE_BUDGET", 30*time.Second),
		MQTTBroker:           getEnv("MQTT_BROKER", ""),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", "tesbridge"),
		MQTTUsername:         getEnv("MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("MQTT_PASSWORD", ""),
		MQTTTopicRoot:        getEnv("MQTT_TOPIC_ROOT", "tesbridge"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
