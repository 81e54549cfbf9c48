package config

import "os"

type Config struct {
	Port string

	// Kafka / event relay
	KafkaBootstrapServer string
	KafkaAPIKey          string
	KafkaAPISecret       string
	KafkaTopic           string
	KafkaConsumerGroup   string

	AllowedOrigins string

	// Room token issuance
	RoomTokenSecret     string
	RoomTokenTTLSeconds string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		KafkaBootstrapServer: getEnv("KAFKA_BOOTSTRAP_SERVER", ""),
		KafkaAPIKey:          getEnv("KAFKA_API_KEY", ""),
		KafkaAPISecret:       getEnv("KAFKA_API_SECRET", ""),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "studygloqe-quiz-events"),
		KafkaConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "studygloqe-web-clients"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),

		RoomTokenSecret:     getEnv("ROOM_TOKEN_SECRET", "dev-secret-change-in-prod"),
		RoomTokenTTLSeconds: getEnv("ROOM_TOKEN_TTL_SECONDS", "3600"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
