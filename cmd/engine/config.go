package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	"github.com/JADDOU3/NexusQuest-sub002/internal/runtime/docker"
)

const (
	defaultKafkaBrokers      = "kafka:9092"
	defaultKafkaTopic        = "execution-requests"
	defaultKafkaReportsTopic = "execution-reports"
	defaultKafkaGroupID      = "nexusquest-engine"
)

type appConfig struct {
	DemoMode      bool
	KafkaBrokers  []string
	RequestsTopic string
	ReportsTopic  string
	GroupID       string
	MaxRequests   int
	MaxParallel   int
	IdleTimeout   time.Duration
	ReapInterval  time.Duration
}

func loadAppConfig() appConfig {
	return appConfig{
		DemoMode:      parseBool(os.Getenv("ENGINE_DEMO")),
		KafkaBrokers:  parseBrokerList(envOrDefault("KAFKA_BROKERS", defaultKafkaBrokers)),
		RequestsTopic: envOrDefault("KAFKA_REQUESTS_TOPIC", defaultKafkaTopic),
		ReportsTopic:  envOrDefault("KAFKA_REPORTS_TOPIC", defaultKafkaReportsTopic),
		GroupID:       envOrDefault("KAFKA_GROUP_ID", defaultKafkaGroupID),
		MaxRequests:   parseMaxRequests(os.Getenv("ENGINE_EXPECTED_REQUESTS")),
		MaxParallel:   parseMaxParallel(os.Getenv("ENGINE_MAX_PARALLEL")),
		IdleTimeout:   parseDuration(os.Getenv("ENGINE_SESSION_IDLE_TIMEOUT"), 10*time.Minute),
		ReapInterval:  parseDuration(os.Getenv("ENGINE_SESSION_REAP_INTERVAL"), time.Minute),
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parseMaxRequests(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}

func parseMaxParallel(raw string) int {
	if raw == "" {
		return 1
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}

func dockerConfigFromEnv() docker.Config {
	return docker.Config{
		DefaultLimits: execution.RunLimits{
			TimeLimit:        parseDuration(os.Getenv("ENGINE_TIME_LIMIT"), 30*time.Second),
			MemoryLimitBytes: parseBytes(os.Getenv("ENGINE_MEMORY_LIMIT")),
			PidsLimit:        parseBytes(os.Getenv("ENGINE_PIDS_LIMIT")),
		},
		InstallTimeout: parseDuration(os.Getenv("ENGINE_INSTALL_TIMEOUT"), 0),
		CompileTimeout: parseDuration(os.Getenv("ENGINE_COMPILE_TIMEOUT"), 0),
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
