package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string

	// Backend connection. The session id and auth mode are opaque header
	// values forwarded to the answer backend untouched.
	BackendURL     string
	APIToken       string
	SessionID      string
	AuthMode       string
	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	// Retrieval options forwarded verbatim to the backend.
	ChunkCount     int
	RankingMode    string
	Streaming      bool
	KnowledgeAgent bool

	// Chat history inclusion.
	UseHistory bool
	HistoryCap int

	NatsURL           string
	NatsToken         string
	MentionSubject    string
	CompletionSubject string
	DatabaseURL       string
	SlackBotToken     string
	SlackAPIURL       string
}

func Load() Config {
	return Config{
		Port:           envInt("SEARCHCHAT_PORT", 8760),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		BackendURL:     envStr("BACKEND_URL", "http://aisearchmm:5000"),
		APIToken:       envStr("BACKEND_API_TOKEN", ""),
		SessionID:      envStr("BACKEND_SESSION_ID", ""),
		AuthMode:       envStr("BACKEND_AUTH_MODE", "managed_identity"),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		StreamTimeout:  envDuration("STREAM_TIMEOUT", 5*time.Minute),
		MaxRetries:     envInt("MAX_RETRIES", 2),
		RetryBackoff:   envDuration("RETRY_BACKOFF", 2*time.Second),

		ChunkCount:     envInt("CHUNK_COUNT", 10),
		RankingMode:    envStr("RANKING_MODE", "hybrid"),
		Streaming:      envBool("STREAMING", true),
		KnowledgeAgent: envBool("USE_KNOWLEDGE_AGENT", false),

		UseHistory: envBool("USE_CHAT_HISTORY", true),
		HistoryCap: envInt("CHAT_HISTORY_CAP", 5),

		NatsURL:           envStr("NATS_URL", "nats://forwarder:4222"),
		NatsToken:         envStr("NATS_TOKEN", ""),
		MentionSubject:    envStr("MENTION_SUBJECT", "chat.slack.mention"),
		CompletionSubject: envStr("COMPLETION_SUBJECT", "chat.searchbot.answered"),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackAPIURL:       envStr("SLACK_API_URL", "https://slack.com/api/chat.postMessage"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
