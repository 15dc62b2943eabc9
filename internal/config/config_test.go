package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SEARCHCHAT_PORT", "LOG_LEVEL", "BACKEND_URL", "BACKEND_AUTH_MODE",
		"REQUEST_TIMEOUT", "STREAM_TIMEOUT", "MAX_RETRIES", "RETRY_BACKOFF",
		"CHUNK_COUNT", "RANKING_MODE", "STREAMING", "USE_KNOWLEDGE_AGENT",
		"USE_CHAT_HISTORY", "CHAT_HISTORY_CAP", "NATS_URL",
		"MENTION_SUBJECT", "COMPLETION_SUBJECT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("expected default port 8760, got %d", cfg.Port)
	}
	if cfg.BackendURL != "http://aisearchmm:5000" {
		t.Errorf("unexpected backend url %q", cfg.BackendURL)
	}
	if cfg.AuthMode != "managed_identity" {
		t.Errorf("unexpected auth mode %q", cfg.AuthMode)
	}
	if cfg.StreamTimeout != 5*time.Minute {
		t.Errorf("expected 5m stream timeout, got %v", cfg.StreamTimeout)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.MaxRetries)
	}
	if cfg.ChunkCount != 10 {
		t.Errorf("expected chunk count 10, got %d", cfg.ChunkCount)
	}
	if cfg.RankingMode != "hybrid" {
		t.Errorf("unexpected ranking mode %q", cfg.RankingMode)
	}
	if !cfg.Streaming {
		t.Error("streaming should default on")
	}
	if !cfg.UseHistory {
		t.Error("chat history should default on")
	}
	if cfg.HistoryCap != 5 {
		t.Errorf("expected history cap 5, got %d", cfg.HistoryCap)
	}
	if cfg.MentionSubject != "chat.slack.mention" {
		t.Errorf("unexpected mention subject %q", cfg.MentionSubject)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SEARCHCHAT_PORT", "9000")
	t.Setenv("BACKEND_URL", "http://localhost:5001")
	t.Setenv("STREAM_TIMEOUT", "90s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("STREAMING", "false")
	t.Setenv("USE_CHAT_HISTORY", "false")
	t.Setenv("CHAT_HISTORY_CAP", "12")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.BackendURL != "http://localhost:5001" {
		t.Errorf("unexpected backend url %q", cfg.BackendURL)
	}
	if cfg.StreamTimeout != 90*time.Second {
		t.Errorf("expected 90s stream timeout, got %v", cfg.StreamTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.MaxRetries)
	}
	if cfg.Streaming {
		t.Error("streaming should be off")
	}
	if cfg.UseHistory {
		t.Error("chat history should be off")
	}
	if cfg.HistoryCap != 12 {
		t.Errorf("expected history cap 12, got %d", cfg.HistoryCap)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SEARCHCHAT_PORT", "not-a-number")
	t.Setenv("STREAM_TIMEOUT", "soon")
	t.Setenv("STREAMING", "definitely")

	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("invalid port should fall back to 8760, got %d", cfg.Port)
	}
	if cfg.StreamTimeout != 5*time.Minute {
		t.Errorf("invalid duration should fall back to 5m, got %v", cfg.StreamTimeout)
	}
	if !cfg.Streaming {
		t.Error("invalid bool should fall back to default")
	}
}
