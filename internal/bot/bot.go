package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/akshata29/aisearchmm-sub000/internal/backend"
	"github.com/akshata29/aisearchmm-sub000/internal/bus"
	"github.com/akshata29/aisearchmm-sub000/internal/chat"
	"github.com/akshata29/aisearchmm-sub000/internal/slack"
	"github.com/akshata29/aisearchmm-sub000/internal/stream"
)

// Timeout guidance differs from failure guidance on purpose: a timed-out
// question may simply need more time, a failed one needs a resubmit.
const (
	timeoutNotice = "That question is taking longer than expected — it may need more time. Please try asking again."
	failureNotice = "I couldn't answer that right now. Please try again."
)

// Asker produces one aggregated answer per question.
type Asker interface {
	Ask(ctx context.Context, question string, opts backend.Options) (backend.Answer, error)
}

// Deduper claims platform event ids so redeliveries are answered once.
type Deduper interface {
	TryClaimDelivery(ctx context.Context, eventID string) (bool, error)
	ReleaseDelivery(ctx context.Context, eventID string) error
}

// Poster posts answers and notices into platform threads.
type Poster interface {
	PostAnswer(ctx context.Context, channel, threadTS, answer string, citations []chat.CitationRecord) (string, error)
	PostNotice(ctx context.Context, channel, threadTS, text string) error
}

// Publisher emits completion events for downstream consumers.
type Publisher interface {
	Publish(subject string, data any) error
}

// Config is the bot's per-question option snapshot.
type Config struct {
	ChunkCount        int
	RankingMode       string
	Streaming         bool
	KnowledgeAgent    bool
	UseHistory        bool
	HistoryCap        int
	CompletionSubject string
}

// Bot answers platform mentions with the retrieval backend: mention in,
// dedupe, ask, threaded answer with numbered sources out.
type Bot struct {
	asker     Asker
	dedupe    Deduper
	poster    Poster
	publisher Publisher
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	history map[string][]chat.Message // per reply thread, capped
}

func New(asker Asker, dedupe Deduper, poster Poster, publisher Publisher, cfg Config, logger *slog.Logger) *Bot {
	return &Bot{
		asker:     asker,
		dedupe:    dedupe,
		poster:    poster,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		history:   make(map[string][]chat.Message),
	}
}

// HandleMention is the NATS handler for forwarded mention events.
func (b *Bot) HandleMention(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseMentionEvent(data)
	if err != nil {
		b.logger.Warn("failed to parse mention event", "error", err)
		return
	}

	question := evt.Question()
	if question == "" {
		b.logger.Debug("mention without a question", "event_id", evt.EventID)
		return
	}

	claimed, err := b.dedupe.TryClaimDelivery(ctx, evt.EventID)
	if err != nil {
		b.logger.Error("dedupe check failed", "event_id", evt.EventID, "error", err)
		return
	}
	if !claimed {
		b.logger.Info("duplicate delivery ignored", "event_id", evt.EventID)
		return
	}

	b.answer(ctx, evt, question)
}

func (b *Bot) answer(ctx context.Context, evt *slack.MentionEvent, question string) {
	thread := evt.ReplyThread()

	opts := backend.Options{
		ChunkCount:     b.cfg.ChunkCount,
		RankingMode:    b.cfg.RankingMode,
		Streaming:      b.cfg.Streaming,
		KnowledgeAgent: b.cfg.KnowledgeAgent,
	}
	if b.cfg.UseHistory {
		opts.History = b.threadHistory(thread)
	}

	answer, err := b.asker.Ask(ctx, question, opts)
	if err != nil {
		b.logger.Error("backend ask failed", "event_id", evt.EventID, "error", err)
		// Release the claim so a redelivery gets another chance.
		if rerr := b.dedupe.ReleaseDelivery(ctx, evt.EventID); rerr != nil {
			b.logger.Warn("failed to release delivery claim", "event_id", evt.EventID, "error", rerr)
		}
		notice := failureNotice
		if errors.Is(err, stream.ErrTimeout) {
			notice = timeoutNotice
		}
		if perr := b.poster.PostNotice(ctx, evt.Channel, thread, notice); perr != nil {
			b.logger.Warn("failed to post notice", "error", perr)
		}
		return
	}

	if _, err := b.poster.PostAnswer(ctx, evt.Channel, thread, answer.Text, answer.Citations); err != nil {
		b.logger.Error("failed to post answer", "event_id", evt.EventID, "error", err)
		if rerr := b.dedupe.ReleaseDelivery(ctx, evt.EventID); rerr != nil {
			b.logger.Warn("failed to release delivery claim", "event_id", evt.EventID, "error", rerr)
		}
		return
	}

	if b.cfg.UseHistory {
		b.recordExchange(thread, question, answer.Text)
	}

	text, sources := slack.FormatAnswer(answer.Text, answer.Citations)
	if err := b.publisher.Publish(b.cfg.CompletionSubject, bus.Completion{
		EventID:   evt.EventID,
		Channel:   evt.Channel,
		Question:  question,
		Answer:    text,
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		b.logger.Warn("failed to publish completion", "error", err)
	}

	b.logger.Info("answered mention", "event_id", evt.EventID, "channel", evt.Channel, "sources", len(sources))
}

func (b *Bot) threadHistory(thread string) []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]chat.Message, len(b.history[thread]))
	copy(out, b.history[thread])
	return out
}

func (b *Bot) recordExchange(thread, question, answer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := append(b.history[thread],
		chat.Message{Role: string(chat.RoleUser), Content: question},
		chat.Message{Role: string(chat.RoleAssistant), Content: answer},
	)
	if limit := b.cfg.HistoryCap; limit > 0 && len(h) > limit*2 {
		h = h[len(h)-limit*2:]
	}
	b.history[thread] = h
}
