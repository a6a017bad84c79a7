package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"hospital-chat/internal/domain"
	"hospital-chat/internal/ratelimit"
)

const degradedPrefix = "An error has occurred: "

type CompletionClient interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error)
}

// MessageStore is the append-only chat log.
type MessageStore interface {
	TurnReader
	Append(ctx context.Context, role domain.Role, content string) (domain.ChatTurn, error)
}

type RateLimiter interface {
	Check() ratelimit.Decision
	Record(tokensUsed int)
}

// ChatService runs one request/response cycle against the completion
// endpoint. A nil rate limiter disables rate limiting.
type ChatService struct {
	llm          CompletionClient
	store        MessageStore
	history      *HistoryWindow
	limiter      RateLimiter
	historyLimit int
	logger       *slog.Logger
}

type ChatInput struct {
	Message        string
	IncludeHistory bool
}

func NewChatService(llm CompletionClient, store MessageStore, limiter RateLimiter, historyLimit int) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	history, err := NewHistoryWindow(store)
	if err != nil {
		return nil, err
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatService{
		llm:          llm,
		store:        store,
		history:      history,
		limiter:      limiter,
		historyLimit: historyLimit,
		logger:       slog.Default(),
	}, nil
}

// Respond answers one user message. Upstream failures and rate limiting are
// reported through Reply; the returned error is reserved for invalid input
// and message store write failures.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (Reply, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Reply{}, newError(ErrorInvalidInput, "empty_message", nil)
	}

	if s.limiter != nil {
		if d := s.limiter.Check(); !d.Allowed {
			s.logger.InfoContext(ctx, "chat request rate limited", "reason", string(d.Reason))
			return Reply{
				Text:  d.Message(),
				Kind:  ReplyRateLimited,
				Cause: newError(ErrorRateLimited, string(d.Reason), d.Err()),
			}, nil
		}
	}

	// Once admitted, the request runs to completion or the client timeout
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var history []domain.ChatTurn
	if in.IncludeHistory {
		turns, err := s.history.RecentTurns(ctx, s.historyLimit)
		if err != nil {
			return s.degrade(ctx, newError(ErrorUpstream, "history_error", err))
		}
		history = turns
	}

	completion, err := s.llm.Complete(ctx, buildPromptMessages(history, in.Message))
	if err != nil {
		return s.degrade(ctx, newError(ErrorUpstream, "completion_error", err))
	}

	if s.limiter != nil {
		s.limiter.Record(completion.TotalTokens)
	}

	// The user turn is only stored once a reply exists to pair it with.
	if _, err := s.store.Append(ctx, domain.RoleUser, in.Message); err != nil {
		return Reply{}, newError(ErrorInternal, "store_user_turn_error", err)
	}
	if _, err := s.store.Append(ctx, domain.RoleAssistant, completion.Text); err != nil {
		return Reply{}, newError(ErrorInternal, "store_assistant_turn_error", err)
	}

	return Reply{Text: completion.Text, Kind: ReplyOK}, nil
}

// degrade records cause as a single assistant turn and returns it as the reply.
func (s *ChatService) degrade(ctx context.Context, cause *Error) (Reply, error) {
	text := degradedPrefix + cause.Err.Error()
	s.logger.WarnContext(ctx, "chat reply degraded", "reason", cause.Reason, "err", cause.Err)

	if _, err := s.store.Append(ctx, domain.RoleAssistant, text); err != nil {
		return Reply{}, newError(ErrorInternal, "store_error_turn_error", errors.Join(cause, err))
	}
	return Reply{Text: text, Kind: ReplyDegraded, Cause: cause}, nil
}
