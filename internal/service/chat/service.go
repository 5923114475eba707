// Package chat exposes the engine's contract surface: chat turns,
// session listing, history, and deletion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	"engram/internal/domain/repositories"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/engine/sessions"
)

// NewSessionID is the sentinel session id that mints a fresh session.
const NewSessionID = "new"

const maxMessageLength = 32768

// ChatRequest is one user turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (r *ChatRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Message,
			validation.Required,
			validation.Length(1, maxMessageLength),
		),
	)
}

// ChatResponse carries the answer back to the caller. SessionID echoes
// the (possibly freshly minted) session id.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Status    string `json:"status"`
}

// HistoryTurn is one entry of a session transcript.
type HistoryTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Service wires the session manager and the stores behind the HTTP
// surface.
type Service struct {
	manager  *sessions.Manager
	sessions memRepo.SessionStore
	tiers    memRepo.TierStore
	episodes memRepo.EpisodicStore
	tx       repositories.TransactionManager
	logger   *slog.Logger
}

// NewService creates the chat service.
func NewService(
	manager *sessions.Manager,
	sessionStore memRepo.SessionStore,
	tierStore memRepo.TierStore,
	episodicStore memRepo.EpisodicStore,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *Service {
	return &Service{
		manager:  manager,
		sessions: sessionStore,
		tiers:    tierStore,
		episodes: episodicStore,
		tx:       txManager,
		logger:   logger,
	}
}

// ChatTurn runs one user turn. A request with session_id "new" mints a
// session and returns its id with the first response.
func (s *Service) ChatTurn(ctx context.Context, userID string, req *ChatRequest) (*ChatResponse, error) {
	// Trim before validating so a whitespace-only message fails Required
	// instead of reaching the store with empty tiers.
	req.Message = strings.TrimSpace(req.Message)
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	sessionID := req.SessionID
	if sessionID == NewSessionID {
		minted, err := s.mintSession(ctx, userID)
		if err != nil {
			return nil, err
		}
		sessionID = minted
	} else {
		if _, err := s.sessions.Get(ctx, userID, sessionID); err != nil {
			return nil, err
		}
	}

	orch, release := s.manager.Acquire(userID, sessionID)
	defer release()

	result, err := orch.ChatTurn(ctx, req.Message)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		SessionID: sessionID,
		Answer:    result.Answer,
		Status:    result.Status,
	}, nil
}

func (s *Service) mintSession(ctx context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	session := &memModels.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("mint session: %w", err)
	}
	s.logger.Info("session created", "user_id", userID, "session_id", session.ID)
	return session.ID, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]memModels.SessionSummary, error) {
	return s.sessions.List(ctx, userID)
}

// GetHistory returns the session transcript at full fidelity after an
// ownership check.
func (s *Service) GetHistory(ctx context.Context, userID, sessionID string) ([]HistoryTurn, error) {
	if _, err := s.sessions.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	turns, err := s.tiers.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]HistoryTurn, len(turns))
	for i, turn := range turns {
		history[i] = HistoryTurn{
			Role:      turn.Role,
			Text:      turn.Tier3,
			CreatedAt: turn.CreatedAt,
		}
	}
	return history, nil
}

// DeleteSession removes the session, its turns, and its episodic
// entries. Deleting a missing session is a no-op.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.sessions.Get(ctx, userID, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	// Hold the session lock so an in-flight turn finishes before the
	// cascade runs.
	_, release := s.manager.Acquire(userID, sessionID)
	defer release()

	// The three-table cascade commits atomically so a failure cannot
	// leave orphaned turns or episodes behind.
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.tiers.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("delete turns: %w", err)
		}
		if err := s.episodes.DeleteForSession(ctx, userID, sessionID); err != nil {
			return fmt.Errorf("delete episodes: %w", err)
		}
		if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.manager.Remove(userID, sessionID)

	s.logger.Info("session deleted", "user_id", userID, "session_id", sessionID)
	return nil
}
