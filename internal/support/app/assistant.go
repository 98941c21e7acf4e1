package app

import (
	"context"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
)

// ResponderClient automated-answer collaborator. Generation itself lives
// in a separate service; this engine only decides when to call it.
type ResponderClient interface {
	// Generate produce a reply to the owner's latest message
	Generate(ctx context.Context, roomCode string, window []domain.Message) (string, error)
	// Summarize asked for once when a room starts waiting for an
	// operator, so the operator sees a conversation summary on accept
	Summarize(ctx context.Context, roomCode string, window []domain.Message) error
}

const (
	assistantSenderID   = "assistant"
	assistantSenderName = "지원 도우미"
	systemSenderID      = "system"
	systemSenderName    = "system"

	// used when the generation collaborator fails; the owner's send must
	// still succeed
	assistantApology = "죄송합니다. 지금은 답변을 드릴 수 없습니다. 상담원이 곧 확인하겠습니다."
)

type staticResponder struct {
	reply string
}

// NewStaticResponder canned responder used until the real generation
// service is wired in; also handy in local runs.
func NewStaticResponder(reply string) ResponderClient {
	return &staticResponder{reply: reply}
}

func (s *staticResponder) Generate(_ context.Context, _ string, _ []domain.Message) (string, error) {
	return s.reply, nil
}

func (s *staticResponder) Summarize(_ context.Context, _ string, _ []domain.Message) error {
	return nil
}
