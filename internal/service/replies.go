package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/requestdesk/internal/config"
	"github.com/bigkaa/requestdesk/internal/domain/access"
	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/repository"
)

var repliesSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rd_replies_submitted_total",
	Help: "Количество ответов на заявки (kind: first, addendum).",
}, []string{"kind"})

// ReplyService — запись ответов администраторов.
// Только этот сервис переводит заявку из pending в answered.
type ReplyService struct {
	identity *IdentityService
	tx       Transactor
	policy   string
	logger   *slog.Logger
}

// NewReplyService создаёт сервис ответов. policy — config.ReplyPolicyAddendum
// или config.ReplyPolicySingle.
func NewReplyService(identity *IdentityService, tx Transactor, policy string, logger *slog.Logger) *ReplyService {
	return &ReplyService{
		identity: identity,
		tx:       tx,
		policy:   policy,
		logger:   logger.With(slog.String("component", "replies")),
	}
}

// Submit сохраняет ответ и переводит заявку в answered в одной транзакции.
// Строка заявки блокируется до фиксации, поэтому параллельные ответы
// на одну заявку выполняются последовательно.
func (s *ReplyService) Submit(ctx context.Context, callerID, requestID, content string) (*model.Reply, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionReply, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: требуется текст ответа", ErrValidation)
	}
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, errRequestNotFound
	}

	reply := &model.Reply{
		ID:        uuid.New().String(),
		RequestID: requestID,
		AdminID:   caller.ID,
		Content:   content,
	}
	var previous model.RequestStatus

	err = s.tx.Within(ctx, func(repos repository.Repositories) error {
		req, err := repos.Requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		previous = req.Status

		if s.policy == config.ReplyPolicySingle && req.Status == model.StatusAnswered {
			return ErrAlreadyAnswered
		}
		next, err := req.Status.Transition(model.StatusAnswered)
		if err != nil {
			return err
		}

		if err := repos.Replies.Create(ctx, reply); err != nil {
			return err
		}
		return repos.Requests.SetStatus(ctx, req.ID, next)
	})

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrReferenceNotFound):
		return nil, errRequestNotFound
	case errors.Is(err, ErrAlreadyAnswered):
		return nil, fmt.Errorf("%w: заявка %s", ErrAlreadyAnswered, requestID)
	default:
		return nil, fmt.Errorf("запись ответа: %w", err)
	}

	kind := "first"
	if previous == model.StatusAnswered {
		kind = "addendum"
	}
	repliesSubmittedTotal.WithLabelValues(kind).Inc()
	s.logger.Info("Ответ на заявку записан",
		slog.String("request_id", requestID),
		slog.String("reply_id", reply.ID),
		slog.String("admin_id", caller.ID),
		slog.String("kind", kind),
	)
	return reply, nil
}
