// requests.go — хранилище заявок: создание с вложениями и чтение
// с проверкой прав через access.
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

	"github.com/bigkaa/requestdesk/internal/domain/access"
	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/repository"
)

var requestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rd_requests_created_total",
	Help: "Количество созданных заявок.",
})

// Transactor выполняет функцию над репозиториями в транзакции.
// Реализуется repository.TxRunner.
type Transactor interface {
	// Within — транзакция записи: ошибка fn откатывает все изменения.
	Within(ctx context.Context, fn func(repos repository.Repositories) error) error
	// ReadSnapshot — чтение из одного согласованного снимка.
	ReadSnapshot(ctx context.Context, fn func(repos repository.Repositories) error) error
}

// CreateRequestInput — входные данные создания заявки.
type CreateRequestInput struct {
	Title       string
	Content     string
	Attachments []model.AttachmentInput
}

// errRequestNotFound — ответ на отсутствующую заявку. Используется и для
// скрытия чужой заявки, поэтому тексты совпадают.
var errRequestNotFound = fmt.Errorf("%w: заявка не найдена", ErrNotFound)

// RequestService — создание и чтение заявок.
type RequestService struct {
	identity         *IdentityService
	tx               Transactor
	concealForbidden bool
	logger           *slog.Logger
}

// NewRequestService создаёт сервис заявок.
// concealForbidden — отвечать ErrNotFound вместо ErrForbidden на чтение чужой заявки.
func NewRequestService(
	identity *IdentityService,
	tx Transactor,
	concealForbidden bool,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		identity:         identity,
		tx:               tx,
		concealForbidden: concealForbidden,
		logger:           logger.With(slog.String("component", "requests")),
	}
}

func (in CreateRequestInput) normalize() (CreateRequestInput, error) {
	out := CreateRequestInput{
		Title:   strings.TrimSpace(in.Title),
		Content: strings.TrimSpace(in.Content),
	}
	if out.Title == "" || out.Content == "" {
		return out, fmt.Errorf("%w: требуются заголовок и содержание", ErrValidation)
	}

	for i, a := range in.Attachments {
		a = model.AttachmentInput{
			FileName: strings.TrimSpace(a.FileName),
			FileURL:  strings.TrimSpace(a.FileURL),
			FileType: strings.TrimSpace(a.FileType),
		}
		if a.FileName == "" || a.FileURL == "" || a.FileType == "" {
			return out, fmt.Errorf("%w: вложение %d: требуются fileName, fileUrl и fileType", ErrValidation, i)
		}
		out.Attachments = append(out.Attachments, a)
	}
	return out, nil
}

// Create создаёт заявку в статусе pending вместе со всеми вложениями.
// Либо сохраняется всё, либо ничего.
func (s *RequestService) Create(ctx context.Context, callerID string, in CreateRequestInput) (*model.Request, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionCreateRequest, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		ID:      uuid.New().String(),
		UserID:  caller.ID,
		Title:   in.Title,
		Content: in.Content,
		Status:  model.StatusPending,
	}

	err = s.tx.Within(ctx, func(repos repository.Repositories) error {
		if err := repos.Requests.Create(ctx, req); err != nil {
			return err
		}
		for i, a := range in.Attachments {
			att := &model.Attachment{
				ID:        uuid.New().String(),
				RequestID: req.ID,
				FileName:  a.FileName,
				FileURL:   a.FileURL,
				FileType:  a.FileType,
			}
			if err := repos.Attachments.Create(ctx, att, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("создание заявки: %w", err)
	}

	requestsCreatedTotal.Inc()
	s.logger.Info("Заявка создана",
		slog.String("request_id", req.ID),
		slog.String("user_id", caller.ID),
		slog.Int("attachments", len(in.Attachments)),
	)
	return req, nil
}

// List возвращает заявки в зависимости от роли: admin видит все,
// остальные только свои.
func (s *RequestService) List(ctx context.Context, callerID string) ([]*model.RequestWithDetails, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if access.CanListAll(caller) {
		return s.listAll(ctx)
	}
	return s.listForOwner(ctx, caller)
}

// ListAll возвращает все заявки, новые первыми. Только для admin.
func (s *RequestService) ListAll(ctx context.Context, callerID string) ([]*model.RequestWithDetails, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionListAll, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return s.listAll(ctx)
}

// ListForOwner возвращает заявки вызывающего, новые первыми.
func (s *RequestService) ListForOwner(ctx context.Context, callerID string) ([]*model.RequestWithDetails, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.listForOwner(ctx, caller)
}

func (s *RequestService) listAll(ctx context.Context) ([]*model.RequestWithDetails, error) {
	var result []*model.RequestWithDetails
	err := s.tx.ReadSnapshot(ctx, func(repos repository.Repositories) error {
		reqs, err := repos.Requests.ListAll(ctx)
		if err != nil {
			return err
		}
		result, err = hydrate(ctx, repos, reqs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("получение всех заявок: %w", err)
	}
	return result, nil
}

func (s *RequestService) listForOwner(ctx context.Context, caller *model.User) ([]*model.RequestWithDetails, error) {
	var result []*model.RequestWithDetails
	err := s.tx.ReadSnapshot(ctx, func(repos repository.Repositories) error {
		reqs, err := repos.Requests.ListByUser(ctx, caller.ID)
		if err != nil {
			return err
		}
		result, err = hydrate(ctx, repos, reqs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("получение заявок пользователя: %w", err)
	}
	return result, nil
}

// Get возвращает заявку с владельцем, вложениями и ответами.
// Сначала проверяется существование, затем право чтения.
func (s *RequestService) Get(ctx context.Context, callerID, id string) (*model.RequestWithDetails, error) {
	caller, err := s.identity.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, errRequestNotFound
	}

	var result *model.RequestWithDetails
	err = s.tx.ReadSnapshot(ctx, func(repos repository.Repositories) error {
		req, err := repos.Requests.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Authorize(caller, access.ActionRead, req); err != nil {
			return err
		}
		details, err := hydrate(ctx, repos, []*model.Request{req})
		if err != nil {
			return err
		}
		result = details[0]
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, errRequestNotFound
	case errors.Is(err, access.ErrDenied):
		if s.concealForbidden {
			return nil, errRequestNotFound
		}
		return nil, fmt.Errorf("%w: нет доступа к заявке", ErrForbidden)
	default:
		return nil, fmt.Errorf("получение заявки: %w", err)
	}
}

// hydrate дополняет заявки владельцами, вложениями и ответами.
// Каждая связанная таблица читается одним запросом на весь набор.
func hydrate(ctx context.Context, repos repository.Repositories, reqs []*model.Request) ([]*model.RequestWithDetails, error) {
	result := make([]*model.RequestWithDetails, 0, len(reqs))
	if len(reqs) == 0 {
		return result, nil
	}

	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}

	attachments, err := repos.Attachments.ListByRequestIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	replies, err := repos.Replies.ListByRequestIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	userIDs := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		userIDs[r.UserID] = struct{}{}
	}
	for _, r := range replies {
		userIDs[r.AdminID] = struct{}{}
	}
	uniq := make([]string, 0, len(userIDs))
	for id := range userIDs {
		uniq = append(uniq, id)
	}
	users, err := repos.Users.ListByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	usersByID := make(map[string]*model.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	attByReq := make(map[string][]model.Attachment, len(reqs))
	for _, a := range attachments {
		attByReq[a.RequestID] = append(attByReq[a.RequestID], a)
	}
	repliesByReq := make(map[string][]model.ReplyWithAdmin, len(reqs))
	for _, r := range replies {
		admin, ok := usersByID[r.AdminID]
		if !ok {
			return nil, fmt.Errorf("автор ответа %s не найден", r.AdminID)
		}
		repliesByReq[r.RequestID] = append(repliesByReq[r.RequestID], model.ReplyWithAdmin{Reply: r, Admin: *admin})
	}

	for _, r := range reqs {
		owner, ok := usersByID[r.UserID]
		if !ok {
			return nil, fmt.Errorf("владелец заявки %s не найден", r.UserID)
		}
		d := &model.RequestWithDetails{
			Request:     *r,
			User:        *owner,
			Attachments: attByReq[r.ID],
			Replies:     repliesByReq[r.ID],
		}
		if d.Attachments == nil {
			d.Attachments = []model.Attachment{}
		}
		if d.Replies == nil {
			d.Replies = []model.ReplyWithAdmin{}
		}
		result = append(result, d)
	}
	return result, nil
}
