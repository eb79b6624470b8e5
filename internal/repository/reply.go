package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// ReplyRepository — доступ к таблице replies.
type ReplyRepository interface {
	// Create сохраняет ответ. Несуществующая заявка или автор — ErrReferenceNotFound.
	Create(ctx context.Context, reply *model.Reply) error
	// ListByRequestIDs возвращает ответы указанных заявок, старые первыми.
	ListByRequestIDs(ctx context.Context, requestIDs []string) ([]model.Reply, error)
}

type replyRepo struct {
	db DBTX
}

// NewReplyRepository создаёт репозиторий ответов.
func NewReplyRepository(db DBTX) ReplyRepository {
	return &replyRepo{db: db}
}

func (r *replyRepo) Create(ctx context.Context, reply *model.Reply) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO replies (id, request_id, admin_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		reply.ID, reply.RequestID, reply.AdminID, reply.Content,
	).Scan(&reply.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: заявка %s или автор %s", ErrReferenceNotFound, reply.RequestID, reply.AdminID)
		}
		return fmt.Errorf("ошибка создания ответа: %w", err)
	}
	return nil
}

func (r *replyRepo) ListByRequestIDs(ctx context.Context, requestIDs []string) ([]model.Reply, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, admin_id, content, created_at
		FROM replies
		WHERE request_id = ANY($1::uuid[])
		ORDER BY created_at, id`, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ответов: %w", err)
	}
	defer rows.Close()

	var result []model.Reply
	for rows.Next() {
		var reply model.Reply
		if err := rows.Scan(
			&reply.ID, &reply.RequestID, &reply.AdminID, &reply.Content, &reply.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ответа: %w", err)
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}
