package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// AttachmentRepository — доступ к таблице attachments.
// Вложения создаются только вместе с заявкой и не изменяются.
type AttachmentRepository interface {
	// Create сохраняет вложение на позиции position в списке заявки.
	Create(ctx context.Context, a *model.Attachment, position int) error
	// ListByRequestIDs возвращает вложения указанных заявок в порядке добавления.
	ListByRequestIDs(ctx context.Context, requestIDs []string) ([]model.Attachment, error)
}

type attachmentRepo struct {
	db DBTX
}

// NewAttachmentRepository создаёт репозиторий вложений.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepo{db: db}
}

func (r *attachmentRepo) Create(ctx context.Context, a *model.Attachment, position int) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO attachments (id, request_id, file_name, file_url, file_type, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.RequestID, a.FileName, a.FileURL, a.FileType, position,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: заявка %s", ErrReferenceNotFound, a.RequestID)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вложение на позиции %d", ErrConflict, position)
		}
		return fmt.Errorf("ошибка создания вложения: %w", err)
	}
	return nil
}

func (r *attachmentRepo) ListByRequestIDs(ctx context.Context, requestIDs []string) ([]model.Attachment, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, file_name, file_url, file_type, created_at
		FROM attachments
		WHERE request_id = ANY($1::uuid[])
		ORDER BY request_id, position`, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вложений: %w", err)
	}
	defer rows.Close()

	var result []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.FileName, &a.FileURL, &a.FileType, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования вложения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
