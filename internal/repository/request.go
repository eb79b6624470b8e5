package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// RequestRepository — доступ к таблице requests.
type RequestRepository interface {
	// Create сохраняет заявку. Несуществующий владелец — ErrReferenceNotFound.
	Create(ctx context.Context, req *model.Request) error
	// GetByID возвращает заявку по UUID.
	GetByID(ctx context.Context, id string) (*model.Request, error)
	// GetForUpdate возвращает заявку и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (*model.Request, error)
	// ListAll возвращает все заявки, новые первыми.
	ListAll(ctx context.Context) ([]*model.Request, error)
	// ListByUser возвращает заявки владельца, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]*model.Request, error)
	// SetStatus меняет статус и обновляет updated_at.
	SetStatus(ctx context.Context, id string, status model.RequestStatus) error
	// Count возвращает количество заявок.
	Count(ctx context.Context) (int, error)
}

type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий заявок.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

const requestColumns = `id, user_id, title, content, status, created_at, updated_at`

func scanRequest(row pgx.Row) (*model.Request, error) {
	req := &model.Request{}
	err := row.Scan(
		&req.ID, &req.UserID, &req.Title, &req.Content,
		&req.Status, &req.CreatedAt, &req.UpdatedAt,
	)
	return req, err
}

func (r *requestRepo) Create(ctx context.Context, req *model.Request) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO requests (id, user_id, title, content, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		req.ID, req.UserID, req.Title, req.Content, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец заявки %s", ErrReferenceNotFound, req.UserID)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s", ErrConflict, req.ID)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *requestRepo) getOne(ctx context.Context, query, id string) (*model.Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return req, nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id string) (*model.Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *requestRepo) list(ctx context.Context, query string, args ...any) ([]*model.Request, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepo) ListAll(ctx context.Context) ([]*model.Request, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		ORDER BY created_at DESC, id DESC`)
}

func (r *requestRepo) ListByUser(ctx context.Context, userID string) ([]*model.Request, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
}

func (r *requestRepo) SetStatus(ctx context.Context, id string, status model.RequestStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE requests
		SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM requests`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}
