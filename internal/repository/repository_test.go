package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/requestdesk/internal/config"
	"github.com/bigkaa/requestdesk/internal/database"
	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("requestdesk_test"),
		postgres.WithUsername("requestdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("RD_DB_HOST", host)
	t.Setenv("RD_DB_PORT", port.Port())
	t.Setenv("RD_DB_NAME", "requestdesk_test")
	t.Setenv("RD_DB_USER", "requestdesk")
	t.Setenv("RD_DB_PASSWORD", "test-password")
	t.Setenv("RD_DB_SSL_MODE", "disable")
	t.Setenv("RD_SESSION_SECRET", "integration-secret-0123456789")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func createUser(t *testing.T, repos Repositories, militaryID string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		ID:         uuid.New().String(),
		FullName:   "Пользователь " + militaryID,
		MilitaryID: militaryID,
		Role:       role,
	}
	if err := repos.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("Users.Create(%s) ошибка: %v", militaryID, err)
	}
	return u
}

func createRequest(t *testing.T, repos Repositories, owner *model.User, title string) *model.Request {
	t.Helper()
	req := &model.Request{
		ID:      uuid.New().String(),
		UserID:  owner.ID,
		Title:   title,
		Content: "Содержание: " + title,
		Status:  model.StatusPending,
	}
	if err := repos.Requests.Create(context.Background(), req); err != nil {
		t.Fatalf("Requests.Create(%s) ошибка: %v", title, err)
	}
	return req
}

// --- UserRepository ---

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repos := New(pool)

	u := createUser(t, repos, "987654321", model.RoleOfficer)
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	got, err := repos.Users.GetByMilitaryID(ctx, "987654321")
	if err != nil {
		t.Fatalf("GetByMilitaryID() ошибка: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleOfficer {
		t.Errorf("GetByMilitaryID() = %+v, хотели id %s officer", got, u.ID)
	}

	got, err = repos.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.MilitaryID != "987654321" {
		t.Errorf("MilitaryID = %q, хотели 987654321", got.MilitaryID)
	}

	// Дубликат military ID
	dup := &model.User{ID: uuid.New().String(), FullName: "Другой", MilitaryID: "987654321", Role: model.RoleOfficer}
	if err := repos.Users.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, хотели ErrConflict", err)
	}

	if _, err := repos.Users.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(неизвестный) = %v, хотели ErrNotFound", err)
	}
	if _, err := repos.Users.GetByMilitaryID(ctx, "000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByMilitaryID(неизвестный) = %v, хотели ErrNotFound", err)
	}

	other := createUser(t, repos, "ADMIN123", model.RoleAdmin)
	list, err := repos.Users.ListByIDs(ctx, []string{u.ID, other.ID})
	if err != nil {
		t.Fatalf("ListByIDs() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListByIDs() вернул %d записей, хотели 2", len(list))
	}

	count, err := repos.Users.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, хотели 2", count)
	}
}

// --- RequestRepository ---

func TestRequestRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repos := New(pool)

	owner := createUser(t, repos, "7", model.RoleOfficer)
	other := createUser(t, repos, "9", model.RoleOfficer)

	first := createRequest(t, repos, owner, "Первая")
	time.Sleep(10 * time.Millisecond)
	second := createRequest(t, repos, owner, "Вторая")
	time.Sleep(10 * time.Millisecond)
	foreign := createRequest(t, repos, other, "Чужая")

	got, err := repos.Requests.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, хотели pending", got.Status)
	}

	mine, err := repos.Requests.ListByUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != second.ID || mine[1].ID != first.ID {
		t.Errorf("ListByUser() должен вернуть 2 заявки владельца, новые первыми: %+v", mine)
	}

	all, err := repos.Requests.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	if len(all) != 3 || all[0].ID != foreign.ID {
		t.Errorf("ListAll() должен вернуть 3 заявки, новые первыми: %+v", all)
	}

	if err := repos.Requests.SetStatus(ctx, first.ID, model.StatusAnswered); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}
	got, _ = repos.Requests.GetByID(ctx, first.ID)
	if got.Status != model.StatusAnswered {
		t.Errorf("после SetStatus Status = %q, хотели answered", got.Status)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("UpdatedAt %v раньше CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}

	if err := repos.Requests.SetStatus(ctx, uuid.New().String(), model.StatusAnswered); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(неизвестная) = %v, хотели ErrNotFound", err)
	}

	orphan := &model.Request{
		ID: uuid.New().String(), UserID: uuid.New().String(),
		Title: "t", Content: "c", Status: model.StatusPending,
	}
	if err := repos.Requests.Create(ctx, orphan); !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Create() без владельца = %v, хотели ErrReferenceNotFound", err)
	}
}

// --- Attachments и Replies ---

func TestAttachmentsAndReplies(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repos := New(pool)

	officer := createUser(t, repos, "7", model.RoleOfficer)
	admin := createUser(t, repos, "ADMIN123", model.RoleAdmin)
	req := createRequest(t, repos, officer, "С вложениями")

	names := []string{"b.pdf", "a.pdf", "c.png"}
	for i, name := range names {
		a := &model.Attachment{
			ID: uuid.New().String(), RequestID: req.ID,
			FileName: name, FileURL: "/uploads/" + name, FileType: "application/pdf",
		}
		if err := repos.Attachments.Create(ctx, a, i); err != nil {
			t.Fatalf("Attachments.Create(%s) ошибка: %v", name, err)
		}
	}

	atts, err := repos.Attachments.ListByRequestIDs(ctx, []string{req.ID})
	if err != nil {
		t.Fatalf("Attachments.ListByRequestIDs() ошибка: %v", err)
	}
	if len(atts) != len(names) {
		t.Fatalf("вложений %d, хотели %d", len(atts), len(names))
	}
	for i, a := range atts {
		if a.FileName != names[i] {
			t.Errorf("вложение %d = %q, хотели %q (порядок добавления)", i, a.FileName, names[i])
		}
	}

	reply := &model.Reply{ID: uuid.New().String(), RequestID: req.ID, AdminID: admin.ID, Content: "Одобрено"}
	if err := repos.Replies.Create(ctx, reply); err != nil {
		t.Fatalf("Replies.Create() ошибка: %v", err)
	}
	replies, err := repos.Replies.ListByRequestIDs(ctx, []string{req.ID})
	if err != nil {
		t.Fatalf("Replies.ListByRequestIDs() ошибка: %v", err)
	}
	if len(replies) != 1 || replies[0].AdminID != admin.ID {
		t.Errorf("ответы = %+v, хотели один ответ admin", replies)
	}

	missing := &model.Reply{ID: uuid.New().String(), RequestID: uuid.New().String(), AdminID: admin.ID, Content: "x"}
	if err := repos.Replies.Create(ctx, missing); !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("ответ на несуществующую заявку = %v, хотели ErrReferenceNotFound", err)
	}

	empty, err := repos.Replies.ListByRequestIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("ListByRequestIDs(nil) = %v, %v; хотели пусто", empty, err)
	}
}

// --- TxRunner ---

func TestTxRunner_RollbackOnError(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	officer := createUser(t, New(pool), "7", model.RoleOfficer)

	reqID := uuid.New().String()
	injected := errors.New("сбой вставки вложения")

	err := runner.Within(ctx, func(repos Repositories) error {
		req := &model.Request{ID: reqID, UserID: officer.ID, Title: "t", Content: "c", Status: model.StatusPending}
		if err := repos.Requests.Create(ctx, req); err != nil {
			return err
		}
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("Within() = %v, хотели исходную ошибку", err)
	}

	if _, err := New(pool).Requests.GetByID(ctx, reqID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после отката заявка найдена: %v", err)
	}
}

func TestTxRunner_Commit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	officer := createUser(t, New(pool), "7", model.RoleOfficer)
	admin := createUser(t, New(pool), "ADMIN123", model.RoleAdmin)
	req := createRequest(t, New(pool), officer, "На ответ")

	err := runner.Within(ctx, func(repos Repositories) error {
		locked, err := repos.Requests.GetForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		reply := &model.Reply{ID: uuid.New().String(), RequestID: locked.ID, AdminID: admin.ID, Content: "Ответ"}
		if err := repos.Replies.Create(ctx, reply); err != nil {
			return err
		}
		return repos.Requests.SetStatus(ctx, locked.ID, model.StatusAnswered)
	})
	if err != nil {
		t.Fatalf("Within() ошибка: %v", err)
	}

	got, _ := New(pool).Requests.GetByID(ctx, req.ID)
	if got.Status != model.StatusAnswered {
		t.Errorf("Status = %q, хотели answered", got.Status)
	}
}
