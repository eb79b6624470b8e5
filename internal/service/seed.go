package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// Демонстрационный офицер, создаваемый SeedDemo.
const (
	demoOfficerName       = "Sarbaz Ahmed"
	demoOfficerMilitaryID = "987654321"
	demoAdminName         = "Администратор"
)

// SeedDemo заполняет пустую БД демонстрационными данными: admin (первый
// military ID из списка привилегированных), один офицер и одна заявка
// в статусе pending. Если пользователи уже есть, ничего не делает.
func SeedDemo(
	ctx context.Context,
	identity *IdentityService,
	requests *RequestService,
	adminMilitaryIDs []string,
	logger *slog.Logger,
) error {
	logger = logger.With(slog.String("component", "seed"))

	hasUsers, err := identity.HasUsers(ctx)
	if err != nil {
		return err
	}
	if hasUsers {
		logger.Debug("БД не пуста, демонстрационные данные не создаются")
		return nil
	}

	if len(adminMilitaryIDs) > 0 {
		admin, err := identity.ResolveOrCreate(ctx, demoAdminName, adminMilitaryIDs[0])
		if err != nil {
			return fmt.Errorf("создание демонстрационного admin: %w", err)
		}
		logger.Info("Создан демонстрационный admin", slog.String("user_id", admin.ID))
	} else {
		logger.Warn("RD_ADMIN_MILITARY_IDS пуст, демонстрационный admin не создан")
	}

	officer, err := identity.ResolveOrCreate(ctx, demoOfficerName, demoOfficerMilitaryID)
	if err != nil {
		return fmt.Errorf("создание демонстрационного офицера: %w", err)
	}

	req, err := requests.Create(ctx, officer.ID, CreateRequestInput{
		Title:   "Запрос на отпуск",
		Content: "Прошу предоставить отпуск с 1 по 14 число следующего месяца.",
		Attachments: []model.AttachmentInput{
			{FileName: "рапорт.pdf", FileURL: "/uploads/demo/raport.pdf", FileType: "application/pdf"},
		},
	})
	if err != nil {
		return fmt.Errorf("создание демонстрационной заявки: %w", err)
	}

	logger.Info("Демонстрационные данные созданы",
		slog.String("officer_id", officer.ID),
		slog.String("request_id", req.ID),
	)
	return nil
}
