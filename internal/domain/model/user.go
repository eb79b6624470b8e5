// Пакет model — доменные модели Request Desk.
package model

import "time"

// Role — роль пользователя. Назначается при первом входе и больше не меняется.
type Role string

const (
	// RoleOfficer — офицер, подаёт заявки и видит только свои.
	RoleOfficer Role = "officer"
	// RoleAdmin — администратор, видит все заявки и отвечает на них.
	RoleAdmin Role = "admin"
)

// IsValid проверяет, является ли роль допустимой.
func (r Role) IsValid() bool {
	return r == RoleOfficer || r == RoleAdmin
}

// User — учётная запись, созданная при первом входе по military ID.
// Хранится в таблице users, никогда не удаляется.
type User struct {
	// ID — UUID пользователя
	ID string `json:"id"`
	// FullName — ФИО, указанное при первом входе
	FullName string `json:"fullName"`
	// MilitaryID — military ID, естественный ключ (UNIQUE)
	MilitaryID string `json:"militaryId"`
	// Role — officer или admin
	Role Role `json:"role"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin сообщает, имеет ли пользователь роль admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
