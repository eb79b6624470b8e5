package model

import (
	"errors"
	"fmt"
	"time"
)

// RequestStatus — статус заявки.
//
// Жизненный цикл односторонний: pending → answered.
// Переход в answered выполняется только вместе с записью ответа.
type RequestStatus string

const (
	// StatusPending — заявка ожидает ответа
	StatusPending RequestStatus = "pending"
	// StatusAnswered — на заявку есть хотя бы один ответ (конечный статус)
	StatusAnswered RequestStatus = "answered"
)

// ErrInvalidTransition — недопустимый переход статуса заявки.
var ErrInvalidTransition = errors.New("недопустимый переход статуса заявки")

// validTransitions — матрица допустимых переходов.
// answered → answered разрешён: дополнительный ответ не меняет статус.
var validTransitions = map[RequestStatus]map[RequestStatus]bool{
	StatusPending:  {StatusAnswered: true},
	StatusAnswered: {StatusAnswered: true},
}

// IsValid проверяет, является ли статус допустимым.
func (s RequestStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo проверяет, допустим ли переход в target.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	return validTransitions[s][target]
}

// Transition возвращает target, если переход допустим, иначе ErrInvalidTransition.
func (s RequestStatus) Transition(target RequestStatus) (RequestStatus, error) {
	if !s.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s, target)
	}
	return target, nil
}

// Request — заявка офицера. title и content неизменяемы после создания.
type Request struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Attachment — метаданные файла, приложенного к заявке при создании.
// Сами файлы хранятся вне системы, здесь только ссылка.
type Attachment struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileType  string    `json:"fileType"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttachmentInput — метаданные вложения во входных данных создания заявки.
type AttachmentInput struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
}

// Reply — ответ администратора на заявку.
type Reply struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	AdminID   string    `json:"adminId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReplyWithAdmin — ответ вместе с автором.
type ReplyWithAdmin struct {
	Reply
	Admin User `json:"admin"`
}

// RequestWithDetails — заявка с владельцем, вложениями и ответами.
type RequestWithDetails struct {
	Request
	User        User             `json:"user"`
	Attachments []Attachment     `json:"attachments"`
	Replies     []ReplyWithAdmin `json:"replies"`
}

// IsAnswered сообщает, есть ли у заявки ответы.
func (r *RequestWithDetails) IsAnswered() bool {
	return len(r.Replies) > 0
}
