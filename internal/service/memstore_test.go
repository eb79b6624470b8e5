package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/repository"
)

// memState — содержимое in-memory БД. Транзакция работает с копией
// и подменяет исходное состояние только при успехе.
type memState struct {
	users       map[string]model.User
	requests    map[string]model.Request
	attachments []memAttachment
	replies     []model.Reply
}

type memAttachment struct {
	model.Attachment
	position int
}

func newMemState() *memState {
	return &memState{
		users:    map[string]model.User{},
		requests: map[string]model.Request{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	c.attachments = append(c.attachments, s.attachments...)
	c.replies = append(c.replies, s.replies...)
	return c
}

// memDB — фейковая реализация repository.Repositories и Transactor
// с внедрением сбоев.
type memDB struct {
	mu    sync.Mutex
	state *memState

	clockMu sync.Mutex
	clock   time.Time

	// attachmentHook вызывается перед вставкой вложения; ошибка прерывает вставку.
	attachmentHook func(position int) error
	// setStatusHook вызывается перед сменой статуса; ошибка прерывает запись.
	setStatusHook func() error
	// userCreateHook вызывается перед вставкой пользователя (имитация гонки).
	userCreateHook func(st *memState, u *model.User)
}

func newMemDB() *memDB {
	return &memDB{
		state: newMemState(),
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) now() time.Time {
	db.clockMu.Lock()
	defer db.clockMu.Unlock()
	db.clock = db.clock.Add(time.Millisecond)
	return db.clock
}

func (db *memDB) repos(st *memState) repository.Repositories {
	sc := memScope{db: db, st: st}
	return repository.Repositories{
		Users:       memUsers{sc},
		Requests:    memRequests{sc},
		Attachments: memAttachments{sc},
		Replies:     memReplies{sc},
	}
}

// Direct — репозитории вне транзакции.
func (db *memDB) Direct() repository.Repositories {
	return db.repos(nil)
}

func (db *memDB) Within(_ context.Context, fn func(repos repository.Repositories) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	work := db.state.clone()
	if err := fn(db.repos(work)); err != nil {
		return err
	}
	db.state = work
	return nil
}

func (db *memDB) ReadSnapshot(_ context.Context, fn func(repos repository.Repositories) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.repos(db.state.clone()))
}

// snapshot возвращает копию текущего зафиксированного состояния.
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

type memScope struct {
	db *memDB
	st *memState
}

func (s memScope) do(fn func(st *memState) error) error {
	if s.st != nil {
		return fn(s.st)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.state)
}

// --- users ---

type memUsers struct{ memScope }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	return r.do(func(st *memState) error {
		if r.db.userCreateHook != nil {
			r.db.userCreateHook(st, u)
		}
		for _, existing := range st.users {
			if existing.MilitaryID == u.MilitaryID {
				return repository.ErrConflict
			}
		}
		u.CreatedAt = r.db.now()
		st.users[u.ID] = *u
		return nil
	})
}

func (r memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	var out *model.User
	err := r.do(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r memUsers) GetByMilitaryID(_ context.Context, militaryID string) (*model.User, error) {
	var out *model.User
	err := r.do(func(st *memState) error {
		for _, u := range st.users {
			if u.MilitaryID == militaryID {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r memUsers) ListByIDs(_ context.Context, ids []string) ([]*model.User, error) {
	var out []*model.User
	err := r.do(func(st *memState) error {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				u := u
				out = append(out, &u)
			}
		}
		return nil
	})
	return out, err
}

func (r memUsers) Count(_ context.Context) (int, error) {
	var n int
	err := r.do(func(st *memState) error {
		n = len(st.users)
		return nil
	})
	return n, err
}

// --- requests ---

type memRequests struct{ memScope }

func (r memRequests) Create(_ context.Context, req *model.Request) error {
	return r.do(func(st *memState) error {
		if _, ok := st.users[req.UserID]; !ok {
			return repository.ErrReferenceNotFound
		}
		now := r.db.now()
		req.CreatedAt, req.UpdatedAt = now, now
		st.requests[req.ID] = *req
		return nil
	})
}

func (r memRequests) GetByID(_ context.Context, id string) (*model.Request, error) {
	var out *model.Request
	err := r.do(func(st *memState) error {
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r memRequests) GetForUpdate(ctx context.Context, id string) (*model.Request, error) {
	return r.GetByID(ctx, id)
}

func (r memRequests) list(filter func(model.Request) bool) ([]*model.Request, error) {
	var out []*model.Request
	err := r.do(func(st *memState) error {
		for _, req := range st.requests {
			if filter(req) {
				req := req
				out = append(out, &req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (r memRequests) ListAll(_ context.Context) ([]*model.Request, error) {
	return r.list(func(model.Request) bool { return true })
}

func (r memRequests) ListByUser(_ context.Context, userID string) ([]*model.Request, error) {
	return r.list(func(req model.Request) bool { return req.UserID == userID })
}

func (r memRequests) SetStatus(_ context.Context, id string, status model.RequestStatus) error {
	return r.do(func(st *memState) error {
		if r.db.setStatusHook != nil {
			if err := r.db.setStatusHook(); err != nil {
				return err
			}
		}
		req, ok := st.requests[id]
		if !ok {
			return repository.ErrNotFound
		}
		req.Status = status
		req.UpdatedAt = r.db.now()
		st.requests[id] = req
		return nil
	})
}

func (r memRequests) Count(_ context.Context) (int, error) {
	var n int
	err := r.do(func(st *memState) error {
		n = len(st.requests)
		return nil
	})
	return n, err
}

// --- attachments ---

type memAttachments struct{ memScope }

func (r memAttachments) Create(_ context.Context, a *model.Attachment, position int) error {
	return r.do(func(st *memState) error {
		if r.db.attachmentHook != nil {
			if err := r.db.attachmentHook(position); err != nil {
				return err
			}
		}
		if _, ok := st.requests[a.RequestID]; !ok {
			return repository.ErrReferenceNotFound
		}
		a.CreatedAt = r.db.now()
		st.attachments = append(st.attachments, memAttachment{Attachment: *a, position: position})
		return nil
	})
}

func (r memAttachments) ListByRequestIDs(_ context.Context, ids []string) ([]model.Attachment, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var rows []memAttachment
	err := r.do(func(st *memState) error {
		for _, a := range st.attachments {
			if want[a.RequestID] {
				rows = append(rows, a)
			}
		}
		return nil
	})
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RequestID != rows[j].RequestID {
			return rows[i].RequestID < rows[j].RequestID
		}
		return rows[i].position < rows[j].position
	})
	out := make([]model.Attachment, 0, len(rows))
	for _, a := range rows {
		out = append(out, a.Attachment)
	}
	return out, err
}

// --- replies ---

type memReplies struct{ memScope }

func (r memReplies) Create(_ context.Context, reply *model.Reply) error {
	return r.do(func(st *memState) error {
		if _, ok := st.requests[reply.RequestID]; !ok {
			return repository.ErrReferenceNotFound
		}
		if _, ok := st.users[reply.AdminID]; !ok {
			return repository.ErrReferenceNotFound
		}
		reply.CreatedAt = r.db.now()
		st.replies = append(st.replies, *reply)
		return nil
	})
}

func (r memReplies) ListByRequestIDs(_ context.Context, ids []string) ([]model.Reply, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Reply
	err := r.do(func(st *memState) error {
		for _, reply := range st.replies {
			if want[reply.RequestID] {
				out = append(out, reply)
			}
		}
		return nil
	})
	return out, err
}

// --- окружение тестов ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv — сервисы поверх memDB.
type testEnv struct {
	db       *memDB
	identity *IdentityService
	requests *RequestService
	replies  *ReplyService
}

type envOptions struct {
	policy  string
	conceal bool
	admins  []string
}

func newTestEnv(opts envOptions) *testEnv {
	if opts.policy == "" {
		opts.policy = "addendum"
	}
	if opts.admins == nil {
		opts.admins = []string{"ADMIN123"}
	}
	db := newMemDB()
	logger := discardLogger()
	identity := NewIdentityService(db.Direct().Users, opts.admins, 16, time.Minute, logger)
	return &testEnv{
		db:       db,
		identity: identity,
		requests: NewRequestService(identity, db, opts.conceal, logger),
		replies:  NewReplyService(identity, db, opts.policy, logger),
	}
}
