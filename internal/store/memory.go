package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-classroom/livepoll/internal/models"
)

type pollUserKey struct {
	pollID uuid.UUID
	userID uuid.UUID
}

type questionUserKey struct {
	questionID uuid.UUID
	userID     uuid.UUID
}

// Memory is an in-process Store. A single mutex is the serialization point for
// every write, so it only suits one server process.
type Memory struct {
	mu sync.Mutex

	users          map[uuid.UUID]models.User
	polls          map[uuid.UUID]models.Poll
	codes          map[string]uuid.UUID
	participations map[pollUserKey]*models.Participation
	joinOrder      map[uuid.UUID][]uuid.UUID
	questions      map[uuid.UUID]*models.Question
	pollQuestions  map[uuid.UUID][]uuid.UUID
	options        map[uuid.UUID]models.Option
	votes          map[questionUserKey]models.Vote
	chat           map[uuid.UUID][]models.ChatMessage
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:          make(map[uuid.UUID]models.User),
		polls:          make(map[uuid.UUID]models.Poll),
		codes:          make(map[string]uuid.UUID),
		participations: make(map[pollUserKey]*models.Participation),
		joinOrder:      make(map[uuid.UUID][]uuid.UUID),
		questions:      make(map[uuid.UUID]*models.Question),
		pollQuestions:  make(map[uuid.UUID][]uuid.UUID),
		options:        make(map[uuid.UUID]models.Option),
		votes:          make(map[questionUserKey]models.Vote),
		chat:           make(map[uuid.UUID][]models.ChatMessage),
	}
}

func (m *Memory) CreateUser(_ context.Context, name string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Name: name, Role: role, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return &u, nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) CreatePoll(_ context.Context, teacherID uuid.UUID, code string, title *string) (*models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(code)
	if _, taken := m.codes[key]; taken {
		return nil, ErrDuplicateCode
	}
	p := models.Poll{ID: uuid.New(), Code: code, Title: title, TeacherID: teacherID, CreatedAt: time.Now()}
	m.polls[p.ID] = p
	m.codes[key] = p.ID
	return &p, nil
}

func (m *Memory) GetPoll(_ context.Context, id uuid.UUID) (*models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPollByCode(_ context.Context, code string) (*models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrNotFound
	}
	p := m.polls[id]
	return &p, nil
}

func (m *Memory) JoinPoll(_ context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[pollID]; !ok {
		return nil, ErrNotFound
	}
	key := pollUserKey{pollID, userID}
	if p, ok := m.participations[key]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.Participation{PollID: pollID, UserID: userID, JoinedAt: now, State: models.Active{}}
	m.participations[key] = p
	m.joinOrder[pollID] = append(m.joinOrder[pollID], userID)
	cp := *p
	return &cp, nil
}

func (m *Memory) GetParticipation(_ context.Context, pollID, userID uuid.UUID) (*models.Participation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participations[pollUserKey{pollID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListParticipants(_ context.Context, pollID uuid.UUID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Participant, 0, len(m.joinOrder[pollID]))
	for _, userID := range m.joinOrder[pollID] {
		p := m.participations[pollUserKey{pollID, userID}]
		if p.IsKicked() {
			continue
		}
		list = append(list, models.Participant{UserID: userID, Name: m.users[userID].Name, JoinedAt: p.JoinedAt})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].JoinedAt.Before(list[j].JoinedAt) })
	return list, nil
}

func (m *Memory) KickParticipant(_ context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participations[pollUserKey{pollID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	if !p.IsKicked() {
		p.State = models.Kicked{At: now}
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) CreateQuestion(_ context.Context, pollID uuid.UUID, draft models.QuestionDraft, now time.Time) (*models.Question, []models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[pollID]; !ok {
		return nil, nil, ErrNotFound
	}
	closed := m.closeActiveLocked(pollID, now)

	askedAt := now
	q := &models.Question{
		ID:          uuid.New(),
		PollID:      pollID,
		Text:        draft.Text,
		Position:    len(m.pollQuestions[pollID]) + 1,
		Status:      models.QuestionActive,
		TimeLimitMs: draft.TimeLimitMs,
		AskedAt:     &askedAt,
	}
	for i, od := range draft.Options {
		o := models.Option{
			ID:         uuid.New(),
			QuestionID: q.ID,
			Text:       od.Text,
			Position:   i + 1,
			IsCorrect:  od.IsCorrect,
		}
		m.options[o.ID] = o
		q.Options = append(q.Options, o)
	}
	m.questions[q.ID] = q
	m.pollQuestions[pollID] = append(m.pollQuestions[pollID], q.ID)
	return copyQuestion(q), closed, nil
}

func (m *Memory) CloseActiveQuestion(_ context.Context, pollID uuid.UUID, now time.Time) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeActiveLocked(pollID, now), nil
}

func (m *Memory) closeActiveLocked(pollID uuid.UUID, now time.Time) []models.Question {
	var closed []models.Question
	for _, id := range m.pollQuestions[pollID] {
		q := m.questions[id]
		if q.Status != models.QuestionActive {
			continue
		}
		closedAt := now
		q.Status = models.QuestionClosed
		q.ClosedAt = &closedAt
		closed = append(closed, *copyQuestion(q))
	}
	return closed
}

func (m *Memory) CloseQuestion(_ context.Context, questionID uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok {
		return false, ErrNotFound
	}
	if q.Status != models.QuestionActive {
		return false, nil
	}
	closedAt := now
	q.Status = models.QuestionClosed
	q.ClosedAt = &closedAt
	return true, nil
}

func (m *Memory) GetQuestion(_ context.Context, id uuid.UUID) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyQuestion(q), nil
}

func (m *Memory) GetActiveQuestion(_ context.Context, pollID uuid.UUID) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.pollQuestions[pollID]
	for i := len(ids) - 1; i >= 0; i-- {
		if q := m.questions[ids[i]]; q.Status == models.QuestionActive {
			return copyQuestion(q), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListQuestions(_ context.Context, pollID uuid.UUID) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Question, 0, len(m.pollQuestions[pollID]))
	for _, id := range m.pollQuestions[pollID] {
		list = append(list, *copyQuestion(m.questions[id]))
	}
	return list, nil
}

func (m *Memory) ListActiveQuestions(_ context.Context) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Question
	for _, q := range m.questions {
		if q.Status == models.QuestionActive {
			list = append(list, *copyQuestion(q))
		}
	}
	return list, nil
}

func (m *Memory) UpsertVote(_ context.Context, pollID, userID, optionID uuid.UUID, now time.Time) (*models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[optionID]
	if !ok {
		return nil, ErrNotFound
	}
	q := m.questions[o.QuestionID]
	if q == nil || q.PollID != pollID {
		return nil, ErrNotFound
	}
	if q.Status != models.QuestionActive && m.catchUpTarget(pollID, userID) != q.ID {
		return nil, ErrQuestionClosed
	}
	v := models.Vote{QuestionID: q.ID, UserID: userID, OptionID: optionID, VotedAt: now}
	m.votes[questionUserKey{q.ID, userID}] = v
	return &v, nil
}

// catchUpTarget is the lowest positioned question of pollID without a vote
// from userID, or uuid.Nil. Caller holds m.mu.
func (m *Memory) catchUpTarget(pollID, userID uuid.UUID) uuid.UUID {
	for _, id := range m.pollQuestions[pollID] {
		if _, ok := m.votes[questionUserKey{id, userID}]; !ok {
			return id
		}
	}
	return uuid.Nil
}

func (m *Memory) VotedQuestionIDs(_ context.Context, pollID, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	voted := make(map[uuid.UUID]bool)
	for _, id := range m.pollQuestions[pollID] {
		if _, ok := m.votes[questionUserKey{id, userID}]; ok {
			voted[id] = true
		}
	}
	return voted, nil
}

func (m *Memory) Tally(_ context.Context, questionID uuid.UUID) ([]models.OptionCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	counts := make(map[uuid.UUID]int, len(q.Options))
	for key, v := range m.votes {
		if key.questionID == questionID {
			counts[v.OptionID]++
		}
	}
	out := make([]models.OptionCount, 0, len(q.Options))
	for _, o := range q.Options {
		out = append(out, models.OptionCount{
			OptionID:  o.ID,
			Text:      o.Text,
			Position:  o.Position,
			IsCorrect: o.IsCorrect,
			Count:     counts[o.ID],
		})
	}
	return out, nil
}

func (m *Memory) AppendChatMessage(_ context.Context, pollID, userID uuid.UUID, text string, now time.Time) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[pollID]; !ok {
		return nil, ErrNotFound
	}
	msg := models.ChatMessage{
		ID:        uuid.New(),
		PollID:    pollID,
		UserID:    userID,
		Name:      m.users[userID].Name,
		Text:      text,
		CreatedAt: now,
	}
	m.chat[pollID] = append(m.chat[pollID], msg)
	return &msg, nil
}

func (m *Memory) RecentChatMessages(_ context.Context, pollID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.chat[pollID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]models.ChatMessage, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func copyQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.Options = append([]models.Option(nil), q.Options...)
	return &cp
}
