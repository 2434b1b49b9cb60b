package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-classroom/livepoll/internal/models"
)

const uniqueViolation = "23505"

// Postgres implements Store on a pgx pool. Close/vote races are settled by row
// locks on the question: votes read it FOR SHARE, closes update it.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error) {
	const query = `INSERT INTO users (id, name, role) VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, name, role, created_at`
	var u models.User
	err := r.pool.QueryRow(ctx, query, name, string(role)).Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (r *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const query = `SELECT id, name, role, created_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Postgres) CreatePoll(ctx context.Context, teacherID uuid.UUID, code string, title *string) (*models.Poll, error) {
	const query = `INSERT INTO polls (id, code, title, teacher_id) VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, code, title, teacher_id, created_at`
	var p models.Poll
	err := r.pool.QueryRow(ctx, query, code, title, teacherID).Scan(&p.ID, &p.Code, &p.Title, &p.TeacherID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("insert poll: %w", err)
	}
	return &p, nil
}

func (r *Postgres) GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	const query = `SELECT id, code, title, teacher_id, created_at FROM polls WHERE id = $1`
	var p models.Poll
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Code, &p.Title, &p.TeacherID, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *Postgres) GetPollByCode(ctx context.Context, code string) (*models.Poll, error) {
	const query = `SELECT id, code, title, teacher_id, created_at FROM polls WHERE UPPER(code) = UPPER($1)`
	var p models.Poll
	err := r.pool.QueryRow(ctx, query, strings.TrimSpace(code)).Scan(&p.ID, &p.Code, &p.Title, &p.TeacherID, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// JoinPoll inserts the participation or returns the existing row untouched.
func (r *Postgres) JoinPoll(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error) {
	const upsert = `INSERT INTO participations (poll_id, user_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (poll_id, user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, upsert, pollID, userID, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("upsert participation: %w", err)
	}
	return r.GetParticipation(ctx, pollID, userID)
}

func (r *Postgres) GetParticipation(ctx context.Context, pollID, userID uuid.UUID) (*models.Participation, error) {
	const query = `SELECT poll_id, user_id, joined_at, kicked_at FROM participations WHERE poll_id = $1 AND user_id = $2`
	var (
		p        models.Participation
		kickedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, query, pollID, userID).Scan(&p.PollID, &p.UserID, &p.JoinedAt, &kickedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.State = models.StateFromKickedAt(kickedAt)
	return &p, nil
}

func (r *Postgres) ListParticipants(ctx context.Context, pollID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.user_id, u.name, p.joined_at
		 FROM participations p JOIN users u ON u.id = p.user_id
		 WHERE p.poll_id = $1 AND p.kicked_at IS NULL
		 ORDER BY p.joined_at ASC`,
		pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Participant{}
	for rows.Next() {
		var row models.Participant
		if err := rows.Scan(&row.UserID, &row.Name, &row.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// KickParticipant stamps kicked_at once; a repeated kick keeps the first stamp.
func (r *Postgres) KickParticipant(ctx context.Context, pollID, userID uuid.UUID, now time.Time) (*models.Participation, error) {
	const query = `UPDATE participations SET kicked_at = COALESCE(kicked_at, $3)
		WHERE poll_id = $1 AND user_id = $2
		RETURNING poll_id, user_id, joined_at, kicked_at`
	var (
		p        models.Participation
		kickedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, query, pollID, userID, now).Scan(&p.PollID, &p.UserID, &p.JoinedAt, &kickedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.State = models.StateFromKickedAt(kickedAt)
	return &p, nil
}

// CreateQuestion locks the poll row, closes the ACTIVE question and inserts the
// new one in a single transaction, so concurrent creates for a poll serialize.
func (r *Postgres) CreateQuestion(ctx context.Context, pollID uuid.UUID, draft models.QuestionDraft, now time.Time) (*models.Question, []models.Question, error) {
	var (
		created *models.Question
		closed  []models.Question
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM polls WHERE id = $1 FOR UPDATE`, pollID).Scan(&locked); err != nil {
			return notFound(err)
		}

		var err error
		closed, err = closeActive(ctx, tx, pollID, now)
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE poll_id = $1`, pollID).Scan(&count); err != nil {
			return fmt.Errorf("count questions: %w", err)
		}

		q := models.Question{
			PollID:      pollID,
			Text:        draft.Text,
			Position:    count + 1,
			Status:      models.QuestionActive,
			TimeLimitMs: draft.TimeLimitMs,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (id, poll_id, text, position, status, time_limit_ms, asked_at)
			 VALUES (gen_random_uuid(), $1, $2, $3, 'ACTIVE', $4, $5)
			 RETURNING id, asked_at`,
			pollID, q.Text, q.Position, q.TimeLimitMs, now).Scan(&q.ID, &q.AskedAt)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		batch := &pgx.Batch{}
		for i, od := range draft.Options {
			batch.Queue(`INSERT INTO options (id, question_id, text, position, is_correct)
				VALUES (gen_random_uuid(), $1, $2, $3, $4) RETURNING id`,
				q.ID, od.Text, i+1, od.IsCorrect)
		}
		results := tx.SendBatch(ctx, batch)
		for i, od := range draft.Options {
			o := models.Option{QuestionID: q.ID, Text: od.Text, Position: i + 1, IsCorrect: od.IsCorrect}
			if err := results.QueryRow().Scan(&o.ID); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert option %d: %w", i+1, err)
			}
			q.Options = append(q.Options, o)
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("insert options: %w", err)
		}
		created = &q
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, closed, nil
}

func (r *Postgres) CloseActiveQuestion(ctx context.Context, pollID uuid.UUID, now time.Time) ([]models.Question, error) {
	return closeActive(ctx, r.pool, pollID, now)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func closeActive(ctx context.Context, q querier, pollID uuid.UUID, now time.Time) ([]models.Question, error) {
	rows, err := q.Query(ctx,
		`UPDATE questions SET status = 'CLOSED', closed_at = $2
		 WHERE poll_id = $1 AND status = 'ACTIVE'
		 RETURNING id, poll_id, text, position, status, time_limit_ms, asked_at, closed_at`,
		pollID, now)
	if err != nil {
		return nil, fmt.Errorf("close active question: %w", err)
	}
	defer rows.Close()
	var closed []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		closed = append(closed, q)
	}
	return closed, rows.Err()
}

// CloseQuestion closes one question if it is still ACTIVE.
func (r *Postgres) CloseQuestion(ctx context.Context, questionID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions SET status = 'CLOSED', closed_at = $2 WHERE id = $1 AND status = 'ACTIVE'`,
		questionID, now)
	if err != nil {
		return false, fmt.Errorf("close question: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const questionColumns = `id, poll_id, text, position, status, time_limit_ms, asked_at, closed_at`

func scanQuestion(row pgx.Row) (models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.PollID, &q.Text, &q.Position, &q.Status, &q.TimeLimitMs, &q.AskedAt, &q.ClosedAt)
	return q, err
}

func (r *Postgres) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.attachOptions(ctx, []*models.Question{&q}); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Postgres) GetActiveQuestion(ctx context.Context, pollID uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE poll_id = $1 AND status = 'ACTIVE'
		 ORDER BY position DESC LIMIT 1`, pollID))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.attachOptions(ctx, []*models.Question{&q}); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Postgres) ListQuestions(ctx context.Context, pollID uuid.UUID) ([]models.Question, error) {
	return r.listQuestions(ctx, `SELECT `+questionColumns+` FROM questions WHERE poll_id = $1 ORDER BY position ASC`, pollID)
}

func (r *Postgres) ListActiveQuestions(ctx context.Context) ([]models.Question, error) {
	return r.listQuestions(ctx, `SELECT `+questionColumns+` FROM questions WHERE status = 'ACTIVE'`)
}

func (r *Postgres) listQuestions(ctx context.Context, query string, args ...any) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*models.Question, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	if err := r.attachOptions(ctx, ptrs); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Postgres) attachOptions(ctx context.Context, questions []*models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Question, len(questions))
	ids := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		q.Options = []models.Option{}
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, text, position, is_correct FROM options
		 WHERE question_id = ANY($1) ORDER BY question_id, position ASC`, ids)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Position, &o.IsCorrect); err != nil {
			return err
		}
		if q := byID[o.QuestionID]; q != nil {
			q.Options = append(q.Options, o)
		}
	}
	return rows.Err()
}

// UpsertVote validates the option against the caller's poll and the question
// status under a share lock, then writes last-write-wins on (question, user).
// A CLOSED question only takes the voter's catch-up vote.
func (r *Postgres) UpsertVote(ctx context.Context, pollID, userID, optionID uuid.UUID, now time.Time) (*models.Vote, error) {
	var v models.Vote
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			questionID     uuid.UUID
			questionPollID uuid.UUID
			status         models.QuestionStatus
		)
		err := tx.QueryRow(ctx,
			`SELECT q.id, q.poll_id, q.status FROM options o
			 JOIN questions q ON q.id = o.question_id
			 WHERE o.id = $1 FOR SHARE OF q`, optionID).Scan(&questionID, &questionPollID, &status)
		if err != nil {
			return notFound(err)
		}
		if questionPollID != pollID {
			return ErrNotFound
		}
		if status != models.QuestionActive {
			return insertCatchUpVote(ctx, tx, pollID, questionID, userID, optionID, now, &v)
		}
		return tx.QueryRow(ctx,
			`INSERT INTO votes (question_id, user_id, option_id, voted_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (question_id, user_id) DO UPDATE SET option_id = EXCLUDED.option_id, voted_at = EXCLUDED.voted_at
			 RETURNING question_id, user_id, option_id, voted_at`,
			questionID, userID, optionID, now).Scan(&v.QuestionID, &v.UserID, &v.OptionID, &v.VotedAt)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// insertCatchUpVote accepts a first vote on a CLOSED question when it is the
// voter's lowest positioned unanswered question. Re-votes stay rejected.
func insertCatchUpVote(ctx context.Context, tx pgx.Tx, pollID, questionID, userID, optionID uuid.UUID, now time.Time, v *models.Vote) error {
	var target uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT q.id FROM questions q
		 WHERE q.poll_id = $1 AND NOT EXISTS (
			SELECT 1 FROM votes v WHERE v.question_id = q.id AND v.user_id = $2)
		 ORDER BY q.position ASC LIMIT 1`, pollID, userID).Scan(&target)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && target != questionID) {
		return ErrQuestionClosed
	}
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO votes (question_id, user_id, option_id, voted_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (question_id, user_id) DO NOTHING
		 RETURNING question_id, user_id, option_id, voted_at`,
		questionID, userID, optionID, now).Scan(&v.QuestionID, &v.UserID, &v.OptionID, &v.VotedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrQuestionClosed
	}
	return err
}

func (r *Postgres) VotedQuestionIDs(ctx context.Context, pollID, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.question_id FROM votes v JOIN questions q ON q.id = v.question_id
		 WHERE q.poll_id = $1 AND v.user_id = $2`, pollID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	voted := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		voted[id] = true
	}
	return voted, rows.Err()
}

// Tally counts votes per option; the LEFT JOIN keeps zero-vote options.
func (r *Postgres) Tally(ctx context.Context, questionID uuid.UUID) ([]models.OptionCount, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = $1)`, questionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.text, o.position, o.is_correct, COUNT(v.user_id)
		 FROM options o LEFT JOIN votes v ON v.option_id = o.id AND v.question_id = o.question_id
		 WHERE o.question_id = $1
		 GROUP BY o.id, o.text, o.position, o.is_correct
		 ORDER BY o.position ASC`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.OptionCount{}
	for rows.Next() {
		var c models.OptionCount
		if err := rows.Scan(&c.OptionID, &c.Text, &c.Position, &c.IsCorrect, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Postgres) AppendChatMessage(ctx context.Context, pollID, userID uuid.UUID, text string, now time.Time) (*models.ChatMessage, error) {
	const query = `WITH ins AS (
			INSERT INTO chat_messages (id, poll_id, user_id, text, created_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4)
			RETURNING id, poll_id, user_id, text, created_at
		)
		SELECT ins.id, ins.poll_id, ins.user_id, u.name, ins.text, ins.created_at
		FROM ins JOIN users u ON u.id = ins.user_id`
	var m models.ChatMessage
	err := r.pool.QueryRow(ctx, query, pollID, userID, text, now).
		Scan(&m.ID, &m.PollID, &m.UserID, &m.Name, &m.Text, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return &m, nil
}

// RecentChatMessages returns the newest limit messages, oldest first.
func (r *Postgres) RecentChatMessages(ctx context.Context, pollID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (
			SELECT m.id, m.poll_id, m.user_id, u.name, m.text, m.created_at
			FROM chat_messages m JOIN users u ON u.id = m.user_id
			WHERE m.poll_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		 ) recent ORDER BY created_at ASC, id ASC`, pollID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.PollID, &m.UserID, &m.Name, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
