// Package exports produces downloadable snapshots of a poll's results. The
// HTTP side only enqueues and polls; the worker builds and uploads the file.
package exports

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/apperr"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/queue"
	"github.com/aura-classroom/livepoll/pkg/storage"
)

// ErrUnavailable is returned when no queue or object store is configured.
var ErrUnavailable = errors.New("exports are not configured")

// JobQueue accepts export jobs.
type JobQueue interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPollPayload) error
}

// ObjectStore reads finished exports.
type ObjectStore interface {
	ExportExists(ctx context.Context, key string) (bool, error)
	PresignExport(ctx context.Context, key string) (string, error)
}

// Ticket identifies a requested export.
type Ticket struct {
	ExportID uuid.UUID `json:"export_id"`
	Key      string    `json:"key"`
}

// Status is the state of an export.
type Status struct {
	ExportID uuid.UUID `json:"export_id"`
	Status   string    `json:"status"`
	URL      string    `json:"url,omitempty"`
}

// Service requests exports and reports on them.
type Service struct {
	queue   JobQueue
	objects ObjectStore
	logger  *zap.Logger
}

// NewService creates an export service. Either dependency may be nil, in
// which case every call returns ErrUnavailable.
func NewService(q JobQueue, objects ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{queue: q, objects: objects, logger: logger}
}

func (s *Service) available() bool {
	return s.queue != nil && s.objects != nil
}

func requireTeacher(sess session.Session) error {
	if !sess.IsTeacher() || !sess.HasPoll() {
		return apperr.Authorization("teacher with a poll required")
	}
	return nil
}

// Request enqueues an export of the session poll.
func (s *Service) Request(ctx context.Context, sess session.Session) (*Ticket, error) {
	if err := requireTeacher(sess); err != nil {
		return nil, err
	}
	if !s.available() {
		return nil, ErrUnavailable
	}
	id := uuid.New()
	key := storage.ExportKey(sess.PollID.String(), id.String())
	err := s.queue.EnqueueExport(ctx, queue.ExportPollPayload{
		ExportID:    id,
		PollID:      sess.PollID,
		Key:         key,
		RequestedBy: sess.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue export: %w", err)
	}
	s.logger.Info("export requested", zap.String("export_id", id.String()), zap.String("poll_id", sess.PollID.String()))
	return &Ticket{ExportID: id, Key: key}, nil
}

// Status reports whether the export has been written and, if so, where to get it.
func (s *Service) Status(ctx context.Context, sess session.Session, exportID uuid.UUID) (*Status, error) {
	if err := requireTeacher(sess); err != nil {
		return nil, err
	}
	if !s.available() {
		return nil, ErrUnavailable
	}
	key := storage.ExportKey(sess.PollID.String(), exportID.String())
	ok, err := s.objects.ExportExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Status{ExportID: exportID, Status: "pending"}, nil
	}
	url, err := s.objects.PresignExport(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Status{ExportID: exportID, Status: "ready", URL: url}, nil
}
