package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/carvajal-autotech/quiz-service/internal/models"
)

const eventPublishTimeout = 5 * time.Second

// requireAdmin returns a PermissionError unless actor is an admin.
func requireAdmin(actor *models.User, resource, resourceID, action string) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return NewPermissionError(actor.ID, resourceID, resource, action, "admin role required")
	}
	return nil
}

// requireSelfOrAdmin lets a student act on their own records only.
func requireSelfOrAdmin(actor *models.User, studentID, resource, action string) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if actor.IsAdmin() || actor.ID == studentID {
		return nil
	}
	return NewPermissionError(actor.ID, studentID, resource, action, "not the owner of this record")
}

func uintID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// eventEmitter publishes domain events best-effort. A failed publish is
// logged and never fails the caller.
type eventEmitter struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func newEventEmitter(publisher events.EventPublisher, logger *slog.Logger) *eventEmitter {
	return &eventEmitter{publisher: publisher, logger: logger}
}

func (e *eventEmitter) emit(ctx context.Context, event *events.Event) {
	if e == nil || e.publisher == nil || event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.logger.Warn("Failed to publish event",
			"event_type", event.Type,
			"event_id", event.ID,
			"student_id", event.StudentID,
			"error", err)
	}
}
