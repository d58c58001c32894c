// Package errsink records every caught failure as a structured event row
// (source tag, message, stack context, free-form JSON payload) alongside
// the regular log line. Capturing never fails the caller.
package errsink

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"sigtrade/internal/logger"
	"sigtrade/internal/store/model"
)

// EventStore is the persistence slice the sink writes to.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *model.Event) error
}

type Sink struct {
	store EventStore
}

func New(store EventStore) *Sink {
	return &Sink{store: store}
}

// Capture persists one error event. A nil sink or nil error is a no-op.
func (s *Sink) Capture(source string, err error, payload map[string]any) {
	if s == nil || err == nil {
		return
	}
	logger.Warnf("%s: %v", source, err)
	if s.store == nil {
		return
	}
	raw, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		raw = []byte("{}")
	}
	ev := model.Event{
		EventID:       uuid.NewString(),
		Source:        source,
		Message:       err.Error(),
		Stack:         string(debug.Stack()),
		Payload:       datatypes.JSON(raw),
		CreatedAtUnix: time.Now().Unix(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if storeErr := s.store.AppendEvent(ctx, &ev); storeErr != nil {
		logger.Errorf("errsink: append failed source=%s: %v", source, storeErr)
	}
}
