package audit

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const actionLogCollection = "action_log"

// ActionLogger appends action records to a MongoDB collection for the
// admin surface. Writes are best-effort: failures are logged and never
// propagated to the caller. A nil logger is safe to call.
type ActionLogger struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewActionLogger(client *mongo.Client, database string) *ActionLogger {
	if client == nil {
		return nil
	}
	return &ActionLogger{
		coll:    client.Database(database).Collection(actionLogCollection),
		timeout: 3 * time.Second,
	}
}

func (l *ActionLogger) LogAction(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	if l == nil || l.coll == nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	doc := bson.M{
		"action":      action,
		"entity_type": entityType,
		"entity_id":   entityID,
		"details":     details,
		"timestamp":   time.Now(),
	}

	if _, err := l.coll.InsertOne(cctx, doc); err != nil {
		slog.Warn("Failed to write action log",
			slog.String("action", action),
			slog.String("entity_type", entityType),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}
}
