// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/taskhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the collections this service owns (if missing) and
// attaches JSON-Schema validators that pin the closed enums (task status,
// workflow phase, priority, notification type) at the database level.
// Deployments without collMod support are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("tasks", tasksSchema())
	ensure("chat_rooms", chatRoomsSchema())
	ensure("chat_messages", chatMessagesSchema())
	ensure("notifications", notificationsSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection makes sure name exists. created is true only when this call made it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func commandErrorMatches(err error, code int32, fragments ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandErrorMatches(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandErrorMatches(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandErrorMatches(err, 115, "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func enumOf[T ~string](values ...T) bson.A {
	out := make(bson.A, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

func tasksSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"project_id", "title", "status", "workflow_status", "assignee", "created_by", "deadline", "priority", "version"},
			"properties": bson.M{
				"project_id": bson.M{"bsonType": "objectId"},
				"title":      nonBlank,
				"status": bson.M{"enum": enumOf(
					models.StatusToDo, models.StatusInProgress, models.StatusReview, models.StatusDone)},
				"workflow_status": bson.M{"enum": enumOf(
					models.WorkflowAssignedToSelfTodo, models.WorkflowAssignedToMember,
					models.WorkflowSubmittedForReview, models.WorkflowRejectedByOwner,
					models.WorkflowApprovedCompleted, models.WorkflowOverdue, models.WorkflowDueSoon)},
				"priority": bson.M{"enum": enumOf(
					models.PriorityLow, models.PriorityMedium, models.PriorityHigh)},
				"assignee":   bson.M{"bsonType": "objectId"},
				"created_by": bson.M{"bsonType": "objectId"},
				"deadline":   bson.M{"bsonType": "date"},
				"version":    bson.M{"bsonType": bson.A{"long", "int"}, "minimum": 1},
				"comments": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"text", "author", "kind"},
						"properties": bson.M{
							"text":   bson.M{"bsonType": "string"},
							"author": bson.M{"bsonType": "objectId"},
							"kind": bson.M{"enum": enumOf(
								models.CommentGeneral, models.CommentRejection, models.CommentUpdateLog)},
						},
					},
				},
			},
		},
	}
}

func chatRoomsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"project_id", "name", "members"},
			"properties": bson.M{
				"project_id": bson.M{"bsonType": "objectId"},
				"name":       bson.M{"bsonType": "string"},
				"members":    bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func chatMessagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"chat_room_id", "sender", "text", "timestamp"},
			"properties": bson.M{
				"chat_room_id": bson.M{"bsonType": "objectId"},
				"sender":       bson.M{"bsonType": "objectId"},
				"text":         nonBlank,
				"timestamp":    bson.M{"bsonType": "date"},
				"read_by":      bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
			},
		},
	}
}

func notificationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"recipient", "type", "message", "is_read", "created_at"},
			"properties": bson.M{
				"recipient":  bson.M{"bsonType": "objectId"},
				"type":       bson.M{"enum": enumOf(models.NotificationTypes...)},
				"message":    bson.M{"bsonType": "string"},
				"is_read":    bson.M{"bsonType": "bool"},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
