package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/validators"
	"github.com/dalemusser/taskhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("first EnsureAll failed: %v", err)
	}
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	want := map[string]bool{"tasks": false, "chat_rooms": false, "chat_messages": false, "notifications": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected collection %q to exist", name)
		}
	}
}

func TestEnsureAll_RejectsUnknownWorkflowStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	doc := bson.M{
		"project_id":      primitive.NewObjectID(),
		"title":           "Bad phase",
		"status":          "ToDo",
		"workflow_status": "paused",
		"assignee":        primitive.NewObjectID(),
		"created_by":      primitive.NewObjectID(),
		"deadline":        time.Now(),
		"priority":        "Low",
		"version":         int64(1),
	}
	if _, err := db.Collection("tasks").InsertOne(ctx, doc); err == nil {
		t.Error("expected insert with unknown workflow_status to be rejected")
	}

	doc["workflow_status"] = "assigned_to_self_todo"
	if _, err := db.Collection("tasks").InsertOne(ctx, doc); err != nil {
		t.Errorf("expected valid task to insert, got %v", err)
	}
}

func TestEnsureAll_RejectsUnknownNotificationType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	_, err := db.Collection("notifications").InsertOne(ctx, bson.M{
		"recipient":  primitive.NewObjectID(),
		"type":       "party_invite",
		"message":    "hi",
		"is_read":    false,
		"created_at": time.Now(),
	})
	if err == nil {
		t.Error("expected insert with unknown notification type to be rejected")
	}
}
