// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Runtime is allocated in ConnectDB and filled in by Startup; WAFFLE passes
// DBDeps by value, so the pointer is what BuildHandler and Shutdown share.
type DBDeps struct {
	TaskHubMongoClient   *mongo.Client
	TaskHubMongoDatabase *mongo.Database
	Runtime              *Runtime
}
