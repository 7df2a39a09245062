// This file contains the aggregate types the server wires repositories into.
package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	User UserRepository
	File FileRepository
}

// DatabaseHealth is an interface for database health checks.
// The HTTP health endpoint uses it without knowing the driver.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
