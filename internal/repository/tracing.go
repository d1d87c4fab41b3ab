package repository

import (
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/lold2424/LessURL-Service/internal/repository")

var (
	ErrNotFound   = errors.New("short link not found")
	ErrIDConflict = errors.New("short id already exists")
)

// PostgreSQL SQLSTATE codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)
