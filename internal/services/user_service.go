package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/repo"
)

// UserSearchResult is a user as shown in search results.
type UserSearchResult struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	PhotoURL    string `json:"photoURL"`
}

// UserService serves user lookup.
type UserService struct {
	DB *gorm.DB

	// Limit caps the number of search results.
	Limit int
}

// Search returns users whose email or display name contains q, ignoring
// case, excluding the caller. An empty query matches nothing.
func (s *UserService) Search(ctx context.Context, callerID uint, q string) ([]UserSearchResult, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int("query.len", len(q)),
		),
	)
	defer span.End()

	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return []UserSearchResult{}, nil
	}
	q = cases.Lower(language.Und).String(q)

	limit := s.Limit
	if limit <= 0 {
		limit = 20
	}
	users, err := repo.SearchUsers(ctx, s.DB, q, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]UserSearchResult, 0, len(users))
	for _, u := range users {
		out = append(out, UserSearchResult{ID: u.ID, DisplayName: u.DisplayName, Bio: u.Bio, PhotoURL: u.PhotoURL})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}
