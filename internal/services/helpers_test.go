package services

import (
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// ---------- test helpers ----------

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:       strings.ToLower(name) + "@example.com",
		Password:    "x",
		DisplayName: name,
		Role:        domain.RoleUser,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func ident(u *domain.User) domain.Identity {
	return domain.Identity{ID: u.ID, Role: u.Role}
}

// intentsFor returns the intents of kind addressed to userID (or any user
// when userID is 0) carrying event (or any event when empty).
func intentsFor(in []realtime.Intent, kind realtime.IntentKind, userID uint, event string) []realtime.Intent {
	var out []realtime.Intent
	for _, i := range in {
		if i.Kind != kind {
			continue
		}
		if userID != 0 && i.UserID != userID {
			continue
		}
		if event != "" && i.Event != event {
			continue
		}
		out = append(out, i)
	}
	return out
}
