package users

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordedReset struct {
	email    string
	name     string
	resetURL string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []recordedReset
	fail  error
	calls int
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, name, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, recordedReset{email: email, name: name, resetURL: resetURL})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) recordedReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("expected a reset notification to be sent")
	}
	return n.sent[len(n.sent)-1]
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(delta)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate users schema: %v", err)
	}
	return db
}

type serviceFixture struct {
	service  *Service
	db       *gorm.DB
	notifier *recordingNotifier
	clock    *testClock
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	db := openTestDatabase(t)
	notifier := &recordingNotifier{}
	clock := &testClock{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:      db,
		Clock:         clock.Now,
		IDProvider:    ids.NewUUIDProvider(),
		BcryptCost:    bcrypt.MinCost,
		ResetNotifier: notifier,
		FrontendURL:   "http://localhost:3000/",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return serviceFixture{service: service, db: db, notifier: notifier, clock: clock}
}

func countUsers(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	return count
}

var errDeliveryRefused = errors.New("smtp refused")
