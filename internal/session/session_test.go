package session

import (
	"testing"
	"time"

	"github.com/grpcweb-inspector/core/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ReflectionEnabled = false
	return cfg
}

func TestGenerateID(t *testing.T) {
	id1, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID failed: %v", err)
	}

	id2, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID failed: %v", err)
	}

	expectedLen := SessionIDLength * 2
	if len(id1) != expectedLen {
		t.Errorf("Expected ID length %d, got %d", expectedLen, len(id1))
	}

	if id1 == id2 {
		t.Error("Generated IDs should be unique")
	}
}

func TestGetOrCreate(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())
	defer manager.Close()

	eng1, id1, err := manager.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if eng1 == nil {
		t.Fatal("engine should not be nil")
	}

	eng2, id2, err := manager.GetOrCreate(id1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Expected same session ID, got %s and %s", id1, id2)
	}
	if eng1 != eng2 {
		t.Error("Expected same engine instance")
	}

	eng3, id3, err := manager.GetOrCreate("nonexistent")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if id3 == id1 {
		t.Error("Should create new session for nonexistent ID")
	}
	if eng3 == eng1 {
		t.Error("Should create new engine for nonexistent ID")
	}
}

func TestGet(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())
	defer manager.Close()

	eng1, id1, err := manager.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	eng2, ok := manager.Get(id1)
	if !ok {
		t.Fatal("Get should find the session")
	}
	if eng1 != eng2 {
		t.Error("Expected same engine instance")
	}

	if _, ok := manager.Get("nonexistent"); ok {
		t.Error("Get should return false for nonexistent session")
	}
}

func TestDelete(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())
	defer manager.Close()

	_, id, err := manager.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, ok := manager.Get(id); !ok {
		t.Fatal("Session should exist")
	}

	manager.Delete(id)

	if _, ok := manager.Get(id); ok {
		t.Error("Session should be deleted")
	}
}

func TestCleanup(t *testing.T) {
	shortTTL := 100 * time.Millisecond
	manager := NewManager(shortTTL, testConfig())
	defer manager.Close()

	_, id, err := manager.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, ok := manager.Get(id); !ok {
		t.Fatal("Session should exist")
	}

	manager.mu.Lock()
	manager.sessions[id].LastUsed = time.Now().Add(-2 * shortTTL)
	manager.mu.Unlock()

	manager.cleanup()

	if _, ok := manager.Get(id); ok {
		t.Error("Expired session should be cleaned up")
	}
}

func TestGetStats(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())
	defer manager.Close()

	stats := manager.GetStats()
	if stats.ActiveSessions != 0 {
		t.Errorf("Expected 0 active sessions, got %d", stats.ActiveSessions)
	}

	if _, _, err := manager.GetOrCreate(""); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, _, err := manager.GetOrCreate(""); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	stats = manager.GetStats()
	if stats.ActiveSessions != 2 {
		t.Errorf("Expected 2 active sessions, got %d", stats.ActiveSessions)
	}
	if stats.OldestSession == 0 {
		t.Error("OldestSession should be non-zero")
	}
	if stats.NewestSession == 0 {
		t.Error("NewestSession should be non-zero")
	}
	if stats.OldestSession <= stats.NewestSession {
		t.Error("OldestSession should be greater than NewestSession")
	}
}

func TestManagerClose(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())

	_, id1, _ := manager.GetOrCreate("")
	_, id2, _ := manager.GetOrCreate("")

	if _, ok := manager.Get(id1); !ok {
		t.Fatal("session 1 should exist")
	}
	if _, ok := manager.Get(id2); !ok {
		t.Fatal("session 2 should exist")
	}

	manager.Close()

	stats := manager.GetStats()
	if stats.ActiveSessions != 0 {
		t.Errorf("Expected 0 sessions after close, got %d", stats.ActiveSessions)
	}
}

func TestConcurrentAccess(t *testing.T) {
	manager := NewManager(DefaultSessionTTL, testConfig())
	defer manager.Close()

	_, id, err := manager.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				if _, ok := manager.Get(id); !ok {
					t.Error("session should exist")
				}
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
