package memory

import (
	"testing"
	"time"
)

func TestContextStoreGetAfterUpdate(t *testing.T) {
	s := NewContextStore(10 * time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.updateAt("user1", "add_course", map[string]string{"course": "math"}, now)

	got := s.getAt("user1", now.Add(time.Minute))
	if got == nil {
		t.Fatal("expected a context record")
	}
	if got.LastIntent != "add_course" {
		t.Errorf("LastIntent = %q, want add_course", got.LastIntent)
	}
	if got.LastEntities["course"] != "math" {
		t.Errorf("LastEntities = %v", got.LastEntities)
	}
	if want := now.Add(10 * time.Minute); !got.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want)
	}
}

func TestContextStoreLazyExpiry(t *testing.T) {
	s := NewContextStore(10 * time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.updateAt("user1", "add_course", map[string]string{"course": "math"}, now)

	// Past expiry the record is invisible even though it was never swept.
	if got := s.getAt("user1", now.Add(10*time.Minute+time.Second)); got != nil {
		t.Fatalf("expected nil after expiry, got %+v", got)
	}
	// The expired record was deleted on the way out.
	if s.Len() != 0 {
		t.Errorf("Len() = %d after expired read, want 0", s.Len())
	}
}

func TestContextStoreMissingUser(t *testing.T) {
	s := NewContextStore(0)
	if got := s.Get("nobody"); got != nil {
		t.Errorf("Get(nobody) = %+v, want nil", got)
	}
}

func TestContextStoreOverwriteResetsExpiry(t *testing.T) {
	s := NewContextStore(10 * time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.updateAt("user1", "add_course", nil, now)
	s.updateAt("user1", "cancel_course", map[string]string{"course": "piano"}, now.Add(8*time.Minute))

	got := s.getAt("user1", now.Add(15*time.Minute))
	if got == nil {
		t.Fatal("expected the refreshed record to still be live")
	}
	if got.LastIntent != "cancel_course" {
		t.Errorf("LastIntent = %q, want cancel_course", got.LastIntent)
	}
}

func TestContextStoreReturnsCopy(t *testing.T) {
	s := NewContextStore(10 * time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.updateAt("user1", "add_course", map[string]string{"course": "math"}, now)

	first := s.getAt("user1", now)
	first.LastEntities["course"] = "mutated"

	second := s.getAt("user1", now)
	if second.LastEntities["course"] != "math" {
		t.Error("caller mutation leaked into the store")
	}
}
