package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMeterJSON_OmitsZeroTimestamps(t *testing.T) {
	b, err := json.Marshal(Meter{ID: 1, MeterNumber: "04-1188", CurrentUnits: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if s := string(b); strings.Contains(s, "createdAt") || strings.Contains(s, "updatedAt") {
		t.Fatalf("zero timestamps must be omitted: %s", s)
	}

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	b, _ = json.Marshal(Meter{ID: 1, CreatedAt: ts, UpdatedAt: ts})
	if !strings.Contains(string(b), `"createdAt":"2025-08-01T10:00:00Z"`) {
		t.Fatalf("set timestamps must be encoded: %s", b)
	}
}

func TestCloneMeters_DoesNotShareBacking(t *testing.T) {
	src := []Meter{{ID: 1, CurrentUnits: 5}}
	dst := CloneMeters(src)
	dst[0].CurrentUnits = 0
	if src[0].CurrentUnits != 5 {
		t.Fatal("clone must not alias the source")
	}
	if CloneMeters(nil) != nil {
		t.Fatal("nil stays nil")
	}
}
