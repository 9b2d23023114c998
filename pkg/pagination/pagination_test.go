package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultLimit},
		{in: -5, want: DefaultLimit},
		{in: 10, want: 10},
		{in: MaxLimit + 50, want: MaxLimit},
	}
	for _, tt := range tests {
		if got := NormalizeLimit(tt.in); got != tt.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("LimitWithBuffer(10) = %d, want 11", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	boundary := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		ID:        uuid.New(),
	}

	encoded := EncodeCursor(boundary)
	if encoded == "" {
		t.Fatal("expected a non-empty cursor")
	}

	parsed, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.CreatedAt.Equal(boundary.CreatedAt) || parsed.ID != boundary.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, boundary)
	}
}

func TestParseCursorFirstPage(t *testing.T) {
	t.Parallel()

	cursor, err := ParseCursor("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cursor != nil {
		t.Fatal("blank cursor must mean the first page")
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected error for non-base64 input")
	}
	if _, err := ParseCursor("bm90IGpzb24="); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
	// structurally valid but missing both boundary fields
	if _, err := ParseCursor(EncodeCursor(Cursor{})); err == nil {
		t.Fatal("expected error for a zero-value boundary")
	}
}
