package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/lumamart/api/internal/platform/pagination"
)

func TestOrderCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	token, err := encodeOrderCursor(orderCursor{CreatedAt: createdAt, ID: "ord_42"})
	if err != nil {
		t.Fatalf("encodeOrderCursor returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	cursor, err := decodeOrderCursor(token)
	if err != nil {
		t.Fatalf("decodeOrderCursor returned error: %v", err)
	}
	if cursor == nil {
		t.Fatal("expected a cursor")
	}
	if !cursor.CreatedAt.Equal(createdAt) || cursor.ID != "ord_42" {
		t.Fatalf("unexpected cursor: %+v", cursor)
	}
}

func TestDecodeOrderCursorEmptyToken(t *testing.T) {
	cursor, err := decodeOrderCursor("  ")
	if err != nil {
		t.Fatalf("decodeOrderCursor returned error: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected nil cursor, got %+v", cursor)
	}
}

func TestDecodeOrderCursorRejectsForeignTokens(t *testing.T) {
	wrongShape, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"only-one-value"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	cases := map[string]string{
		"not base64":    "not!!base64",
		"wrong shape":   wrongShape,
		"not timestamp": mustToken(t, []any{"yesterday", "ord_1"}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeOrderCursor(token); !errors.Is(err, pagination.ErrInvalidPageToken) {
				t.Fatalf("expected ErrInvalidPageToken, got %v", err)
			}
		})
	}
}

func mustToken(t *testing.T, startAfter []any) string {
	t.Helper()
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: startAfter})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	return token
}
