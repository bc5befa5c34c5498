package pagination

import (
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, seq := range []uint64{1, 42, 1000000} {
		cursor := Encode(seq)
		got, err := Decode(cursor)
		if err != nil {
			t.Fatalf("Decode(%q): %v", cursor, err)
		}
		if got != seq {
			t.Errorf("round trip %d: got %d", seq, got)
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	seq, err := Decode("")
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("empty cursor should decode to 0, got %d", seq)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, s := range []string{"not-base64!!!", "aGVsbG8=", "===="} {
		if _, err := Decode(s); err == nil {
			t.Errorf("Decode(%q) should fail", s)
		}
	}
}

type item struct {
	seq uint64
}

func TestComputePage_HasMore(t *testing.T) {
	// Fetched limit+1 items: one extra signals another page.
	items := []item{{1}, {2}, {3}, {4}}
	page, cursor, hasMore := ComputePage(items, 3, func(i item) uint64 { return i.seq })

	if len(page) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page))
	}
	if !hasMore {
		t.Error("expected has_more")
	}
	seq, err := Decode(cursor)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Errorf("cursor should point at last returned item, got %d", seq)
	}
}

func TestComputePage_LastPage(t *testing.T) {
	items := []item{{1}, {2}}
	page, cursor, hasMore := ComputePage(items, 3, func(i item) uint64 { return i.seq })

	if len(page) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page))
	}
	if hasMore || cursor != "" {
		t.Error("last page should not report more")
	}
}
