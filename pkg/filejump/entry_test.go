package filejump

import (
	"testing"
	"time"
)

func TestParseEntryTime(t *testing.T) {
	got := ParseEntryTime("2025-10-03T13:07:48.000000Z")
	want := time.Date(2025, 10, 3, 13, 7, 48, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got = ParseEntryTime("2025-10-03T13:07:48.250000Z")
	if got.Nanosecond() != 250000000 {
		t.Errorf("expected 250ms fraction, got %d ns", got.Nanosecond())
	}

	if !ParseEntryTime("").IsZero() {
		t.Error("empty timestamp should decode to zero time")
	}
	if !ParseEntryTime("yesterday").IsZero() {
		t.Error("malformed timestamp should decode to zero time")
	}
}

func TestParseIDChain(t *testing.T) {
	cases := []struct {
		path string
		want []int64
	}{
		{"", []int64{0}},
		{"5", []int64{0, 5}},
		{"5/7", []int64{0, 5, 7}},
		{"5//7", []int64{0, 5, 7}},
		{"5/x/7", []int64{0, 5, 7}},
	}
	for _, tc := range cases {
		got := parseIDChain(tc.path)
		if len(got) != len(tc.want) {
			t.Errorf("parseIDChain(%q) = %v, want %v", tc.path, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("parseIDChain(%q) = %v, want %v", tc.path, got, tc.want)
				break
			}
		}
	}
}

func TestEntryFromRecord(t *testing.T) {
	parent := int64(5)
	e := entryFromRecord(EntryRecord{
		ID:        7,
		ParentID:  &parent,
		Name:      "docs",
		Path:      "5/7",
		Type:      "folder",
		CreatedAt: "2025-10-03T13:07:48.000000Z",
	})
	if !e.Dir {
		t.Error("type folder should map to a directory entry")
	}
	if e.ParentID != 5 {
		t.Errorf("expected parent 5, got %d", e.ParentID)
	}
	if len(e.Ancestors) != 3 || e.Ancestors[2] != 7 {
		t.Errorf("expected ancestor chain [0 5 7], got %v", e.Ancestors)
	}

	e = entryFromRecord(EntryRecord{ID: 9, Name: "a.txt", Path: "9", FileSize: 42})
	if e.Dir {
		t.Error("file entry decoded as directory")
	}
	if e.ParentID != 0 {
		t.Errorf("null parent should map to 0, got %d", e.ParentID)
	}
	if e.Size != 42 {
		t.Errorf("expected size 42, got %d", e.Size)
	}
}
