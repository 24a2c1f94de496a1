package filejump

import (
	"strconv"
	"strings"
	"time"
)

// Entry is a decoded drive entry (file or folder) as used by callers.
// It is derived from the wire-level EntryRecord.
type Entry struct {
	ID          int64
	ParentID    int64 // 0 for entries directly under the drive root
	Name        string
	Dir         bool
	Size        int64
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Ancestors is the id chain from the root to this entry, starting
	// with the root marker 0 and ending with the entry's own id.
	Ancestors []int64
}

// EntryTimeLayout is the timestamp format the server emits,
// e.g. "2025-10-03T13:07:48.000000Z".
const EntryTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ParseEntryTime decodes a server timestamp. Unparseable values yield
// the zero time rather than an error; entry metadata is advisory.
func ParseEntryTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseIDChain splits a "12/34/56"-style ancestor path into ids,
// prepending the root marker 0. Malformed segments are skipped.
func parseIDChain(path string) []int64 {
	ids := []int64{0}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		id, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// entryFromRecord converts a wire record into the caller-facing form.
func entryFromRecord(r EntryRecord) Entry {
	e := Entry{
		ID:          r.ID,
		Name:        r.Name,
		Dir:         r.Type == "folder",
		Size:        r.FileSize,
		Description: r.Description,
		CreatedAt:   ParseEntryTime(r.CreatedAt),
		UpdatedAt:   ParseEntryTime(r.UpdatedAt),
		Ancestors:   parseIDChain(r.Path),
	}
	if r.ParentID != nil {
		e.ParentID = *r.ParentID
	}
	return e
}

func entriesFromRecords(records []EntryRecord) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		out = append(out, entryFromRecord(r))
	}
	return out
}
