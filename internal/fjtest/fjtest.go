// Package fjtest provides an in-memory FileJump API server for tests.
// It implements the endpoints the bridge uses with the same envelopes
// and pagination behavior as the real service, and records calls so
// tests can assert on cache behavior.
package fjtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zlev67/filejumpfs/pkg/filejump"
)

// Entry is one stored file or folder.
type Entry struct {
	ID          int64
	ParentID    int64
	Name        string
	Dir         bool
	Content     []byte
	Description string
	Created     time.Time
	Updated     time.Time
}

// Server holds the in-memory drive state.
type Server struct {
	// Token, when set, is required as a bearer token on every request
	// except login.
	Token string

	// PageSize bounds listing pages so tests can force pagination.
	PageSize int

	// UploadStatus, when non-zero, is returned instead of 201 on uploads.
	UploadStatus int

	// FailDeletes makes deletes answer 200 with an error body, which
	// clients must treat as a rejection.
	FailDeletes bool

	mu          sync.Mutex
	entries     map[int64]*Entry
	nextID      int64
	listCalls   map[int64]int
	deleteCalls int
	uploadCalls int
	lastDeleted []int64
}

// New returns an empty drive.
func New() *Server {
	return &Server{
		PageSize:  1000,
		entries:   make(map[int64]*Entry),
		nextID:    100,
		listCalls: make(map[int64]int),
	}
}

// Handler returns the HTTP handler for the fake API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/drive/file-entries", s.handleList)
	mux.HandleFunc("GET /api/v1/file-entries/{id}", s.handleDownload)
	mux.HandleFunc("PUT /api/v1/file-entries/{id}", s.handleUpdate)
	mux.HandleFunc("POST /api/v1/file-entries/delete", s.handleDelete)
	mux.HandleFunc("POST /api/v1/folders", s.handleCreateFolder)
	mux.HandleFunc("POST /api/v1/uploads", s.handleUpload)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	return s.withAuth(mux)
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.URL.Path != "/api/v1/auth/login" {
			if r.Header.Get("Authorization") != "Bearer "+s.Token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthenticated"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// AddFolder creates a folder and returns its id.
func (s *Server) AddFolder(parentID int64, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(parentID, name, true, nil)
}

// AddFile creates a file with the given content and returns its id.
func (s *Server) AddFile(parentID int64, name string, content []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(parentID, name, false, content)
}

func (s *Server) addLocked(parentID int64, name string, dir bool, content []byte) int64 {
	s.nextID++
	now := time.Now().UTC()
	s.entries[s.nextID] = &Entry{
		ID:       s.nextID,
		ParentID: parentID,
		Name:     name,
		Dir:      dir,
		Content:  append([]byte(nil), content...),
		Created:  now,
		Updated:  now,
	}
	return s.nextID
}

// Entry returns a copy of the stored entry.
func (s *Server) Entry(id int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Content = append([]byte(nil), e.Content...)
	return cp, true
}

// FindChild looks up a direct child of parentID by name.
func (s *Server) FindChild(parentID int64, name string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ParentID == parentID && e.Name == name {
			cp := *e
			cp.Content = append([]byte(nil), e.Content...)
			return cp, true
		}
	}
	return Entry{}, false
}

// EntryCount reports how many entries the drive holds.
func (s *Server) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ListCalls reports how many listing requests hit the given directory.
func (s *Server) ListCalls(dirID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls[dirID]
}

// DeleteCalls reports how many delete requests were received.
func (s *Server) DeleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls
}

// UploadCalls reports how many upload requests were received.
func (s *Server) UploadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadCalls
}

// LastDeleted returns the ids of the most recent delete request.
func (s *Server) LastDeleted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.lastDeleted...)
}

// pathLocked renders the "ancestor ids including self" path field.
func (s *Server) pathLocked(e *Entry) string {
	var ids []string
	for cur := e; cur != nil; {
		ids = append([]string{strconv.FormatInt(cur.ID, 10)}, ids...)
		if cur.ParentID == 0 {
			break
		}
		cur = s.entries[cur.ParentID]
	}
	return strings.Join(ids, "/")
}

func (s *Server) recordLocked(e *Entry) filejump.EntryRecord {
	rec := filejump.EntryRecord{
		ID:          e.ID,
		Name:        e.Name,
		Path:        s.pathLocked(e),
		Type:        "file",
		FileSize:    int64(len(e.Content)),
		Description: e.Description,
		CreatedAt:   e.Created.Format(filejump.EntryTimeLayout),
		UpdatedAt:   e.Updated.Format(filejump.EntryTimeLayout),
	}
	if e.Dir {
		rec.Type = "folder"
		rec.FileSize = 0
	}
	if e.ParentID != 0 {
		pid := e.ParentID
		rec.ParentID = &pid
	}
	return rec
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parentID, _ := strconv.ParseInt(q.Get("parentIds"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))

	s.mu.Lock()
	s.listCalls[parentID]++
	var children []*Entry
	for _, e := range s.entries {
		if e.ParentID == parentID {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })

	size := s.PageSize
	if size <= 0 {
		size = 1000
	}
	start := page * size
	end := start + size
	if start > len(children) {
		start = len(children)
	}
	if end > len(children) {
		end = len(children)
	}
	records := make([]filejump.EntryRecord, 0, end-start)
	for _, e := range children[start:end] {
		records = append(records, s.recordLocked(e))
	}
	var next *int
	if end < len(children) {
		n := page + 1
		next = &n
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, filejump.EntriesResponse{Data: records, NextPage: next})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.mu.Lock()
	e, ok := s.entries[id]
	var content []byte
	if ok {
		content = append([]byte(nil), e.Content...)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such entry"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(content)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.Description = body.Description
		e.Updated = time.Now().UTC()
	}
	var rec filejump.EntryRecord
	if ok {
		rec = s.recordLocked(e)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such entry"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fileEntry": rec})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req filejump.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	s.mu.Lock()
	s.deleteCalls++
	s.lastDeleted = append([]int64(nil), req.EntryIDs...)
	failed := s.FailDeletes
	if !failed {
		for _, id := range req.EntryIDs {
			s.removeTreeLocked(id)
		}
	}
	s.mu.Unlock()

	if failed {
		writeJSON(w, http.StatusOK, map[string]string{"message": "cannot delete"})
		return
	}
	// A successful delete answers with an empty body.
	w.WriteHeader(http.StatusOK)
}

func (s *Server) removeTreeLocked(id int64) {
	delete(s.entries, id)
	for cid, e := range s.entries {
		if e.ParentID == id {
			s.removeTreeLocked(cid)
		}
	}
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		ParentID int64  `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "name required"})
		return
	}

	s.mu.Lock()
	id := s.addLocked(body.ParentID, body.Name, true, nil)
	rec := s.recordLocked(s.entries[id])
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"folder": rec})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.uploadCalls++
	status := s.UploadStatus
	s.mu.Unlock()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("bad multipart: %v", err)})
		return
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"message": "upload refused"})
		return
	}

	parentID, err := strconv.ParseInt(r.FormValue("parentId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "bad parentId"})
		return
	}
	name := r.FormValue("relativePath")
	files := r.MultipartForm.File["file"]
	if name == "" || len(files) != 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "file part required"})
		return
	}
	f, err := files[0].Open()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "open part"})
		return
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "read part"})
		return
	}

	s.mu.Lock()
	id := s.addLocked(parentID, name, false, content)
	if d := r.FormValue("description"); d != "" {
		s.entries[id].Description = d
	}
	rec := s.recordLocked(s.entries[id])
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"fileEntry": rec})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req filejump.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	token := s.Token
	if token == "" {
		token = "test-token"
	}
	resp := filejump.LoginResponse{}
	resp.User.AccessToken = token
	resp.User.Email = req.Email
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
