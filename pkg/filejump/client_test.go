package filejump

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL:   ts.URL,
		AuthToken: "test-token",
	})
	return c, ts
}

func TestPercentEncode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abcXYZ019", "abcXYZ019"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"a b", "a%20b"},
		{"a+b", "a%2Bb"},
		{"a/b", "a%2Fb"},
		{"tag=1&x", "tag%3D1%26x"},
		{"café", "caf%C3%A9"},
	}
	for _, tc := range cases {
		if got := percentEncode(tc.in); got != tc.want {
			t.Errorf("percentEncode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodeQuery_SortedKeys(t *testing.T) {
	got := encodeQuery(map[string]string{"perPage": "1000", "page": "0", "workspaceId": "0", "parentIds": "5"})
	want := "page=0&parentIds=5&perPage=1000&workspaceId=0"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestAPIURL_TrimsTrailingSlash(t *testing.T) {
	c := New(Config{BaseURL: "https://app.example.com/"})
	got := c.apiURL("uploads", nil)
	want := "https://app.example.com/api/v1/uploads"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestListEntries_Pagination(t *testing.T) {
	var gotAuth string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		q := r.URL.Query()
		if q.Get("parentIds") != "5" {
			t.Errorf("expected parentIds=5, got %q", q.Get("parentIds"))
		}
		if q.Get("perPage") != "1000" || q.Get("workspaceId") != "0" {
			t.Errorf("unexpected fixed params: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("page") {
		case "0":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"id": 10, "parent_id": 5, "name": "docs", "path": "5/10", "type": "folder"},
					{"id": 11, "parent_id": 5, "name": "a.txt", "path": "5/11", "type": "file", "file_size": 3},
				},
				"next_page": 1,
			})
		case "1":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"id": 12, "parent_id": 5, "name": "b.txt", "path": "5/12", "type": "file"},
				},
				"next_page": nil,
			})
		default:
			t.Errorf("unexpected page %q", q.Get("page"))
			w.Write([]byte(`{"data":[],"next_page":null}`))
		}
	}))
	defer ts.Close()

	entries, err := c.ListEntries(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries across pages, got %d", len(entries))
	}
	if !entries[0].Dir || entries[0].Name != "docs" {
		t.Errorf("first entry decoded wrong: %+v", entries[0])
	}
	if entries[2].ID != 12 {
		t.Errorf("expected last entry id 12, got %d", entries[2].ID)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestListPage_EmptyBody(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if _, err := c.ListPage(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for empty response body")
	}
}

func TestDeleteEntries(t *testing.T) {
	var gotBody DeleteRequest
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/file-entries/delete" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode delete body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := c.DeleteEntries(context.Background(), []int64{7, 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotBody.EntryIDs) != 2 || gotBody.EntryIDs[0] != 7 {
		t.Errorf("expected entryIds [7 9], got %v", gotBody.EntryIDs)
	}
	if !gotBody.DeleteForever {
		t.Error("expected deleteForever true")
	}
}

func TestDeleteEntries_Rejected(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"entry is locked"}`))
	}))
	defer ts.Close()

	if err := c.DeleteEntries(context.Background(), []int64{7}); err == nil {
		t.Fatal("expected error for non-empty delete response")
	}
}

func TestCreateFolder_Root(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode folder body: %v", err)
		}
		if _, ok := body["parentId"]; ok {
			t.Error("parentId should be omitted for root folders")
		}
		if body["name"] != "stuff" {
			t.Errorf("expected name stuff, got %v", body["name"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"folder": map[string]any{"id": 21, "name": "stuff", "path": "21", "type": "folder"},
		})
	}))
	defer ts.Close()

	e, err := c.CreateFolder(context.Background(), 0, "stuff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != 21 || !e.Dir {
		t.Errorf("unexpected folder entry: %+v", e)
	}
}

func TestCreateFolder_Nested(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["parentId"] != float64(5) {
			t.Errorf("expected parentId 5, got %v", body["parentId"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"folder": map[string]any{"id": 22, "parent_id": 5, "name": "inner", "path": "5/22", "type": "folder"},
		})
	}))
	defer ts.Close()

	e, err := c.CreateFolder(context.Background(), 5, "inner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ParentID != 5 {
		t.Errorf("expected parent 5, got %d", e.ParentID)
	}
}

func TestCreateFolder_Error(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"name taken"}`))
	}))
	defer ts.Close()

	if _, err := c.CreateFolder(context.Background(), 0, "stuff"); err == nil {
		t.Fatal("expected error when response carries no folder")
	}
}

func TestSetDescription(t *testing.T) {
	var gotMethod, gotPath string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["description"] != "notes" {
			t.Errorf("expected description notes, got %q", body["description"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := c.SetDescription(context.Background(), 9, "notes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/v1/file-entries/9" {
		t.Errorf("expected PUT /api/v1/file-entries/9, got %s %s", gotMethod, gotPath)
	}
}

func TestDownload(t *testing.T) {
	content := []byte("file content here")
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/file-entries/11" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write(content)
	}))
	defer ts.Close()

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), 11, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("expected %d bytes, got %d", len(content), n)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("downloaded content mismatch: %q", buf.Bytes())
	}
}

func TestDownload_NotFound(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such entry"}`))
	}))
	defer ts.Close()

	var buf bytes.Buffer
	if _, err := c.Download(context.Background(), 404, &buf); err == nil {
		t.Fatal("expected error for missing entry")
	}
	if buf.Len() != 0 {
		t.Errorf("error body must not reach the writer, got %q", buf.Bytes())
	}
}

func TestLogin(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body LoginRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "user@example.com" || body.Password != "hunter2" {
			t.Errorf("unexpected credentials: %+v", body)
		}
		if body.TokenName != "fuse3_token" {
			t.Errorf("expected token_name fuse3_token, got %q", body.TokenName)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"access_token": "tok123", "email": body.Email},
		})
	}))
	defer ts.Close()

	tok, err := c.Login(context.Background(), "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "tok123" {
		t.Errorf("expected token tok123, got %q", tok)
	}
	c.mu.RLock()
	installed := c.authToken
	c.mu.RUnlock()
	if installed != "tok123" {
		t.Errorf("login should install the token on the client, got %q", installed)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer ts.Close()

	if _, err := c.Login(context.Background(), "user@example.com", "wrong"); err == nil {
		t.Fatal("expected error for rejected login")
	}
}
