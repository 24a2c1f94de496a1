// Package filejump implements the subset of the FileJump REST API the
// filesystem bridge needs: paginated listings, raw downloads, folder
// creation, deletion, multipart uploads, and token-based login.
package filejump

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zlev67/filejumpfs/pkg/logger"
	"github.com/zlev67/filejumpfs/pkg/retry"
)

const (
	apiPrefix = "api/v1/"
	userAgent = "filejumpfs/1.1"

	// Listing page size. The server caps perPage, so pagination must be
	// followed via next_page regardless of this value.
	listPerPage = "1000"
	workspaceID = "0"
)

// Client talks to a FileJump server. Session state (base URL, token) is
// fixed at construction except for the token, which login flows set once.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	// onRetry, when set, is called before an upload attempt is retried
	// with an escalated timeout.
	onRetry func(next time.Duration)

	mu        sync.RWMutex
	authToken string

	uploadCancelled atomic.Bool
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	AuthToken   string
	RetryConfig retry.Config

	// OnUploadRetry is invoked with the escalated timeout each time an
	// upload attempt is retried. Optional.
	OnUploadRetry func(next time.Duration)
}

// New creates a new client. Plain requests carry no deadline of their
// own; uploads run under the per-attempt timeouts of cfg.RetryConfig.
func New(cfg Config) *Client {
	if cfg.RetryConfig.InitialTimeout == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  false,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		onRetry:     cfg.OnUploadRetry,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// percentEncode escapes s for use in a query string. url.QueryEscape is
// unsuitable here: it emits '+' for spaces, which the server rejects in
// entry names. Unreserved characters pass through, everything else
// becomes an uppercase %XX escape, UTF-8 bytes included.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.', ch == '~':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}

// encodeQuery renders params as a query string with keys in sorted
// order, so built URLs are deterministic.
func encodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(percentEncode(k))
		b.WriteByte('=')
		b.WriteString(percentEncode(params[k]))
	}
	return b.String()
}

// apiURL builds the full URL for an endpoint under api/v1.
func (c *Client) apiURL(endpoint string, params map[string]string) string {
	url := c.baseURL + "/" + apiPrefix + endpoint
	if len(params) > 0 {
		url += "?" + encodeQuery(params)
	}
	return url
}

// do performs a JSON request and returns the status code and raw body.
// Statuses outside 2xx are logged but returned to the caller, who
// decides based on the decoded body.
func (c *Client) do(ctx context.Context, method, endpoint string, params map[string]string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(endpoint, params), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debug("filejump: %s %s returned %d: %s", method, endpoint, resp.StatusCode, snippet(data))
	}
	return resp.StatusCode, data, nil
}

// snippet trims a response body for log output.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// ListPage fetches one page of a directory listing. Pages start at 0;
// the response reports the next page or nil on the last one.
func (c *Client) ListPage(ctx context.Context, parentID int64, page int) (*EntriesResponse, error) {
	params := map[string]string{
		"page":        strconv.Itoa(page),
		"parentIds":   strconv.FormatInt(parentID, 10),
		"perPage":     listPerPage,
		"workspaceId": workspaceID,
	}
	status, body, err := c.do(ctx, http.MethodGet, "drive/file-entries", params, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("list page %d of %d: empty response (status %d)", page, parentID, status)
	}
	var resp EntriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("list page %d of %d: %w", page, parentID, err)
	}
	return &resp, nil
}

// ListEntries fetches the complete listing of a directory, following
// pagination until the server reports no further page. On error the
// entries collected so far are returned alongside it.
func (c *Client) ListEntries(ctx context.Context, parentID int64) ([]Entry, error) {
	var out []Entry
	page := 0
	for {
		resp, err := c.ListPage(ctx, parentID, page)
		if err != nil {
			return out, err
		}
		out = append(out, entriesFromRecords(resp.Data)...)
		if resp.NextPage == nil {
			return out, nil
		}
		next := *resp.NextPage
		if next <= page {
			return out, nil
		}
		page = next
	}
}

// Download streams the raw content of a file entry into w and returns
// the number of bytes written.
func (c *Client) Download(ctx context.Context, id int64, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("file-entries/"+strconv.FormatInt(id, 10), nil), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download %d: status %d: %s", id, resp.StatusCode, snippet(body))
	}
	return io.Copy(w, resp.Body)
}

// DeleteEntries permanently deletes the given entries. The server
// answers a successful delete with an empty body; anything else is
// treated as a rejection.
func (c *Client) DeleteEntries(ctx context.Context, ids []int64) error {
	status, body, err := c.do(ctx, http.MethodPost, "file-entries/delete", nil, DeleteRequest{
		EntryIDs:      ids,
		DeleteForever: true,
	})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("delete entries: status %d: %s", status, snippet(body))
	}
	if len(bytes.TrimSpace(body)) != 0 {
		return fmt.Errorf("delete entries: rejected: %s", snippet(body))
	}
	return nil
}

// CreateFolder creates a folder under the given parent. A parentID of 0
// creates it at the drive root, in which case the field is omitted from
// the request.
func (c *Client) CreateFolder(ctx context.Context, parentID int64, name string) (Entry, error) {
	payload := map[string]any{"name": name}
	if parentID != 0 {
		payload["parentId"] = parentID
	}
	status, body, err := c.do(ctx, http.MethodPost, "folders", nil, payload)
	if err != nil {
		return Entry{}, err
	}
	var resp FolderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Entry{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	if resp.Folder.ID == 0 {
		return Entry{}, fmt.Errorf("create folder %q: status %d: %s", name, status, snippet(body))
	}
	return entryFromRecord(resp.Folder), nil
}

// SetDescription updates the description field of an entry.
func (c *Client) SetDescription(ctx context.Context, id int64, description string) error {
	status, body, err := c.do(ctx, http.MethodPut, "file-entries/"+strconv.FormatInt(id, 10), nil,
		map[string]string{"description": description})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("set description of %d: status %d: %s", id, status, snippet(body))
	}
	return nil
}
