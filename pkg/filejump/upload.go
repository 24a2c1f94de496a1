package filejump

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zlev67/filejumpfs/pkg/logger"
	"github.com/zlev67/filejumpfs/pkg/retry"
)

// ErrCancelled is returned by Upload when CancelUploads was called while
// the transfer was in flight. Cancellation is a deliberate outcome, not
// an I/O failure, and callers treat it as non-fatal.
var ErrCancelled = errors.New("upload cancelled")

// uploadChunkSize is how much file data is handed to the transport per
// read. Cancellation is checked between chunks, so memory use and
// cancellation latency are both bounded by it.
const uploadChunkSize = 64 * 1024

const uploadDescription = "Uploaded via API"

// mimeTypes maps file extensions to the Content-Type sent for the file
// part. Unknown extensions fall back to application/octet-stream.
var mimeTypes = map[string]string{
	"txt":  "text/plain",
	"json": "application/json",
	"xml":  "application/xml",
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"7z":   "application/x-7z-compressed",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
}

// mimeTypeFor returns the Content-Type for a file name by extension.
func mimeTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// newBoundary returns a WebKit-style multipart boundary with 16 random
// hex digits.
func newBoundary() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read only fails when the OS entropy source is broken.
		panic(err)
	}
	return "----WebKitFormBoundary" + hex.EncodeToString(b[:])
}

// CancelUploads aborts any in-flight upload at its next chunk boundary.
// Uploads started afterwards run normally.
func (c *Client) CancelUploads() {
	c.uploadCancelled.Store(true)
}

// chunkedFileReader feeds file content to the transport in fixed-size
// chunks, checking the cancellation flag before each one.
type chunkedFileReader struct {
	f         *os.File
	cancelled *atomic.Bool
}

func (r *chunkedFileReader) Read(p []byte) (int, error) {
	if r.cancelled.Load() {
		return 0, ErrCancelled
	}
	if len(p) > uploadChunkSize {
		p = p[:uploadChunkSize]
	}
	return r.f.Read(p)
}

// multipartHead renders the form fields and the header of the file part.
// The file content and the closing boundary are streamed separately so
// the whole body never sits in memory.
func multipartHead(boundary string, parentID int64, name string) ([]byte, error) {
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, err
	}
	fields := [][2]string{
		{"description", uploadDescription},
		{"parentId", strconv.FormatInt(parentID, 10)},
		{"relativePath", name},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`,
		strings.ReplaceAll(name, `"`, `\"`)))
	hdr.Set("Content-Type", mimeTypeFor(name))
	if _, err := mw.CreatePart(hdr); err != nil {
		return nil, err
	}
	return head.Bytes(), nil
}

// Upload sends the file at localPath into the directory parentID under
// the given remote name and returns the created entry. On a request
// timeout the whole request is retried with an escalated per-attempt
// timeout; see retry.Config. Anything but a 201 response is a failure.
func (c *Client) Upload(ctx context.Context, localPath string, parentID int64, name string) (Entry, error) {
	c.uploadCancelled.Store(false)

	boundary := newBoundary()
	head, err := multipartHead(boundary, parentID, name)
	if err != nil {
		return Entry{}, err
	}
	footer := "\r\n--" + boundary + "--\r\n"

	info, err := os.Stat(localPath)
	if err != nil {
		return Entry{}, err
	}
	size := info.Size()

	attempts := 0
	entry, err := retry.DoWithResult(ctx, c.retryConfig, func(attemptCtx context.Context, timeout time.Duration) (Entry, error) {
		attempts++
		if attempts > 1 {
			logger.Info("retrying upload of %s with timeout %s", name, timeout)
			if c.onRetry != nil {
				c.onRetry(timeout)
			}
		}
		return c.uploadOnce(attemptCtx, localPath, boundary, head, footer, size)
	})
	if err != nil {
		if errors.Is(err, ErrCancelled) || c.uploadCancelled.Load() {
			logger.Info("upload of %s cancelled", name)
			return Entry{}, ErrCancelled
		}
		return Entry{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return entry, nil
}

// uploadOnce performs a single multipart POST attempt.
func (c *Client) uploadOnce(ctx context.Context, localPath, boundary string, head []byte, footer string, size int64) (Entry, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	body := io.MultiReader(
		bytes.NewReader(head),
		&chunkedFileReader{f: f, cancelled: &c.uploadCancelled},
		strings.NewReader(footer),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("uploads", nil), body)
	if err != nil {
		return Entry{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.ContentLength = int64(len(head)) + size + int64(len(footer))
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrCancelled) || c.uploadCancelled.Load() {
			return Entry{}, ErrCancelled
		}
		return Entry{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return Entry{}, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(data))
	}
	var ur UploadResponse
	if err := json.Unmarshal(data, &ur); err != nil {
		return Entry{}, fmt.Errorf("decode response: %w", err)
	}
	if ur.FileEntry.ID == 0 {
		return Entry{}, fmt.Errorf("response carries no file entry: %s", snippet(data))
	}
	return entryFromRecord(ur.FileEntry), nil
}
