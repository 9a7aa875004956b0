// Package transfer downloads remote files over HTTP and classifies failures
// so callers can decide whether retrying could ever succeed.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filepool/internal/fileid"
	"filepool/pkg/models"
)

// Error codes. NotModified signals the server copy matches what the caller
// already has, which ends a transfer but is not a retryable condition.
const (
	CodeNotFound    = 1
	CodeInvalidURL  = 2
	CodeConnection  = 3
	CodeAborted     = 4
	CodeNotModified = 5
)

// Error is a classified transfer failure.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a transfer failure that no amount of
// retrying will fix. Aborted transfers and unclassified errors are treated
// as transient.
func IsPermanent(err error) bool {
	var terr *Error
	if !errors.As(err, &terr) {
		return false
	}

	switch terr.Code {
	case CodeNotFound, CodeInvalidURL, CodeConnection, CodeNotModified:
		return true
	}

	return false
}

// Result describes a completed download.
type Result struct {
	Size      int64
	Mimetype  string
	Extension string
}

// Client is the transfer capability.
type Client interface {
	// DownloadToPath fetches url into dest, reporting progress along the way.
	DownloadToPath(ctx context.Context, fileURL, dest string, onProgress models.ProgressFunc) (*Result, error)
	// RemoteSize returns the announced size of the remote file, or -1 when
	// the server does not announce one.
	RemoteSize(ctx context.Context, fileURL string) (int64, error)
	// RemoteMimetype returns the announced content type of the remote file.
	RemoteMimetype(ctx context.Context, fileURL string) (string, error)
}

// HTTPClient downloads over plain HTTP. Files are written to a temporary
// sibling and renamed into place, so a crash mid-download never leaves a
// partial file at the final path.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a transfer client with the given overall timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// DownloadToPath implements Client.
func (c *HTTPClient) DownloadToPath(ctx context.Context, fileURL, dest string, onProgress models.ProgressFunc) (*Result, error) {
	if _, err := url.ParseRequestURI(fileURL); err != nil {
		return nil, &Error{Code: CodeInvalidURL, Message: "invalid download URL", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &Error{Code: CodeInvalidURL, Message: "failed to build request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: CodeAborted, Message: "download aborted", Err: ctx.Err()}
		}

		return nil, &Error{Code: CodeConnection, Message: "failed to connect", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Code: CodeNotFound, Message: "remote file not found"}
	case resp.StatusCode == http.StatusNotModified:
		return nil, &Error{Code: CodeNotModified, Message: "remote file not modified"}
	case resp.StatusCode >= 400:
		return nil, &Error{Code: CodeConnection,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tempPath := dest + ".part"
	size, err := c.writeBody(ctx, resp, tempPath, onProgress)
	if err != nil {
		os.Remove(tempPath)

		return nil, err
	}

	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)

		return nil, fmt.Errorf("failed to finalize download: %w", err)
	}

	mimetype := resp.Header.Get("Content-Type")

	return &Result{
		Size:      size,
		Mimetype:  mimetype,
		Extension: guessExtension(mimetype, fileURL),
	}, nil
}

func (c *HTTPClient) writeBody(ctx context.Context, resp *http.Response, tempPath string, onProgress models.ProgressFunc) (int64, error) {
	file, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	total := resp.ContentLength
	var loaded int64
	buf := make([]byte, 32*1024)

	for {
		if ctx.Err() != nil {
			return loaded, &Error{Code: CodeAborted, Message: "download aborted", Err: ctx.Err()}
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return loaded, fmt.Errorf("failed to write file: %w", writeErr)
			}

			loaded += int64(n)
			if onProgress != nil {
				onProgress(models.Progress{Loaded: loaded, Total: total})
			}
		}

		if readErr == io.EOF {
			return loaded, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return loaded, &Error{Code: CodeAborted, Message: "download aborted", Err: ctx.Err()}
			}

			return loaded, &Error{Code: CodeConnection, Message: "failed to read response", Err: readErr}
		}
	}
}

// RemoteSize implements Client.
func (c *HTTPClient) RemoteSize(ctx context.Context, fileURL string) (int64, error) {
	resp, err := c.head(ctx, fileURL)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 || resp.ContentLength < 0 {
		return -1, nil
	}

	return resp.ContentLength, nil
}

// RemoteMimetype implements Client.
func (c *HTTPClient) RemoteMimetype(ctx context.Context, fileURL string) (string, error) {
	resp, err := c.head(ctx, fileURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil
	}

	return resp.Header.Get("Content-Type"), nil
}

func (c *HTTPClient) head(ctx context.Context, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return nil, &Error{Code: CodeInvalidURL, Message: "failed to build request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: CodeAborted, Message: "request aborted", Err: ctx.Err()}
		}

		return nil, &Error{Code: CodeConnection, Message: "failed to connect", Err: err}
	}

	return resp, nil
}

// guessExtension prefers the served content type over the URL, falling back
// to the URL when the type is generic or unknown.
func guessExtension(mimetype, fileURL string) string {
	mediatype, _, err := mime.ParseMediaType(mimetype)
	if err == nil && mediatype != "" && mediatype != "application/octet-stream" {
		if exts, err := mime.ExtensionsByType(mediatype); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}

	return fileid.GuessExtensionFromURL(fileURL)
}
