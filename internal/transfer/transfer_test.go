package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filepool/pkg/models"
)

func newClient() *HTTPClient {
	return NewHTTPClient(10 * time.Second)
}

func TestDownloadToPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "file contents")
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "pool", "file1")

	result, err := newClient().DownloadToPath(context.Background(), server.URL+"/report.bin", dest, nil)
	require.NoError(t, err)
	require.Equal(t, int64(len("file contents")), result.Size)
	require.Equal(t, "application/pdf", result.Mimetype)
	require.Equal(t, "pdf", result.Extension)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "file contents", string(data))

	// No temp file left behind.
	_, err = os.Stat(dest + ".part")
	require.True(t, os.IsNotExist(err))
}

func TestDownloadToPathReportsProgress(t *testing.T) {
	payload := make([]byte, 100*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file1")

	var last models.Progress
	var calls int
	_, err := newClient().DownloadToPath(context.Background(), server.URL, dest, func(p models.Progress) {
		calls++
		last = p
	})
	require.NoError(t, err)
	require.Positive(t, calls)
	require.Equal(t, int64(len(payload)), last.Loaded)
	require.Equal(t, int64(len(payload)), last.Total)
}

func TestDownloadToPathErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/unchanged":
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	tests := []struct {
		name      string
		url       string
		code      int
		permanent bool
	}{
		{"not found", server.URL + "/missing", CodeNotFound, true},
		{"not modified", server.URL + "/unchanged", CodeNotModified, true},
		{"server error", server.URL + "/boom", CodeConnection, true},
		{"invalid url", "://not-a-url", CodeInvalidURL, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "file1")

			_, err := newClient().DownloadToPath(context.Background(), tt.url, dest, nil)
			require.Error(t, err)

			var terr *Error
			require.ErrorAs(t, err, &terr)
			require.Equal(t, tt.code, terr.Code)
			require.Equal(t, tt.permanent, IsPermanent(err))

			_, statErr := os.Stat(dest)
			require.True(t, os.IsNotExist(statErr), "no file must exist after a failure")
		})
	}
}

func TestDownloadToPathAborted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	dest := filepath.Join(t.TempDir(), "file1")

	_, err := newClient().DownloadToPath(ctx, server.URL, dest, nil)
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodeAborted, terr.Code)
	require.False(t, IsPermanent(err), "an aborted transfer is worth retrying")
}

func TestIsPermanent(t *testing.T) {
	require.True(t, IsPermanent(&Error{Code: CodeNotFound}))
	require.True(t, IsPermanent(&Error{Code: CodeInvalidURL}))
	require.True(t, IsPermanent(&Error{Code: CodeConnection}))
	require.True(t, IsPermanent(&Error{Code: CodeNotModified}))
	require.False(t, IsPermanent(&Error{Code: CodeAborted}))
	require.False(t, IsPermanent(errors.New("unclassified")))
	require.False(t, IsPermanent(nil))
}

func TestRemoteSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "12345")
	}))
	defer server.Close()

	size, err := newClient().RemoteSize(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, int64(12345), size)
}

func TestRemoteMimetype(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer server.Close()

	mimetype, err := newClient().RemoteMimetype(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "video/mp4", mimetype)
}

func TestOSFS(t *testing.T) {
	root := t.TempDir()
	fs := NewOSFS(root)

	require.True(t, fs.Available())
	require.Equal(t, filepath.Join(root, "a", "b"), fs.Abs(filepath.Join("a", "b")))

	require.NoError(t, fs.MkdirAll("pool"))
	require.NoError(t, os.WriteFile(fs.Abs("pool/file1"), []byte("data"), 0o644))

	require.True(t, fs.Exists("pool/file1"))
	size, err := fs.Size("pool/file1")
	require.NoError(t, err)
	require.Equal(t, int64(4), size)

	require.NoError(t, fs.Rename("pool/file1", "pool/file2"))
	require.False(t, fs.Exists("pool/file1"))
	require.True(t, fs.Exists("pool/file2"))

	require.NoError(t, fs.Remove("pool/file2"))
	require.NoError(t, fs.RemoveAll("pool"))
	require.False(t, fs.Exists("pool"))

	missing := NewOSFS(filepath.Join(root, "gone"))
	require.False(t, missing.Available())
}
