package restic

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"

	"github.com/restic115/gateway/pkg/e"
	"github.com/restic115/gateway/pkg/open115"
)

func newTestHandlers(t *testing.T) (*Handlers, *mockClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := newMockClient(ctrl)
	h := &Handlers{Client: client, MaxUploadBytes: 1 << 20}
	h.SetReady()
	return h, client
}

func doRequest(router *gin.Engine, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRepository(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().InitRepository(gomock.Any()).Return(nil)

	rec := doRequest(router, http.MethodPost, "/?create=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateRepositoryMissingParam(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodPost, "/", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteRepositoryNotImplemented(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodDelete, "/", nil, nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestHeadConfig(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().GetFileInfo(gomock.Any(), open115.TypeConfig, "config").
		Return(open115.FileInfo{Name: "config", Size: 155, PickCode: "abc"}, nil)

	rec := doRequest(router, http.MethodHead, "/config", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "155" {
		t.Fatalf("Content-Length = %q, want 155", got)
	}
}

func TestHeadConfigNotFound(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().GetFileInfo(gomock.Any(), open115.TypeConfig, "config").
		Return(open115.FileInfo{}, e.ErrNotFound)

	rec := doRequest(router, http.MethodHead, "/config", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetObjectFull(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().GetFileInfo(gomock.Any(), open115.TypeData, "abc123").
		Return(open115.FileInfo{Name: "abc123", Size: 4, PickCode: "pc1"}, nil)
	client.EXPECT().DownloadFile(gomock.Any(), "pc1", open115.DownloadRange{}).
		Return(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("data"))}, nil)

	rec := doRequest(router, http.MethodGet, "/data/abc123", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("Content-Type = %q, want application/octet-stream", got)
	}
	if rec.Body.String() != "data" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "data")
	}
}

func TestGetObjectRange(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().GetFileInfo(gomock.Any(), open115.TypeData, "abc123").
		Return(open115.FileInfo{Name: "abc123", Size: 10, PickCode: "pc1"}, nil)
	client.EXPECT().DownloadFile(gomock.Any(), "pc1", open115.DownloadRange{Start: 0, End: 3, Set: true}).
		Return(&http.Response{StatusCode: 206, Body: io.NopCloser(strings.NewReader("data"))}, nil)

	rec := doRequest(router, http.MethodGet, "/data/abc123", nil, map[string]string{"Range": "bytes=0-3"})
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("Content-Type = %q, want application/octet-stream", got)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-3/10" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestGetObjectRangeUnsatisfiable(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().GetFileInfo(gomock.Any(), open115.TypeData, "abc123").
		Return(open115.FileInfo{Name: "abc123", Size: 10, PickCode: "pc1"}, nil)

	rec := doRequest(router, http.MethodGet, "/data/abc123", nil, map[string]string{"Range": "bytes=100-200"})
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestListType(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().ListFiles(gomock.Any(), open115.TypeSnapshots).
		Return([]open115.FileInfo{{Name: "snap1", Size: 10}}, nil)

	rec := doRequest(router, http.MethodGet, "/snapshots/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != v2ContentType {
		t.Fatalf("Content-Type = %q, want %q", got, v2ContentType)
	}
	if !strings.Contains(rec.Body.String(), "snap1") {
		t.Fatalf("body missing entry: %s", rec.Body.String())
	}
}

func TestListTypeRejectsConfig(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodGet, "/config/", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostObjectTooLarge(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.MaxUploadBytes = 4
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodPost, "/data/abc123", strings.NewReader("too many bytes"), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestPostObject(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().UploadObject(gomock.Any(), open115.TypeData, "abc123", []byte("data")).
		Return(open115.FileInfo{Name: "abc123", Size: 4}, nil)

	rec := doRequest(router, http.MethodPost, "/data/abc123", strings.NewReader("data"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDeleteObject(t *testing.T) {
	h, client := newTestHandlers(t)
	router := GetRouter("", h, false)

	client.EXPECT().DeleteFile(gomock.Any(), open115.TypeLocks, "lock1").Return(nil)

	rec := doRequest(router, http.MethodDelete, "/locks/lock1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthCheckReady(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthCheckNotReady(t *testing.T) {
	h := &Handlers{Client: nil}
	router := GetRouter("", h, false)

	rec := doRequest(router, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
