package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/internal/booking"
	"github.com/hungnci/elevate-fitness/internal/gateway"
	"github.com/hungnci/elevate-fitness/internal/storage"
)

func newTestRouter(t *testing.T, transcriptsDir string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	wsHandler := gateway.NewHandler(zap.NewNop(), gateway.Config{}, booking.NewMemoryStore())
	return NewRouter(wsHandler, transcriptsDir, zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTranscriptRoutesDisabledWithoutDir(t *testing.T) {
	router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/transcripts", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTranscriptAPI(t *testing.T) {
	dir := t.TempDir()
	uid, err := storage.CreateTranscript(dir, "user-1")
	if err != nil {
		t.Fatalf("CreateTranscript error: %v", err)
	}
	if err := storage.AppendMessage(dir, "user-1", uid, storage.TranscriptMessage{Role: storage.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}

	router := newTestRouter(t, dir)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcripts?user_id=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d, want %d", rec.Code, http.StatusOK)
	}
	var listing struct {
		Transcripts []storage.TranscriptInfo `json:"transcripts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Transcripts) != 1 || listing.Transcripts[0].UID != uid {
		t.Fatalf("listing=%+v, want one entry with uid %q", listing.Transcripts, uid)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcripts/"+uid+"?user_id=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/transcripts/"+uid+"?user_id=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status=%d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcripts/"+uid+"?user_id=user-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d, want %d", rec.Code, http.StatusNotFound)
	}
}
