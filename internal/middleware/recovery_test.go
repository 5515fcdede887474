package middleware_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"taskboard/internal/logger"
	"taskboard/internal/middleware"
)

func TestRecoveryWithLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		handler    gin.HandlerFunc
		wantStatus int
		wantBody   string
		wantPanic  string
	}{
		{
			name:       "handler returns normally",
			handler:    func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"tasks": []string{}}) },
			wantStatus: http.StatusOK,
			wantBody:   `{"tasks":[]}`,
		},
		{
			name:       "string panic",
			handler:    func(c *gin.Context) { panic("nil map write") },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal server error"}`,
			wantPanic:  "nil map write",
		},
		{
			name:       "error panic",
			handler:    func(c *gin.Context) { panic(errors.New("store exploded")) },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal server error"}`,
			wantPanic:  "store exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			router := gin.New()
			router.Use(middleware.RequestID(), middleware.RecoveryWithLog(logger.NewWithOutput("test", "info", &logs)))
			router.GET("/tasks", tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Expected body %s, got %s", tt.wantBody, w.Body.String())
			}

			if tt.wantPanic == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no log output, got %s", logs.String())
				}
				return
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
				t.Fatalf("Expected one JSON log entry, got %q: %v", logs.String(), err)
			}
			if entry["panic"] != tt.wantPanic {
				t.Errorf("Expected panic %q, got %v", tt.wantPanic, entry["panic"])
			}
			if entry["request_id"] != "req-123" {
				t.Errorf("Expected request_id req-123, got %v", entry["request_id"])
			}
			if entry["path"] != "/tasks" || entry["method"] != http.MethodGet {
				t.Errorf("Expected method and path on the entry, got %v %v", entry["method"], entry["path"])
			}
			if entry["stack"] == "" || entry["stack"] == nil {
				t.Error("Expected a stack trace on the entry")
			}
			if entry["level"] != "error" {
				t.Errorf("Expected level error, got %v", entry["level"])
			}
		})
	}
}
