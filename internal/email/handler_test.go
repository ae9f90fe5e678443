package email

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_HandleSend(t *testing.T) {
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"accepts a message", `{"to":"alice@example.com","subject":"Order Confirmation","body":"thanks"}`, http.StatusOK},
		{"rejects a bad recipient", `{"to":"alice","subject":"Order Confirmation"}`, http.StatusBadRequest},
		{"rejects a missing subject", `{"to":"alice@example.com"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
