package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

// RespondJSON writes payload as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondError writes the {"error": message} body.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, chatapi.ErrorResponse{Error: message})
}
