package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"synxronmarket/internal/domain"
)

// kindBadRequest некорректный запрос на уровне транспорта
const kindBadRequest domain.ErrorKind = "BAD_REQUEST"

type errorResponse struct {
	Error   domain.ErrorKind `json:"error"`
	Message string           `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindPackageInvalid:    http.StatusBadRequest,
	domain.KindVersionConflict:   http.StatusConflict,
	domain.KindResourceNotFound:  http.StatusNotFound,
	domain.KindInvalidVersion:    http.StatusUnprocessableEntity,
	domain.KindInvalidTransition: http.StatusConflict,
	domain.KindStorageFailure:    http.StatusBadGateway,
	domain.KindTimeout:           http.StatusGatewayTimeout,
	domain.KindInternal:          http.StatusInternalServerError,
	kindBadRequest:               http.StatusBadRequest,
}

// StatusFor HTTP-статус для вида ошибки
func StatusFor(kind domain.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, log, StatusFor(kind), errorResponse{Error: kind, Message: message})
}

func badRequest(w http.ResponseWriter, log *zap.Logger, message string) {
	writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: kindBadRequest, Message: message})
}

// queryInt целое из query-параметра, def при отсутствии
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return v, nil
}
