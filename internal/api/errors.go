package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/newsgrid/enrichd/internal/service"
	"github.com/newsgrid/enrichd/internal/state"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	writeServiceError(w, service.InvalidArgument(message))
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, err.Error())
}

// tableMissingResponse is the wire shape legacy consumers depend on for an
// absent date partition.
type tableMissingResponse struct {
	Detail string `json:"detail"`
}

// internalDetailResponse is the wire shape legacy consumers depend on for an
// unexpected processing failure.
type internalDetailResponse struct {
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func writeTableMissing(w http.ResponseWriter, date string) {
	WriteJSON(w, http.StatusNotFound, tableMissingResponse{
		Detail: "Table " + state.TableForDate(date) + " not available",
	})
}

func writeInternalDetail(w http.ResponseWriter, err error) {
	detail := "internal server error"
	if err != nil {
		detail = err.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, internalDetailResponse{
		Detail: detail,
		Type:   "internal_error",
	})
}

// writeProcessingError maps errors from feed-processing calls, preserving the
// legacy table-missing and internal-error shapes.
func writeProcessingError(w http.ResponseWriter, date string, err error) {
	if errors.Is(err, state.ErrTableMissing) {
		writeTableMissing(w, date)
		return
	}
	var svcErr *service.ServiceError
	if errors.As(err, &svcErr) && svcErr.Code != "INTERNAL" {
		writeServiceError(w, svcErr)
		return
	}
	writeInternalDetail(w, err)
}

// writeServiceError maps service errors to HTTP response codes.
func writeServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}

	var svcErr *service.ServiceError
	if errors.As(err, &svcErr) {
		var status int
		switch svcErr.Code {
		case "INVALID_ARGUMENT":
			status = http.StatusBadRequest
		case "UNAUTHENTICATED":
			status = http.StatusUnauthorized
		case "NOT_FOUND":
			status = http.StatusNotFound
		case "UNAVAILABLE":
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
		WriteError(w, status, svcErr.Code, svcErr.Message)
		return
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}
