package errors

import (
	"encoding/json"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// HTTPErrorResponse is the JSON envelope written for every error response.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody is the payload inside HTTPErrorResponse.
type HTTPErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Envelope converts e into a gofulmen error envelope correlated with
// requestID.
func (e *AppError) Envelope(requestID string) *gferrors.ErrorEnvelope {
	env := gferrors.NewErrorEnvelope(e.Code, e.Message).WithCorrelationID(requestID)
	if len(e.Details) > 0 {
		env = env.WithDetails(e.Details)
	}
	return env
}

// NewHTTPErrorResponse renders an envelope as the wire response. Details
// fall back to the envelope context when none were set.
func NewHTTPErrorResponse(env *gferrors.ErrorEnvelope) HTTPErrorResponse {
	details := env.Details
	if len(details) == 0 && len(env.Context) > 0 {
		details = env.Context
	}
	return HTTPErrorResponse{Error: HTTPErrorBody{
		Code:      env.Code,
		Message:   env.Message,
		Details:   details,
		RequestID: env.CorrelationID,
		Timestamp: env.Timestamp,
	}}
}

// WriteError writes env as a JSON error response with status.
func WriteError(w http.ResponseWriter, env *gferrors.ErrorEnvelope, status int) {
	WriteJSON(w, status, NewHTTPErrorResponse(env))
}

// RespondWithError writes err as a JSON error envelope.
//
// The request ID is taken from the response header set by the RequestID
// middleware, falling back to the inbound request header.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := AsAppError(err)

	requestID := w.Header().Get(RequestIDHeader)
	if requestID == "" && r != nil {
		requestID = r.Header.Get(RequestIDHeader)
	}

	WriteError(w, appErr.Envelope(requestID), appErr.Status)
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
