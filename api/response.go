package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/ledger"
)

// Response is the envelope shared by every API reply.
type Response struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      any            `json:"data,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// StartResponse is returned by POST /start.
type StartResponse struct {
	Response
	ClientID string `json:"client_id"`
}

// StatusResponse is returned by GET /status/:client_id.
type StatusResponse struct {
	Response
	ClientID           string             `json:"client_id"`
	Status             client.Status      `json:"status"`
	ProgressPercentage float64            `json:"progress_percentage"`
	CurrentStep        string             `json:"current_step"`
	AwaitingApproval   string             `json:"awaiting_approval,omitempty"`
	Steps              []ledger.StepState `json:"steps"`
}

// ApprovalResponse is returned by POST /approve.
type ApprovalResponse struct {
	Response
	ClientID string `json:"client_id"`
	StepID   string `json:"step_id"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// ClientData pairs a client with its ledger.
type ClientData struct {
	Client   client.Client  `json:"client"`
	Progress *ledger.Ledger `json:"progress"`
}

// ClientList is the data of GET /clients.
type ClientList struct {
	Clients []client.Client `json:"clients"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

// CancelRequest is the optional body of POST /cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

func success(message string, data any) Response {
	return Response{Success: true, Message: message, Timestamp: time.Now().UTC(), Data: data}
}

func failure(code, message string) Response {
	return Response{Success: false, Message: message, Timestamp: time.Now().UTC(), ErrorCode: code}
}

// writeError maps err onto a status code and error envelope.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	resp := failure(code, err.Error())

	var verr *aegis.ValidationError
	switch {
	case errors.As(err, &verr):
		status, resp.ErrorCode = http.StatusUnprocessableEntity, "VALIDATION_ERROR"
		resp.Details = map[string]any{"field": verr.Field}
	case errors.Is(err, aegis.ErrNotFound):
		status, resp.ErrorCode = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, aegis.ErrInvalidState):
		status, resp.ErrorCode = http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, aegis.ErrShutdown), errors.Is(err, aegis.ErrStoreClosed):
		status, resp.ErrorCode = http.StatusServiceUnavailable, "UNAVAILABLE"
	}

	c.AbortWithStatusJSON(status, resp)
}
