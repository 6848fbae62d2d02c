package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/workflow"
)

// List paging bounds.
const (
	defaultListLimit = 10
	maxListLimit     = 100
)

func (a *API) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Aegis Onboarding API is running",
		"version": Version,
		"status":  "healthy",
	})
}

func (a *API) health(c *gin.Context) {
	if err := a.eng.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "aegis-onboarding-api",
			"version": Version,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "aegis-onboarding-api",
		"version": Version,
	})
}

func (a *API) start(c *gin.Context) {
	var in client.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, failure("BAD_REQUEST", "invalid request body: "+err.Error()))
		return
	}

	// The run outlives the request.
	ctx := context.WithoutCancel(c.Request.Context())
	cl, l, err := a.eng.Start(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartResponse{
		Response: success(
			fmt.Sprintf("Onboarding started successfully for %s", cl.Name),
			ClientData{Client: *cl, Progress: &l},
		),
		ClientID: cl.ID.String(),
	})
}

func (a *API) status(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}

	l, err := a.eng.Status(c.Request.Context(), clientID)
	if err != nil {
		writeError(c, err)
		return
	}

	current := "Completed"
	if st, ok := l.Current(); ok {
		current = st.Name
	}
	if l.Status == client.StatusFailed {
		current = "Failed"
	}

	c.JSON(http.StatusOK, StatusResponse{
		Response:           success("Onboarding status retrieved successfully", nil),
		ClientID:           clientID.String(),
		Status:             l.Status,
		ProgressPercentage: l.Percentage,
		CurrentStep:        current,
		AwaitingApproval:   l.AwaitingApproval,
		Steps:              l.Steps,
	})
}

func (a *API) approve(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}
	stepID := c.Param("step_id")

	raw, present := c.GetQuery("approved")
	if !present {
		writeError(c, &aegis.ValidationError{Field: "approved", Reason: "is required"})
		return
	}
	approved, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(c, &aegis.ValidationError{Field: "approved", Reason: "must be a boolean"})
		return
	}
	feedback := c.Query("feedback")

	d := workflow.Decision{StepID: stepID, Approved: approved, Feedback: feedback}
	if err := a.eng.Decide(c.Request.Context(), clientID, d); err != nil {
		writeError(c, err)
		return
	}

	action := "rejected"
	if approved {
		action = "approved"
	}
	c.JSON(http.StatusOK, ApprovalResponse{
		Response: success(fmt.Sprintf("Step %s successfully", action), nil),
		ClientID: clientID.String(),
		StepID:   stepID,
		Approved: approved,
		Feedback: feedback,
	})
}

func (a *API) listClients(c *gin.Context) {
	opts := store.ListOpts{Limit: defaultListLimit}

	if s := c.Query("status"); s != "" {
		status := client.Status(s)
		if !status.Valid() {
			writeError(c, &aegis.ValidationError{Field: "status", Reason: "unknown status " + s})
			return
		}
		opts.Status = status
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(c, &aegis.ValidationError{Field: "limit", Reason: "must be between 1 and 100"})
			return
		}
		opts.Limit = n
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(c, &aegis.ValidationError{Field: "offset", Reason: "must be a non-negative integer"})
			return
		}
		opts.Offset = n
	}

	clients, total, err := a.eng.ListClients(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	if clients == nil {
		clients = []client.Client{}
	}

	c.JSON(http.StatusOK, success(fmt.Sprintf("Retrieved %d clients", len(clients)), ClientList{
		Clients: clients,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}))
}

func (a *API) getClient(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	cl, err := a.eng.Client(ctx, clientID)
	if err != nil {
		writeError(c, err)
		return
	}
	data := ClientData{Client: *cl}
	if l, err := a.eng.Status(ctx, clientID); err == nil {
		data.Progress = &l
	}

	c.JSON(http.StatusOK, success("Client information retrieved successfully", data))
}

func (a *API) deleteClient(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	cl, err := a.eng.Client(ctx, clientID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := a.eng.Delete(ctx, clientID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, success(
		fmt.Sprintf("Client %s deleted successfully", cl.Name),
		gin.H{"client_id": clientID.String()},
	))
}

func (a *API) cancel(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, failure("BAD_REQUEST", "invalid request body: "+err.Error()))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = c.DefaultQuery("reason", "cancelled by operator")
	}

	if err := a.eng.Cancel(c.Request.Context(), clientID, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, success("Onboarding cancellation requested", gin.H{
		"client_id": clientID.String(),
		"reason":    req.Reason,
	}))
}

// clientIDParam parses :client_id. A malformed ID cannot name a client, so
// it is reported as not found.
func clientIDParam(c *gin.Context) (id.ClientID, bool) {
	raw := c.Param("client_id")
	clientID, err := id.ParseClientID(raw)
	if err != nil {
		writeError(c, &aegis.NotFoundError{Kind: "client", ID: raw})
		return id.Nil, false
	}
	return clientID, true
}
