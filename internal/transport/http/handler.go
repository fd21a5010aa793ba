// Package http is the command API's transport layer: gin routes that
// decode a JSON body into a command.Command envelope, call
// command.Service.ExecuteCommand, and map the returned resultkind.Error
// onto an HTTP status (spec §6). Generalized from the teacher's
// internal/transport/http/handler.go, which wired one gin route per
// wallet operation directly onto *service.WalletService methods; here
// every route instead funnels through the single ExecuteCommand
// boundary, since the command layer (not the transport layer) owns
// per-operation dispatch.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/eventcore/internal/callerctx"
	"github.com/richardliu001/eventcore/internal/command"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/resultkind"
)

// RegisterHandlers wires every command route under /v1.
func RegisterHandlers(r *gin.Engine, svc *command.Service, ids *idgen.Generator) {
	v1 := r.Group("/v1")
	{
		v1.POST("/actions", commandHandler(svc, ids, command.CreateAction, noPathParams))
		v1.POST("/actions/:id/complete", commandHandler(svc, ids, command.CompleteAction, withIDParam))
		v1.POST("/actions/:id/cancel", commandHandler(svc, ids, command.CancelAction, withIDParam))
		v1.PATCH("/actions/:id", commandHandler(svc, ids, command.UpdateAction, withIDParam))

		v1.POST("/policies", commandHandler(svc, ids, command.CreatePolicy, noPathParams))
		v1.POST("/policies/:id/activate", commandHandler(svc, ids, command.ActivatePolicy, withIDParam))
		v1.POST("/policies/:id/suspend", commandHandler(svc, ids, command.SuspendPolicy, withIDParam))
		v1.POST("/policies/:id/resume", commandHandler(svc, ids, command.ResumePolicy, withIDParam))
		v1.POST("/policies/:id/revoke", commandHandler(svc, ids, command.RevokePolicy, withIDParam))
	}
}

// noPathParams and withIDParam decide whether the route's :id path
// parameter is merged into the decoded payload under "id".
func noPathParams(c *gin.Context, payload map[string]any) {}

func withIDParam(c *gin.Context, payload map[string]any) {
	payload["id"] = c.Param("id")
}

// commandHandler decodes the request body into a command payload,
// builds the caller metadata from request headers, executes the
// command, and writes the result (or mapped error) as JSON.
func commandHandler(svc *command.Service, ids *idgen.Generator, cmdType command.Type, mergeParams func(*gin.Context, map[string]any)) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := map[string]any{}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&payload); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		mergeParams(c, payload)

		meta := command.Metadata{
			CorrelationID: correlationID(c, ids),
			CausationID:   c.GetHeader("X-Causation-Id"),
			Actor:         actorFromRequest(c),
			Timestamp:     time.Now(),
		}

		// Bind the caller context (spec §4.6) onto the request context so
		// LoggingMiddleware, which runs after this handler returns, can
		// surface correlation id and actor without commandHandler passing
		// them back up out-of-band.
		c.Request = c.Request.WithContext(callerctx.WithValue(c.Request.Context(), callerctx.Context{
			CorrelationID: meta.CorrelationID,
			CausationID:   meta.CausationID,
			Actor:         meta.Actor,
			Timestamp:     meta.Timestamp,
		}))

		result, cmdErr := svc.ExecuteCommand(c.Request.Context(), command.Command{
			Type:     cmdType,
			Payload:  payload,
			Metadata: meta,
		})
		if cmdErr != nil {
			writeError(c, cmdErr)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func correlationID(c *gin.Context, ids *idgen.Generator) string {
	if v := c.GetHeader("X-Correlation-Id"); v != "" {
		return v
	}
	return ids.Next()
}

func actorFromRequest(c *gin.Context) callerctx.Actor {
	id := c.GetHeader("X-Actor-Id")
	if id == "" {
		return callerctx.System
	}
	return callerctx.Actor{
		ID:        id,
		Email:     c.GetHeader("X-Actor-Email"),
		AccountID: c.GetHeader("X-Actor-Account-Id"),
	}
}

func writeError(c *gin.Context, err *resultkind.Error) {
	c.JSON(err.Kind.HTTPStatus(), gin.H{
		"error": gin.H{
			"kind":    string(err.Kind),
			"rule":    err.Rule,
			"message": err.Message,
			"details": err.Details,
		},
	})
}
