package server

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/elee1766/chatrelay/src/session"
	"github.com/gin-gonic/gin"
	"github.com/swaggest/jsonschema-go"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{Message: "Send POST request to /ask or /chat"})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: bindingDetail(err)})
		return
	}

	answer, err := s.relay.Ask(c.Request.Context(), *req.Question)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, AskResponse{Answer: answer})
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: bindingDetail(err)})
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	result, err := s.relay.HandleTurn(c.Request.Context(), *req.ConversationID, req.Role, *req.Message)
	switch {
	case errors.Is(err, session.ErrSessionInactive):
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: inactiveDetail})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: chatErrorPrefix + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.started).Seconds(),
		ChatModel:     s.config.ChatModel,
		AskModel:      s.config.AskModel,
		Host:          s.host,
		Process:       processInfo(c.Request.Context()),
	}
	if s.conversations != nil {
		resp.Conversations = s.conversations.Len()
	}
	if resp.Process != nil {
		resp.Process.Goroutines = runtime.NumGoroutine()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSchema(c *gin.Context) {
	reflector := jsonschema.Reflector{}
	schemas := map[string]any{}
	for name, v := range map[string]any{
		"ask_request":   AskRequest{},
		"ask_response":  AskResponse{},
		"chat_request":  ChatRequest{},
		"chat_response": ChatResponse{},
		"error":         ErrorResponse{},
	} {
		schema, err := reflector.Reflect(v)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
			return
		}
		schemas[name] = schema
	}
	c.JSON(http.StatusOK, schemas)
}
