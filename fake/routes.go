package fake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

type chatRequest struct {
	Model       string        `json:"model" binding:"required"`
	Messages    []chatMessage `json:"messages" binding:"required,dive"`
	Stream      bool          `json:"stream"`
	SessionID   string        `json:"session_id"`
	Temperature *float64      `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens" binding:"omitempty,gt=0"`
}

type chatMessage struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

func (r chatRequest) toRelay() relay.Request {
	msgs := make([]relay.Message, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = relay.Message{Role: relay.Role(m.Role), Content: m.Content}
	}
	return relay.Request{
		Assistant:   r.Model,
		Messages:    msgs,
		SessionID:   r.SessionID,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1.POST("/chat/completions", s.authenticate, s.handleChatCompletions)
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) authenticate(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	if s.token != "" && token != s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid API key"})
		return
	}
	c.Set("token", token)
	c.Next()
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
			{"loc": []string{"body"}, "msg": err.Error(), "type": "value_error"},
		}})
		return
	}
	if s.assistants != nil {
		if _, ok := s.assistants[req.Model]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Assistant not found: " + req.Model})
			return
		}
	}

	if sid := c.GetHeader("Session-ID"); sid != "" {
		c.Header("Session-ID", sid)
	} else if req.SessionID != "" {
		c.Header("Session-ID", req.SessionID)
	}

	reply := s.next(Received{Request: req.toRelay(), Stream: req.Stream, Token: c.GetString("token")})
	if reply.Status != 0 {
		c.JSON(reply.Status, gin.H{"detail": reply.Detail})
		return
	}
	if req.Stream {
		s.stream(c, req, reply)
		return
	}
	s.complete(c, req, reply)
}

func (s *Server) complete(c *gin.Context, req chatRequest, reply Reply) {
	if reply.StreamError != "" {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": reply.StreamError})
		return
	}
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content))
	}
	c.JSON(http.StatusOK, openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: strings.Join(reply.Pieces, ""),
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     prompt,
			CompletionTokens: len(reply.Pieces),
			TotalTokens:      prompt + len(reply.Pieces),
		},
	})
}

// stream writes the reply as role chunk, content chunks, finish chunk and
// the [DONE] marker, the order the console backend uses.
func (s *Server) stream(c *gin.Context, req chatRequest, reply Reply) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	w := chunkWriter{
		c:       c,
		id:      "chatcmpl-" + uuid.NewString(),
		created: s.now().Unix(),
		model:   req.Model,
	}

	w.chunk(openai.ChatCompletionStreamChoiceDelta{Role: openai.ChatMessageRoleAssistant}, "")
	for _, p := range reply.Pieces {
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
		}
		w.chunk(openai.ChatCompletionStreamChoiceDelta{Content: p}, "")
	}

	switch {
	case reply.StreamError != "":
		w.write(gin.H{"error": gin.H{"message": reply.StreamError, "type": "internal_error"}})
		return
	case reply.Drop:
		if conn, _, err := c.Writer.Hijack(); err == nil {
			_ = conn.Close()
		}
		return
	}

	w.chunk(openai.ChatCompletionStreamChoiceDelta{}, openai.FinishReasonStop)
	if !reply.OmitDone {
		w.line("[DONE]")
	}
}

type chunkWriter struct {
	c       *gin.Context
	id      string
	created int64
	model   string
}

func (w chunkWriter) chunk(delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) {
	w.write(openai.ChatCompletionStreamResponse{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	})
}

func (w chunkWriter) write(payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(`{"error":{"message":"json marshal failed"}}`)
	}
	w.line(string(b))
}

func (w chunkWriter) line(data string) {
	fmt.Fprintf(w.c.Writer, "data: %s\n\n", data)
	w.c.Writer.Flush()
}
