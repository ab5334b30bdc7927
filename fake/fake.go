// Package fake serves an in-process imitation of the MCP assistant console's
// OpenAI-compatible chat endpoint. It is meant for local development and
// end-to-end tests: replies can be scripted per request to force HTTP
// failures, in-stream errors or dropped connections.
package fake

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/relay"
	"github.com/gin-gonic/gin"
)

// Reply scripts the answer to one request.
type Reply struct {
	// Pieces are sent as consecutive content deltas.
	Pieces []string

	// Status, when non-zero, answers with that HTTP status and a
	// {"detail": Detail} body instead of a stream.
	Status int
	Detail string

	// StreamError, when set, is sent as an error frame after Pieces and the
	// stream ends without a finish chunk.
	StreamError string

	// Drop closes the connection after Pieces without terminating the body.
	Drop bool

	// OmitDone ends the stream after the finish chunk without "[DONE]".
	OmitDone bool
}

// Text returns a reply that streams text in word-sized pieces.
func Text(text string) Reply {
	return Reply{Pieces: strings.SplitAfter(text, " ")}
}

// Received records a request accepted by the server.
type Received struct {
	Request relay.Request
	Stream  bool
	Token   string
}

// Server is an http.Handler emulating /api/v1/chat/completions.
type Server struct {
	engine     *gin.Engine
	token      string
	assistants map[string]struct{}
	respond    func(relay.Request) Reply
	delay      time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	queue    []Reply
	received []Received
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires requests to carry this bearer token. Without it any
// non-empty token is accepted.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithAssistants restricts the accepted model names. Unknown names get 404.
func WithAssistants(names ...string) Option {
	return func(s *Server) {
		s.assistants = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.assistants[n] = struct{}{}
		}
	}
}

// WithResponder sets the reply used once the scripted queue is empty. The
// default echoes the last user message.
func WithResponder(f func(relay.Request) Reply) Option {
	return func(s *Server) { s.respond = f }
}

// WithDelay pauses between content deltas.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithLogger sets the request logger. Defaults to discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server. It leaves gin's global mode alone; binaries that
// serve it set gin.ReleaseMode themselves.
func New(opts ...Option) *Server {
	s := &Server{
		respond: Echo,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.engine = s.routes()
	return s
}

// Echo answers with the last user message.
func Echo(req relay.Request) Reply {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == relay.RoleUser {
			return Text("You said: " + req.Messages[i].Content)
		}
	}
	return Text("Hello!")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Enqueue scripts the replies to the next requests, in order.
func (s *Server) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, replies...)
}

// Received returns the requests accepted so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// next records req and picks its reply.
func (s *Server) next(rec Received) Reply {
	s.mu.Lock()
	s.received = append(s.received, rec)
	if len(s.queue) > 0 {
		r := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return r
	}
	s.mu.Unlock()
	return s.respond(rec.Request)
}
