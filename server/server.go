// Package server exposes the conversation over HTTP and websocket.
package server

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/conversation"
	"github.com/mrsingh-rishi/voice-agent/metrics"
	"github.com/mrsingh-rishi/voice-agent/model"
	"github.com/mrsingh-rishi/voice-agent/types"
)

// Agent is the conversation as seen by the HTTP layer.
type Agent interface {
	InitialGreeting(ctx context.Context) (types.GreetingResponse, error)
	FinalGreeting(ctx context.Context) (types.GreetingResponse, error)
	Summarize(ctx context.Context) (types.SummaryResponse, error)
	ProcessAudio(ctx context.Context, blob model.AudioBlob) (types.TurnResponse, error)
	Speak(ctx context.Context, text, voice string) ([]byte, error)
	Snapshot() conversation.Snapshot
}

type Config struct {
	BodyLimit int // bytes; fiber's default when zero
}

type Server struct {
	app     *fiber.App
	agent   Agent
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds the fiber app. m may be nil, which disables /metrics.
func New(agent Agent, m *metrics.Metrics, cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		agent:   agent,
		metrics: m,
		log:     log.With().Str("component", "server").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(s.observe)

	s.app.Post("/initial-greeting", s.initialGreeting)
	s.app.Post("/final-greeting", s.finalGreeting)
	s.app.Post("/summary-generation", s.summaryGeneration)
	s.app.Post("/process-audio", s.processAudio)
	s.app.Post("/text-to-speech", s.textToSpeech)
	s.app.Get("/healthz", s.health)
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/speech", websocket.New(s.speechStream))

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("server listening")
	return s.app.Listen(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// observe logs every request and records its latency.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
	}
	elapsed := time.Since(start)
	route := c.Route().Path

	if s.metrics != nil {
		s.metrics.ObserveHTTP(route, status, elapsed)
	}
	s.log.Info().
		Str("method", c.Method()).
		Str("route", route).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("request")
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(types.ErrorResponse{Error: err.Error()})
}
