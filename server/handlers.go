package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-agent/model"
	"github.com/mrsingh-rishi/voice-agent/output"
	"github.com/mrsingh-rishi/voice-agent/types"
	"github.com/mrsingh-rishi/voice-agent/workers"
)

const (
	msgInvalidAudio   = "Invalid audio format."
	msgSpeechFailed   = "Failed to generate speech"
	msgUnavailable    = "Service is shutting down"
	msgMissingUpload  = "form field `audio` is required"
	msgInvalidRequest = "request body must be JSON with a `text` field"
)

// sessionError maps coordinator errors that are not domain failures.
func (s *Server) sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, workers.ErrStopped) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrorResponse{Error: msgUnavailable})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrorResponse{Error: err.Error()})
	}
	s.log.Error().Err(err).Msg("session operation failed")
	return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: err.Error(), Kind: model.KindOf(err)})
}

func (s *Server) initialGreeting(c *fiber.Ctx) error {
	resp, err := s.agent.InitialGreeting(c.UserContext())
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) finalGreeting(c *fiber.Ctx) error {
	resp, err := s.agent.FinalGreeting(c.UserContext())
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) summaryGeneration(c *fiber.Ctx) error {
	resp, err := s.agent.Summarize(c.UserContext())
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) processAudio(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: msgMissingUpload, Kind: model.KindInvalidRequest})
	}
	f, err := fh.Open()
	if err != nil {
		return s.sessionError(c, errors.Wrap(err, "open upload"))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return s.sessionError(c, errors.Wrap(err, "read upload"))
	}

	resp, err := s.agent.ProcessAudio(c.UserContext(), model.AudioBlob{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
	})
	if model.IsKind(err, model.KindUnsupportedAudioFormat) {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: msgInvalidAudio, Kind: model.KindUnsupportedAudioFormat})
	}
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) textToSpeech(c *fiber.Ctx) error {
	var req types.SpeechRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: msgInvalidRequest, Kind: model.KindInvalidRequest})
	}

	wav, err := s.agent.Speak(c.UserContext(), req.Text, req.Voice)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: msgSpeechFailed, Kind: model.KindOf(err)})
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename=response.wav")
	return c.SendStream(bytes.NewReader(wav), len(wav))
}

func (s *Server) health(c *fiber.Ctx) error {
	snap := s.agent.Snapshot()
	return c.JSON(types.HealthResponse{
		Status:    "ok",
		Phase:     snap.Phase.String(),
		Iteration: snap.Turns,
		Limit:     snap.Limit,
	})
}

// speechStream synthesizes every {"text": ...} message it receives and
// answers with binary WAV frames followed by an end mark.
func (s *Server) speechStream(ws *websocket.Conn) {
	defer ws.Close()
	log := s.log.With().Str("remote", ws.RemoteAddr().String()).Logger()

	out, err := output.NewSpeechOutput(ws, output.DefaultChunkSize, log)
	if err != nil {
		log.Error().Err(err).Msg("speech output")
		return
	}
	out.Start()
	defer out.Close()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Msg("speech stream closed")
			} else {
				log.Warn().Err(err).Msg("speech stream read error")
			}
			return
		}

		var req types.SpeechRequest
		if err := json.Unmarshal(msg, &req); err != nil || strings.TrimSpace(req.Text) == "" {
			out.SendError(model.NewError(model.KindInvalidRequest, "server.speech", errors.New(msgInvalidRequest)))
			continue
		}

		wav, err := s.agent.Speak(context.Background(), req.Text, req.Voice)
		if err != nil {
			out.SendError(err)
			continue
		}
		out.SendSpeech(wav)
	}
}
