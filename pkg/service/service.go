// Package service exposes the caller-facing operation over HTTP. The
// transport stays thin: validation, enum parsing, and a straight call into
// the orchestrator.
package service

import (
	"github.com/cohesivestack/valgo"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/theapemachine/mnemos/pkg/errors"
	"github.com/theapemachine/mnemos/pkg/orchestrator"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/synth"
)

// ContextRequest is the wire shape of the caller-facing operation.
type ContextRequest struct {
	UserID            string `json:"user_id"`
	Text              string `json:"text"`
	IsNewConversation bool   `json:"is_new_conversation"`
	NeedsContext      bool   `json:"needs_context"`
	Depth             string `json:"depth"`
	Format            string `json:"format"`
}

// ContextResponse wraps the synthesized payload.
type ContextResponse struct {
	Context synth.Payload `json:"context"`
	Empty   bool          `json:"empty"`
}

/*
Server fronts the orchestrator with a fiber app. Safe for concurrent use;
all shared state lives behind the orchestrator's caches.
*/
type Server struct {
	app          *fiber.App
	orchestrator *orchestrator.Orchestrator
}

func NewServer(orch *orchestrator.Orchestrator) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "mnemos",
			ServerHeader: "Mnemos-Context-Server",
		}),
		orchestrator: orch,
	}

	srv.app.Use(logger.New(), healthcheck.New())
	srv.app.Get("/", srv.handleRoot)
	srv.app.Post("/context", srv.handleContext)

	return srv
}

// Start blocks serving on addr.
func (srv *Server) Start(addr string) error {
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server gracefully.
func (srv *Server) Shutdown() error {
	return srv.app.Shutdown()
}

// App exposes the fiber app for tests.
func (srv *Server) App() *fiber.App {
	return srv.app
}

func (srv *Server) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *Server) handleContext(ctx fiber.Ctx) error {
	var req ContextRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed request body",
		})
	}

	val := valgo.Is(
		valgo.String(req.UserID, "user_id").Not().Blank(),
	).Is(
		valgo.String(req.Text, "text").Not().Blank(),
	)
	if !val.Valid() {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "invalid request",
			"fields": val.Errors(),
		})
	}

	depth, err := plan.ParseDepth(req.Depth)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	format, err := plan.ParseFormat(req.Format)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payload, err := srv.orchestrator.Handle(ctx.Context(), plan.Message{
		UserID:            req.UserID,
		Text:              req.Text,
		IsNewConversation: req.IsNewConversation,
		NeedsContext:      req.NeedsContext,
		Depth:             depth,
		Format:            format,
	})
	if err != nil {
		if errors.IsInput(err) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		// Degradation never reaches here for well-formed input; anything
		// else is a genuine internal fault.
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return ctx.JSON(ContextResponse{
		Context: payload,
		Empty:   payload.Empty(),
	})
}
