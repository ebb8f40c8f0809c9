// Package mcptools exposes the narrative engine to the generation
// collaborator as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// shutdownTimeout bounds how long RunHTTP waits for in-flight calls.
const shutdownTimeout = 10 * time.Second

// NewServer creates an MCP server with every narrative tool registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "narrative",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register_unit",
		Description: "Register a narrative unit (chapter or scene) with its reading-order ordinal and optional story time and location.",
	}, svc.RegisterUnit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_dependency",
		Description: "Record that one unit depends on another. Rejected when it would create a cycle.",
	}, svc.AddDependency)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_dependency",
		Description: "Mark a dependency edge as satisfied.",
	}, svc.ResolveDependency)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_ready",
		Description: "Report whether a unit can be generated now, listing blocking hard dependencies and soft context.",
	}, svc.CheckReady)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execution_order",
		Description: "Return a generation order for the given units (or all units) that honors every dependency.",
	}, svc.ExecutionOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "plant_foreshadow",
		Description: "Plant a foreshadow element in a unit, optionally with a planned reveal unit and planned echoes.",
	}, svc.PlantForeshadow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo_foreshadow",
		Description: "Record that a unit reinforces a planted foreshadow element.",
	}, svc.EchoForeshadow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reveal_foreshadow",
		Description: "Pay off a foreshadow element. Revealing outside the planned unit requires override.",
	}, svc.RevealForeshadow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abandon_foreshadow",
		Description: "Drop a foreshadow element without a payoff.",
	}, svc.AbandonForeshadow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_foreshadow",
		Description: "Audit every foreshadow chain: complete and broken chains, orphans, overdue reveals and the completion rate.",
	}, svc.AuditForeshadow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register_entity",
		Description: "Register a character or object with aliases and initial location, possessions, knowledge and injuries.",
	}, svc.RegisterEntity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_entry",
		Description: "Check a unit's declared entry state against the last-known state. Returns advisories, a continuity score and any knowledge leaks.",
	}, svc.ValidateEntry)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_guards",
		Description: "Return what the next unit must mention, must not mention and must explain.",
	}, svc.GetGuards)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "prepare_unit",
		Description: "Return readiness and guards for a unit in one consistent read.",
	}, svc.PrepareUnit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "predict_exit",
		Description: "Apply declared transitions to the last-known state and return the expected exit state without changing anything.",
	}, svc.PredictExit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "commit_scene",
		Description: "Commit a scene report after a unit is written: exit state, plants, echoes, reveals and resolved edges, applied atomically.",
	}, svc.CommitScene)

	return server
}

// RunHTTP serves the MCP tools over streamable HTTP until ctx is cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string, logger *slog.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	shutdownDone := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		shutdownDone <- httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("mcp: listening", slog.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// In-flight tool calls finish before the engine is closed.
	if err := <-shutdownDone; err != nil {
		return fmt.Errorf("mcp: shutdown: %w", err)
	}
	logger.Info("mcp: stopped")
	return nil
}

// RunStdio runs the MCP server on stdio, blocking until stdin is closed or
// ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
