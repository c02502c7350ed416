package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	sessioninadapter "taskmesh/internal/modules/session/adapter/in"
	sessionoutadapter "taskmesh/internal/modules/session/adapter/out"
	sessionout "taskmesh/internal/modules/session/port/out"
	sessionservice "taskmesh/internal/modules/session/service"
	sessionusecase "taskmesh/internal/modules/session/usecase"
	tasksinadapter "taskmesh/internal/modules/tasks/adapter/in"
	tasksoutadapter "taskmesh/internal/modules/tasks/adapter/out"
	tasksservice "taskmesh/internal/modules/tasks/service"
	tasksusecase "taskmesh/internal/modules/tasks/usecase"
	"taskmesh/internal/platform/clock"
	"taskmesh/internal/platform/config"
	"taskmesh/internal/platform/id"
	uiapp "taskmesh/internal/ui/app"
)

type App struct {
	TaskCLI    tasksinadapter.CLIHandler
	SessionCLI sessioninadapter.CLIHandler

	manager *sessionservice.Manager
}

func New(cfg config.Config) (*App, error) {
	connector, err := newConnector(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithConnector(cfg, connector)
}

// NewWithConnector wires a replica around an externally owned connector.
// Tests and same-process demos use it to rendezvous replicas on one hub.
func NewWithConnector(cfg config.Config, connector sessionout.Connector) (*App, error) {
	clk := clock.SystemClock{}
	ids := id.RandomHex{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	peerID, err := loadPeerID(cfg.PeerIDPath, ids)
	if err != nil {
		return nil, err
	}

	manager := sessionservice.NewManager(connector, ids, cfg.DiscoveryTimeout, logger)

	projector, err := tasksoutadapter.NewSQLiteTaskProjector(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("new task projector: %w", err)
	}
	taskSvc := tasksservice.NewTaskService(
		peerID,
		ids,
		clk,
		tasksoutadapter.NewFileLogStore(cfg.LogPath),
		projector,
		tasksoutadapter.NewFileActivityStore(cfg.ActivityPath),
		manager,
		cfg.ChannelOpenWait,
		logger,
	)
	manager.SetHandlers(sessionservice.Handlers{
		OnEnvelope:    taskSvc.HandleEnvelope,
		OnEstablished: taskSvc.HandleEstablished,
		OnChannelOpen: taskSvc.HandleChannelOpen,
	})
	if err := taskSvc.Load(context.Background()); err != nil {
		return nil, err
	}

	return &App{
		TaskCLI:    tasksinadapter.NewCLIHandler(tasksusecase.NewInteractor(taskSvc)),
		SessionCLI: sessioninadapter.NewCLIHandler(sessionusecase.NewInteractor(manager)),
		manager:    manager,
	}, nil
}

// Close releases every session. Safe to call more than once.
func (a *App) Close() {
	a.manager.Dispose()
}

func newConnector(cfg config.Config) (sessionout.Connector, error) {
	switch strings.ToLower(cfg.Transport) {
	case "pipe":
		return sessionoutadapter.NewPipeHub().Connector(), nil
	case "libp2p":
		return sessionoutadapter.NewLibp2pConnector(), nil
	case "ws", "websocket":
		return sessionoutadapter.NewWSConnector(id.RandomHex{}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// loadPeerID keeps the replica id stable across restarts; operations minted
// here must carry the same peer field forever.
func loadPeerID(path string, ids id.Generator) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(raw))) > 0 {
		return strings.TrimSpace(string(raw)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read peer id: %w", err)
	}
	peerID := ids.New()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(peerID+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write peer id: %w", err)
	}
	return peerID, nil
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.TaskCLI, app.SessionCLI)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
