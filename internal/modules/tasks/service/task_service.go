package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskmesh/internal/modules/tasks/domain"
	tasksout "taskmesh/internal/modules/tasks/port/out"
	"taskmesh/internal/platform/clock"
	apperrors "taskmesh/internal/platform/errors"
	"taskmesh/internal/platform/id"
	"taskmesh/internal/platform/wire"
)

// TaskService owns the replica's log and decides what goes on the wire.
// Local mutations broadcast a single op; inbound ops are applied but never
// re-broadcast; a freshly established session gets one full snapshot once its
// channel opens. One mutex serializes every log mutation and broadcast.
type TaskService struct {
	mu        sync.Mutex
	log       *domain.Log
	peerID    string
	ids       id.Generator
	clk       clock.Clock
	store     tasksout.LogStore
	projector tasksout.TaskProjector
	activity  tasksout.ActivityStore
	network   tasksout.Network
	openWait  time.Duration
	logger    *slog.Logger
}

func NewTaskService(
	peerID string,
	ids id.Generator,
	clk clock.Clock,
	store tasksout.LogStore,
	projector tasksout.TaskProjector,
	activity tasksout.ActivityStore,
	network tasksout.Network,
	openWait time.Duration,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		log:       domain.NewLog(),
		peerID:    peerID,
		ids:       ids,
		clk:       clk,
		store:     store,
		projector: projector,
		activity:  activity,
		network:   network,
		openWait:  openWait,
		logger:    logger,
	}
}

// Load restores the log from durable storage. Called once at startup before
// any session exists.
func (s *TaskService) Load(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Restore(snap)
	return s.projectLocked(ctx)
}

func (s *TaskService) Add(ctx context.Context, text string) (domain.Task, error) {
	if text == "" {
		return domain.Task{}, fmt.Errorf("%w: task text is required", apperrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	done := false
	op := s.mintLocked(domain.KindAdd, s.ids.New(), &text, &done)
	if err := s.applyLocalLocked(ctx, op); err != nil {
		return domain.Task{}, err
	}
	return s.findLocked(op.TaskID)
}

func (s *TaskService) Edit(ctx context.Context, taskID, text string) (domain.Task, error) {
	if text == "" {
		return domain.Task{}, fmt.Errorf("%w: task text is required", apperrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLocked(taskID); err != nil {
		return domain.Task{}, err
	}
	op := s.mintLocked(domain.KindEdit, taskID, &text, nil)
	if err := s.applyLocalLocked(ctx, op); err != nil {
		return domain.Task{}, err
	}
	return s.findLocked(taskID)
}

func (s *TaskService) Toggle(ctx context.Context, taskID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.findLocked(taskID)
	if err != nil {
		return domain.Task{}, err
	}
	done := !current.Done
	op := s.mintLocked(domain.KindToggle, taskID, nil, &done)
	if err := s.applyLocalLocked(ctx, op); err != nil {
		return domain.Task{}, err
	}
	return s.findLocked(taskID)
}

func (s *TaskService) Remove(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLocked(taskID); err != nil {
		return err
	}
	op := s.mintLocked(domain.KindRemove, taskID, nil, nil)
	return s.applyLocalLocked(ctx, op)
}

func (s *TaskService) List(context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Materialize(), nil
}

// Export serializes the full log for out-of-band transfer.
func (s *TaskService) Export(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.MarshalIndent(s.log.Snapshot(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode log: %w", err)
	}
	return string(payload), nil
}

// Import merges an exported log through per-op apply, so overlapping content
// dedups and the clock still advances past every imported stamp.
func (s *TaskService) Import(ctx context.Context, payload string) (int, error) {
	snap := domain.Snapshot{}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return 0, fmt.Errorf("%w: decode log payload: %v", apperrors.ErrInvalidInput, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := s.mergeLocked(snap)
	if applied > 0 {
		if err := s.persistProjectLocked(ctx); err != nil {
			return applied, err
		}
	}
	s.recordActivity(ctx, domain.ActivityLogImported, fmt.Sprintf("imported %d ops", applied))
	return applied, nil
}

func (s *TaskService) Activity(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	return s.activity.Tail(ctx, limit)
}

// HandleEnvelope ingests one decoded wire message from a session. Invalid
// payloads are dropped without surfacing; inbound ops are never re-broadcast.
func (s *TaskService) HandleEnvelope(sessionID string, env wire.Envelope) {
	ctx := context.Background()
	switch env.T {
	case wire.TypeOp:
		op := domain.Operation{}
		if err := json.Unmarshal(env.Op, &op); err != nil {
			s.logger.Debug("dropping undecodable op", "session", sessionID, "error", err)
			return
		}
		if err := op.Validate(); err != nil {
			s.logger.Debug("dropping invalid op", "session", sessionID, "error", err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.log.Apply(op) {
			return
		}
		if err := s.persistProjectLocked(ctx); err != nil {
			s.logger.Error("persist after remote op", "error", err)
		}
		s.recordActivity(ctx, domain.ActivityOpReceived, fmt.Sprintf("%s %s from %s", op.Kind, op.TaskID, op.Peer))
	case wire.TypeSync:
		snap := domain.Snapshot{}
		if err := json.Unmarshal(env.State, &snap); err != nil {
			s.logger.Debug("dropping undecodable snapshot", "session", sessionID, "error", err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		applied := s.mergeLocked(snap)
		if applied > 0 {
			if err := s.persistProjectLocked(ctx); err != nil {
				s.logger.Error("persist after snapshot merge", "error", err)
			}
		}
		s.recordActivity(ctx, domain.ActivitySyncReceived, fmt.Sprintf("merged %d ops", applied))
	default:
		s.logger.Debug("dropping envelope of unknown type", "session", sessionID, "type", env.T)
	}
}

// HandleEstablished runs when a session's handshake completes. It waits for
// the channel-open signal (bounded, broadcasting anyway on timeout since some
// transports are unreliable about signaling) and then pushes a full snapshot.
func (s *TaskService) HandleEstablished(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.openWait)
		defer cancel()
		if err := s.network.AwaitChannel(ctx, sessionID); err != nil {
			s.logger.Warn("channel-open wait elapsed, broadcasting anyway", "session", sessionID, "error", err)
		}
		s.broadcastSnapshot(sessionID)
	}()
}

func (s *TaskService) HandleChannelOpen(sessionID string) {
	s.recordActivity(context.Background(), domain.ActivitySyncSent, "channel open on session "+sessionID)
}

func (s *TaskService) broadcastSnapshot(sessionID string) {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := wire.NewSync(s.log.Snapshot())
	if err != nil {
		s.logger.Error("encode snapshot", "error", err)
		return
	}
	if err := s.network.Broadcast(ctx, env); err != nil {
		s.logger.Error("broadcast snapshot", "session", sessionID, "error", err)
		return
	}
	s.recordActivity(ctx, domain.ActivitySyncSent, fmt.Sprintf("snapshot of %d ops", s.log.Len()))
}

func (s *TaskService) mintLocked(kind, taskID string, text *string, done *bool) domain.Operation {
	return domain.Operation{
		ID:        s.ids.New(),
		Peer:      s.peerID,
		Lamport:   s.log.NextLamport(),
		WallClock: s.clk.Now().UnixMilli(),
		Kind:      kind,
		TaskID:    taskID,
		Text:      text,
		Done:      done,
	}
}

func (s *TaskService) applyLocalLocked(ctx context.Context, op domain.Operation) error {
	if !s.log.Apply(op) {
		return nil
	}
	if err := s.persistProjectLocked(ctx); err != nil {
		return err
	}
	env, err := wire.NewOp(op)
	if err != nil {
		return fmt.Errorf("encode op: %w", err)
	}
	if err := s.network.Broadcast(ctx, env); err != nil {
		s.logger.Error("broadcast op", "op", op.ID, "error", err)
	}
	s.recordActivity(ctx, domain.ActivityOpApplied, fmt.Sprintf("%s %s", op.Kind, op.TaskID))
	return nil
}

func (s *TaskService) mergeLocked(snap domain.Snapshot) int {
	applied := 0
	for _, op := range snap.Ops {
		if err := op.Validate(); err != nil {
			s.logger.Debug("skipping invalid op in snapshot", "op", op.ID, "error", err)
			continue
		}
		if s.log.Apply(op) {
			applied++
		}
	}
	return applied
}

func (s *TaskService) persistProjectLocked(ctx context.Context) error {
	if err := s.store.Save(ctx, s.log.Snapshot()); err != nil {
		return fmt.Errorf("persist log: %w", err)
	}
	return s.projectLocked(ctx)
}

func (s *TaskService) projectLocked(ctx context.Context) error {
	if err := s.projector.Replace(ctx, s.log.Materialize()); err != nil {
		return fmt.Errorf("project tasks: %w", err)
	}
	return nil
}

func (s *TaskService) findLocked(taskID string) (domain.Task, error) {
	for _, task := range s.log.Materialize() {
		if task.ID == taskID {
			return task, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%w: task %s", apperrors.ErrNotFound, taskID)
}

func (s *TaskService) recordActivity(ctx context.Context, kind domain.ActivityType, message string) {
	event := domain.ActivityEvent{
		ID:         s.ids.New(),
		OccurredAt: s.clk.Now(),
		Type:       kind,
		Message:    message,
	}
	if err := s.activity.Append(ctx, event); err != nil {
		s.logger.Debug("append activity", "error", err)
	}
}
