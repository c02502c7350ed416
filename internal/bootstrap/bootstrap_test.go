package bootstrap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskmesh/internal/bootstrap"
	sessionoutadapter "taskmesh/internal/modules/session/adapter/out"
	"taskmesh/internal/platform/config"
	apperrors "taskmesh/internal/platform/errors"
)

func newReplica(t *testing.T, hub *sessionoutadapter.PipeHub) *bootstrap.App {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.DiscoveryTimeout = 100 * time.Millisecond
	cfg.ChannelOpenWait = 2 * time.Second
	app, err := bootstrap.NewWithConnector(cfg, hub.Connector())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTwoReplicasConverge(t *testing.T) {
	t.Parallel()
	hub := sessionoutadapter.NewPipeHub()
	ctx := context.Background()

	alpha := newReplica(t, hub)
	beta := newReplica(t, hub)

	// Pre-link history on alpha only; the post-handshake snapshot must
	// carry it over.
	if _, err := alpha.TaskCLI.TaskAdd(ctx, "existing on alpha"); err != nil {
		t.Fatalf("add: %v", err)
	}

	offer, err := alpha.SessionCLI.LinkOffer(ctx)
	if err != nil {
		t.Fatalf("link offer: %v", err)
	}
	answer, err := beta.SessionCLI.LinkAccept(ctx, offer.Blob)
	if err != nil {
		t.Fatalf("link accept: %v", err)
	}
	if answer.SessionID != offer.SessionID {
		t.Fatalf("answer session %s does not echo offer session %s", answer.SessionID, offer.SessionID)
	}
	if err := alpha.SessionCLI.LinkAnswer(ctx, answer.Blob); err != nil {
		t.Fatalf("link answer: %v", err)
	}

	waitFor(t, "channels open on both sides", func() bool {
		for _, app := range []*bootstrap.App{alpha, beta} {
			sessions, err := app.SessionCLI.SessionList(ctx)
			if err != nil || len(sessions) != 1 || sessions[0].State != "channel_open" {
				return false
			}
		}
		return true
	})

	waitFor(t, "snapshot reaching beta", func() bool {
		tasks, err := beta.TaskCLI.TaskList(ctx)
		return err == nil && len(tasks) == 1
	})

	// Live ops in both directions.
	if _, err := beta.TaskCLI.TaskAdd(ctx, "from beta"); err != nil {
		t.Fatalf("add on beta: %v", err)
	}
	added, err := alpha.TaskCLI.TaskAdd(ctx, "from alpha")
	if err != nil {
		t.Fatalf("add on alpha: %v", err)
	}

	waitFor(t, "replicas to converge on 3 tasks", func() bool {
		alphaTasks, errA := alpha.TaskCLI.TaskList(ctx)
		betaTasks, errB := beta.TaskCLI.TaskList(ctx)
		return errA == nil && errB == nil && len(alphaTasks) == 3 && len(betaTasks) == 3
	})

	// A toggle on one side lands on the other.
	if _, err := beta.TaskCLI.TaskToggle(ctx, added.ID); err != nil {
		t.Fatalf("toggle on beta: %v", err)
	}
	waitFor(t, "toggle to replicate", func() bool {
		tasks, err := alpha.TaskCLI.TaskList(ctx)
		if err != nil {
			return false
		}
		for _, task := range tasks {
			if task.ID == added.ID {
				return task.Done
			}
		}
		return false
	})

	// Identical derived order on both replicas.
	alphaTasks, err := alpha.TaskCLI.TaskList(ctx)
	if err != nil {
		t.Fatalf("list alpha: %v", err)
	}
	betaTasks, err := beta.TaskCLI.TaskList(ctx)
	if err != nil {
		t.Fatalf("list beta: %v", err)
	}
	for i := range alphaTasks {
		if alphaTasks[i].ID != betaTasks[i].ID || alphaTasks[i].Done != betaTasks[i].Done {
			t.Fatalf("replicas diverged:\nalpha: %+v\nbeta:  %+v", alphaTasks, betaTasks)
		}
	}
}

func TestStaleAnswerSurfacesSessionNotFound(t *testing.T) {
	t.Parallel()
	hub := sessionoutadapter.NewPipeHub()
	ctx := context.Background()

	alpha := newReplica(t, hub)
	beta := newReplica(t, hub)
	gamma := newReplica(t, hub)

	offer, err := alpha.SessionCLI.LinkOffer(ctx)
	if err != nil {
		t.Fatalf("link offer: %v", err)
	}
	answer, err := beta.SessionCLI.LinkAccept(ctx, offer.Blob)
	if err != nil {
		t.Fatalf("link accept: %v", err)
	}
	// The answer pasted into a replica that never created the session.
	if err := gamma.SessionCLI.LinkAnswer(ctx, answer.Blob); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
