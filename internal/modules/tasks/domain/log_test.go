package domain_test

import (
	"math/rand"
	"reflect"
	"testing"

	"taskmesh/internal/modules/tasks/domain"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func addOp(id, peer, taskID, text string, lamport uint64, wall int64) domain.Operation {
	return domain.Operation{
		ID: id, Peer: peer, Lamport: lamport, WallClock: wall,
		Kind: domain.KindAdd, TaskID: taskID, Text: strPtr(text), Done: boolPtr(false),
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	log := domain.NewLog()
	add := addOp("op-1", "peer-a", "t1", "milk", 1, 10)
	toggle := domain.Operation{
		ID: "op-2", Peer: "peer-b", Lamport: 2, WallClock: 20,
		Kind: domain.KindToggle, TaskID: "t1", Done: boolPtr(true),
	}

	if !log.Apply(add) {
		t.Fatal("first add apply should report applied")
	}
	if !log.Apply(toggle) {
		t.Fatal("first toggle apply should report applied")
	}
	if log.Apply(toggle) {
		t.Fatal("duplicate toggle apply should report not applied")
	}

	tasks := log.Materialize()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].ID != "t1" || tasks[0].Text != "milk" || !tasks[0].Done {
		t.Fatalf("unexpected materialized task: %+v", tasks[0])
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 applied ops, got %d", log.Len())
	}
}

func TestMaterializeIsOrderAndDuplicationIndependent(t *testing.T) {
	t.Parallel()
	ops := []domain.Operation{
		addOp("op-1", "peer-a", "t1", "milk", 1, 10),
		{ID: "op-2", Peer: "peer-b", Lamport: 2, WallClock: 20, Kind: domain.KindEdit, TaskID: "t1", Text: strPtr("oat milk")},
		{ID: "op-3", Peer: "peer-a", Lamport: 3, WallClock: 30, Kind: domain.KindToggle, TaskID: "t1", Done: boolPtr(true)},
		addOp("op-4", "peer-b", "t2", "bread", 2, 15),
		{ID: "op-5", Peer: "peer-a", Lamport: 4, WallClock: 40, Kind: domain.KindRemove, TaskID: "t3"},
		addOp("op-6", "peer-c", "t3", "eggs", 1, 5),
		{ID: "op-7", Peer: "peer-c", Lamport: 2, WallClock: 25, Kind: domain.KindEdit, TaskID: "t2", Text: strPtr("rye bread")},
	}

	reference := domain.NewLog()
	for _, op := range ops {
		reference.Apply(op)
	}
	want := reference.Materialize()

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		shuffled := make([]domain.Operation, len(ops))
		copy(shuffled, ops)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		log := domain.NewLog()
		for _, op := range shuffled {
			log.Apply(op)
			if rng.Intn(2) == 0 {
				log.Apply(op)
			}
		}
		got := log.Materialize()
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: materialization diverged\n got: %+v\nwant: %+v", trial, got, want)
		}
	}
}

func TestRemoveIsTerminalRegardlessOfArrival(t *testing.T) {
	t.Parallel()
	log := domain.NewLog()
	remove := domain.Operation{ID: "op-rm", Peer: "peer-b", Lamport: 5, WallClock: 50, Kind: domain.KindRemove, TaskID: "t2"}
	add := addOp("op-add", "peer-a", "t2", "bread", 1, 10)

	log.Apply(remove)
	log.Apply(add)

	if tasks := log.Materialize(); len(tasks) != 0 {
		t.Fatalf("removed task resurfaced: %+v", tasks)
	}

	// Remove with the lowest lamport still wins.
	log2 := domain.NewLog()
	log2.Apply(addOp("op-a", "peer-a", "t9", "x", 5, 10))
	log2.Apply(domain.Operation{ID: "op-r", Peer: "peer-b", Lamport: 1, WallClock: 5, Kind: domain.KindRemove, TaskID: "t9"})
	log2.Apply(domain.Operation{ID: "op-e", Peer: "peer-a", Lamport: 9, WallClock: 90, Kind: domain.KindEdit, TaskID: "t9", Text: strPtr("y")})
	if tasks := log2.Materialize(); len(tasks) != 0 {
		t.Fatalf("tombstone cleared by later edit: %+v", tasks)
	}
}

func TestClockAdvancesPastEveryAppliedStamp(t *testing.T) {
	t.Parallel()
	log := domain.NewLog()
	var maxStamp uint64
	for _, op := range []domain.Operation{
		addOp("op-1", "peer-a", "t1", "a", 7, 1),
		addOp("op-2", "peer-b", "t2", "b", 3, 2),
		addOp("op-3", "peer-c", "t3", "c", 12, 3),
	} {
		log.Apply(op)
		if op.Lamport > maxStamp {
			maxStamp = op.Lamport
		}
	}
	if log.Clock() <= maxStamp {
		t.Fatalf("clock %d not past max applied stamp %d", log.Clock(), maxStamp)
	}
	if log.NextLamport() != log.Clock()+1 {
		t.Fatalf("next lamport %d, clock %d", log.NextLamport(), log.Clock())
	}
}

func TestConcurrentEditsResolveByPeerThenID(t *testing.T) {
	t.Parallel()
	log := domain.NewLog()
	log.Apply(addOp("op-1", "peer-a", "t1", "base", 1, 10))
	log.Apply(domain.Operation{ID: "op-2", Peer: "peer-b", Lamport: 2, WallClock: 20, Kind: domain.KindEdit, TaskID: "t1", Text: strPtr("from-b")})
	log.Apply(domain.Operation{ID: "op-3", Peer: "peer-a", Lamport: 2, WallClock: 21, Kind: domain.KindEdit, TaskID: "t1", Text: strPtr("from-a")})

	tasks := log.Materialize()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	// Equal stamps: peer-a sorts before peer-b, so peer-b's edit folds last.
	if tasks[0].Text != "from-b" {
		t.Fatalf("expected peer-b edit to win, got %q", tasks[0].Text)
	}
}

func TestMaterializeOrdersOpenBeforeDoneThenByLastWrite(t *testing.T) {
	t.Parallel()
	log := domain.NewLog()
	log.Apply(addOp("op-1", "peer-a", "t1", "old open", 1, 10))
	log.Apply(addOp("op-2", "peer-a", "t2", "new open", 2, 30))
	log.Apply(addOp("op-3", "peer-a", "t3", "done", 3, 5))
	log.Apply(domain.Operation{ID: "op-4", Peer: "peer-a", Lamport: 4, WallClock: 20, Kind: domain.KindToggle, TaskID: "t3", Done: boolPtr(true)})

	got := log.Materialize()
	wantIDs := []string{"t1", "t2", "t3"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d tasks, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestSnapshotRestoreReplacesWholesale(t *testing.T) {
	t.Parallel()
	original := domain.NewLog()
	original.Apply(addOp("op-1", "peer-a", "t1", "milk", 1, 10))
	original.Apply(domain.Operation{ID: "op-2", Peer: "peer-b", Lamport: 2, WallClock: 20, Kind: domain.KindToggle, TaskID: "t1", Done: boolPtr(true)})
	snap := original.Snapshot()

	restored := domain.NewLog()
	restored.Apply(addOp("op-x", "peer-x", "tx", "stale", 9, 99))
	restored.Restore(snap)

	if restored.Clock() != original.Clock() {
		t.Fatalf("clock %d after restore, want %d", restored.Clock(), original.Clock())
	}
	if restored.Contains("op-x") {
		t.Fatal("restore should drop pre-existing ops")
	}
	if !reflect.DeepEqual(restored.Materialize(), original.Materialize()) {
		t.Fatal("restored log materializes differently")
	}
	if restored.Apply(addOp("op-1", "peer-a", "t1", "milk", 1, 10)) {
		t.Fatal("restored seen-set should dedup snapshot ops")
	}
}

func TestRestoreSkipsInvalidOperations(t *testing.T) {
	t.Parallel()
	// A hand-edited or partially written snapshot can carry ops with the
	// kind-specific fields missing. Restore must drop them rather than let
	// Materialize dereference a nil text or done.
	snap := domain.Snapshot{
		Clock: 7,
		Ops: []domain.Operation{
			addOp("op-good", "peer-a", "t1", "survives", 1, 10),
			{ID: "op-no-text", Peer: "peer-a", Lamport: 2, WallClock: 20, Kind: domain.KindAdd, TaskID: "t2"},
			{ID: "op-no-done", Peer: "peer-b", Lamport: 3, WallClock: 30, Kind: domain.KindToggle, TaskID: "t1"},
			{ID: "", Peer: "peer-b", Lamport: 4, WallClock: 40, Kind: domain.KindRemove, TaskID: "t1"},
		},
	}

	log := domain.NewLog()
	log.Restore(snap)

	tasks := log.Materialize()
	if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].Text != "survives" || tasks[0].Done {
		t.Fatalf("unexpected materialization after damaged restore: %+v", tasks)
	}
	if log.Contains("op-no-text") || log.Contains("op-no-done") {
		t.Fatal("invalid ops must not enter the seen-set")
	}
	if log.Clock() != 7 {
		t.Fatalf("clock %d after restore, want 7", log.Clock())
	}
}

func TestValidateRejectsMalformedOperations(t *testing.T) {
	t.Parallel()
	cases := map[string]domain.Operation{
		"missing id":       {Peer: "p", Lamport: 1, Kind: domain.KindRemove, TaskID: "t"},
		"missing task":     {ID: "o", Peer: "p", Lamport: 1, Kind: domain.KindRemove},
		"zero lamport":     {ID: "o", Peer: "p", Kind: domain.KindRemove, TaskID: "t"},
		"unknown kind":     {ID: "o", Peer: "p", Lamport: 1, Kind: "archive", TaskID: "t"},
		"add sans text":    {ID: "o", Peer: "p", Lamport: 1, Kind: domain.KindAdd, TaskID: "t"},
		"toggle sans done": {ID: "o", Peer: "p", Lamport: 1, Kind: domain.KindToggle, TaskID: "t"},
	}
	for name, op := range cases {
		if err := op.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	ok := addOp("o", "p", "t", "text", 1, 1)
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid op rejected: %v", err)
	}
}
