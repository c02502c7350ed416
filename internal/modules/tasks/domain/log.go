package domain

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Log is the replicated operation log of one replica. Apply is commutative
// and idempotent over operation ids, so two replicas that have seen the same
// set of operations materialize the same task list regardless of arrival
// order. Log is not safe for concurrent use; the owning service serializes
// access behind its own mutex.
type Log struct {
	byTask map[string][]Operation
	seen   mapset.Set[string]
	clock  uint64
}

func NewLog() *Log {
	return &Log{
		byTask: make(map[string][]Operation),
		seen:   mapset.NewThreadUnsafeSet[string](),
	}
}

// Apply records op unless its id has been seen before. It reports whether the
// op was newly applied. Every applied op advances the Lamport clock to
// max(clock, op.Lamport)+1 so locally minted ops always order after
// everything the replica has observed.
func (l *Log) Apply(op Operation) bool {
	if l.seen.Contains(op.ID) {
		return false
	}
	l.seen.Add(op.ID)
	l.byTask[op.TaskID] = append(l.byTask[op.TaskID], op)
	if op.Lamport > l.clock {
		l.clock = op.Lamport
	}
	l.clock++
	return true
}

func (l *Log) Contains(opID string) bool {
	return l.seen.Contains(opID)
}

// NextLamport returns the stamp a locally minted operation should carry.
func (l *Log) NextLamport() uint64 {
	return l.clock + 1
}

func (l *Log) Clock() uint64 {
	return l.clock
}

func (l *Log) Len() int {
	return l.seen.Cardinality()
}

// lessOp is the total order folds run in: Lamport stamp first, then peer id,
// then op id. The two tiebreakers make the order identical on every replica
// even when stamps collide.
func lessOp(a, b Operation) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport < b.Lamport
	}
	if a.Peer != b.Peer {
		return a.Peer < b.Peer
	}
	return a.ID < b.ID
}

// Materialize folds the applied set into the current task list. Removed tasks
// stay tombstoned no matter where the remove lands in the order. The result
// is sorted open-before-done, then by last write, with the task id breaking
// ties so the output is deterministic.
func (l *Log) Materialize() []Task {
	tasks := make([]Task, 0, len(l.byTask))
	for taskID, ops := range l.byTask {
		sorted := make([]Operation, len(ops))
		copy(sorted, ops)
		sort.SliceStable(sorted, func(i, j int) bool { return lessOp(sorted[i], sorted[j]) })

		task := Task{ID: taskID}
		created := false
		removed := false
		for _, op := range sorted {
			if removed {
				continue
			}
			switch op.Kind {
			case KindAdd:
				created = true
				task.Text = *op.Text
				if op.Done != nil {
					task.Done = *op.Done
				}
			case KindEdit:
				task.Text = *op.Text
			case KindToggle:
				task.Done = *op.Done
			case KindRemove:
				removed = true
			}
			task.LastWrite = op.WallClock
		}
		if created && !removed {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Done != tasks[j].Done {
			return !tasks[i].Done
		}
		if tasks[i].LastWrite != tasks[j].LastWrite {
			return tasks[i].LastWrite < tasks[j].LastWrite
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// Snapshot is the serialized form of a log: the clock plus every applied
// operation. Ops are emitted in the deterministic fold order so two logs with
// equal applied sets snapshot identically.
type Snapshot struct {
	Clock uint64      `json:"clock"`
	Ops   []Operation `json:"ops"`
}

func (l *Log) Snapshot() Snapshot {
	ops := make([]Operation, 0, l.seen.Cardinality())
	for _, taskOps := range l.byTask {
		ops = append(ops, taskOps...)
	}
	sort.SliceStable(ops, func(i, j int) bool { return lessOp(ops[i], ops[j]) })
	return Snapshot{Clock: l.clock, Ops: ops}
}

// Restore replaces the log wholesale with the snapshot contents. It is for
// bootstrapping from disk only; merging a peer's state goes through per-op
// Apply so dedup and clock advancement hold. Operations that fail validation
// are skipped, so a damaged snapshot degrades instead of poisoning the fold.
func (l *Log) Restore(snap Snapshot) {
	l.byTask = make(map[string][]Operation, len(snap.Ops))
	l.seen = mapset.NewThreadUnsafeSet[string]()
	for _, op := range snap.Ops {
		if op.Validate() != nil {
			continue
		}
		if l.seen.Contains(op.ID) {
			continue
		}
		l.seen.Add(op.ID)
		l.byTask[op.TaskID] = append(l.byTask[op.TaskID], op)
	}
	l.clock = snap.Clock
}
