// Package ids defines the opaque identifier types shared by the
// dependency manager and its collaborators: tasks, workers, objects,
// and the owner addresses cached for remote pulls.
package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// TaskID uniquely identifies a unit of remote work.
// The zero value is the nil ID.
type TaskID string

// NilTaskID is the zero task ID.
const NilTaskID TaskID = ""

// IsNil reports whether the ID is the zero value.
func (t TaskID) IsNil() bool { return t == NilTaskID }

func (t TaskID) String() string { return string(t) }

// WorkerID identifies a local worker process that may block on remote
// objects via a wait primitive.
type WorkerID string

// NilWorkerID is the zero worker ID.
const NilWorkerID WorkerID = ""

// IsNil reports whether the ID is the zero value.
func (w WorkerID) IsNil() bool { return w == NilWorkerID }

func (w WorkerID) String() string { return string(w) }

// ObjectID identifies an object produced by a task. The creating task
// is embedded structurally, so deriving it is pure and allocation-free.
type ObjectID struct {
	// Creator is the task whose execution produces this object.
	Creator TaskID
	// Index distinguishes the outputs of a single task.
	Index int
}

// ObjectForTask returns the ID of the index-th output of the given task.
func ObjectForTask(task TaskID, index int) ObjectID {
	return ObjectID{Creator: task, Index: index}
}

// CreatorTask returns the ID of the task that produces this object.
func (o ObjectID) CreatorTask() TaskID { return o.Creator }

// String renders the ID as "creator:index", the form used by scenario
// files and log output.
func (o ObjectID) String() string {
	return fmt.Sprintf("%s:%d", o.Creator, o.Index)
}

// Less orders object IDs by creator, then index. Used wherever the
// manager must emit per-object side effects in a deterministic order.
func (o ObjectID) Less(other ObjectID) bool {
	if o.Creator != other.Creator {
		return o.Creator < other.Creator
	}
	return o.Index < other.Index
}

// ParseObjectID inverts ObjectID.String. The creator may itself contain
// colons; the index is everything after the last one.
func ParseObjectID(s string) (ObjectID, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return ObjectID{}, fmt.Errorf("malformed object ID %q: want creator:index", s)
	}
	index, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return ObjectID{}, fmt.Errorf("malformed object ID %q: %w", s, err)
	}
	return ObjectID{Creator: TaskID(s[:i]), Index: index}, nil
}

// OwnerAddress identifies the remote actor that owns an object. The
// address is cached at first subscription and handed to the transport
// and reconstruction policy when a pull is opened.
type OwnerAddress struct {
	Host   string
	Port   int
	Worker WorkerID
	Node   string
}

// Present reports whether the address carries a worker identifier.
// The first subscription's address is cached even when it is absent;
// callers use this to distinguish a cached-but-empty address from a
// usable one.
func (a OwnerAddress) Present() bool { return !a.Worker.IsNil() }

// ObjectReference pairs an object with the owner address to cache for
// later pulls of that object.
type ObjectReference struct {
	Object ObjectID
	Owner  OwnerAddress
}
