// Package dispatch implements the asynchronous dispatch/retrieval protocol.
//
// DESIGN: A submission becomes a Task keyed by an opaque handle. The task is
// recorded in the result store, pushed onto the priority channel of its
// backend queue and later claimed by exactly one worker of that queue's pool:
//
//	Submit -> store(submitted) -> store(queued) -> PriorityQueue.Push
//	Pool worker: Claim -> store(running) -> Executor -> Complete | Fail
//
// Channels are strictly priority ordered (higher first) and FIFO within a
// level. There is no cancellation of running work.
package dispatch

// Priority is a bounded priority level. Higher values are served first.
type Priority int

const (
	MinPriority     Priority = 0
	DefaultPriority Priority = 1
	MaxPriority     Priority = 2

	// NumPriorities is the number of distinct levels.
	NumPriorities = int(MaxPriority) + 1
)

// GenericQueue serves adapters without a dedicated queue.
const GenericQueue = "generic"

// ClampPriority maps any integer into [MinPriority, MaxPriority].
// Values above the range become MaxPriority, negative values MinPriority.
func ClampPriority(p int) Priority {
	switch {
	case p > int(MaxPriority):
		return MaxPriority
	case p < int(MinPriority):
		return MinPriority
	default:
		return Priority(p)
	}
}

// PriorityOrDefault clamps p, or returns DefaultPriority when p is nil.
func PriorityOrDefault(p *int) Priority {
	if p == nil {
		return DefaultPriority
	}
	return ClampPriority(*p)
}
