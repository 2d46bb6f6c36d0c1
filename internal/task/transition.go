package task

// CanTransition reports whether the engine may move a task from one status
// to another. Terminal states are sticky; the only reverse edge is the
// user-initiated retry from failed back to pending.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		// User cancel and mark-complete apply to any non-terminal state.
		return to == StatusInProgress || to == StatusCancelled || to == StatusCompleted
	case StatusInProgress:
		return to == StatusAwaitingReview || to == StatusFailed ||
			to == StatusCancelled || to == StatusCompleted
	case StatusAwaitingReview:
		return to == StatusCompleted || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}
