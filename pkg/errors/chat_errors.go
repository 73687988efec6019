package errors

var (
	// Domain errors — used by the stores and the matchmaker
	ErrSessionNotFound         = NotFound("chat session not found")
	ErrEntryNotFound           = NotFound("waiting queue entry not found")
	ErrSessionClosed           = New(CodeSessionClosed, "chat session has ended")
	ErrAlreadyMatched          = New(CodeAlreadyMatched, "participant already has an active session")
	ErrEmptyContent            = InvalidArg("message content is empty")
	ErrNotParticipant          = InvalidArg("sender is not a participant of this session")
	ErrInvalidFeeling          = InvalidArg("feeling must be one of: better, neutral, worse")
	ErrNeedsHelpWithoutFeeling = New(CodeNeedsHelpWithoutFeeling, "needs-help recorded before any feeling for this session and user")
	ErrSelfMatch               = InvalidArg("a session needs two distinct participants")
	ErrRateLimited             = New(CodeRateLimited, "too many requests, slow down")
)

func ErrStoreFailure(op string, cause error) error {
	return Wrap(CodeInternal, op+" failed", cause)
}
