package errors

type Code string

const (
	CodeUnknown                 Code = "UNKNOWN"
	CodeInvalidArgument         Code = "INVALID_ARGUMENT"
	CodeNotFound                Code = "NOT_FOUND"
	CodeSessionClosed           Code = "SESSION_CLOSED"
	CodeAlreadyMatched          Code = "ALREADY_MATCHED"
	CodeNeedsHelpWithoutFeeling Code = "NEEDS_HELP_WITHOUT_FEELING"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeInternal                Code = "INTERNAL"
)
