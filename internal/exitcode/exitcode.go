package exitcode

// Exit codes for promptly commands
const (
	Success   = 0
	Error     = 1
	Usage     = 2
	Config    = 3
	Cancelled = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func BadUsage(msg string) ExitError  { return ExitError{Code: Usage, Message: msg} }
func BadConfig(msg string) ExitError { return ExitError{Code: Config, Message: msg} }
func Cancel() ExitError              { return ExitError{Code: Cancelled, Message: "cancelled"} }
