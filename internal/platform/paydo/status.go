package paydo

// Provider transaction state codes.
const (
	StateNew         = 1
	StateAccepted    = 2
	StateFailed      = 3
	StatePending     = 4
	StateRejected    = 5
	StatePreApproved = 9
	StateTimeout     = 15
)

// textualStates maps the status strings the query API returns to state
// codes. Unrecognized text maps to nothing; callers must treat the code as
// unknown, not as a failure.
var textualStates = map[string]int{
	"new":      StateNew,
	"accepted": StateAccepted,
	"success":  StateAccepted,
	"fail":     StateFailed,
	"failed":   StateFailed,
	"pending":  StatePending,
}

// StateFromStatus resolves a textual transaction status to a state code.
func StateFromStatus(status string) (int, bool) {
	code, ok := textualStates[status]
	return code, ok
}
