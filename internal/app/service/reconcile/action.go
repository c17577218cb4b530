package reconcile

// PushAction is the acknowledgement the IPN endpoint sends back to the
// provider. The texts are part of the provider contract.
type PushAction string

const (
	// PushActionOK acknowledges a final transition (paid or failed).
	PushActionOK PushAction = "OK"
	// PushActionWait acknowledges a notification that produced no final
	// transition; the order stays parked awaiting confirmation.
	PushActionWait PushAction = "WAIT"
	// PushActionIgnored acknowledges a benign-ignore: mismatched ids or a
	// terminal order. Deliberately indistinguishable from success to the
	// sender, so a spoofed notification learns nothing.
	PushActionIgnored PushAction = "IGNORED"
	// PushActionCheckFailed acknowledges receipt when the pull confirmation
	// could not be completed; the provider must not retry-storm, the order
	// is confirmed on a later attempt.
	PushActionCheckFailed PushAction = "Check failed"
)

// ConfirmState is the coarse result of a pull confirmation.
type ConfirmState string

const (
	ConfirmStatePaid    ConfirmState = "paid"
	ConfirmStateFailed  ConfirmState = "failed"
	ConfirmStatePending ConfirmState = "pending"
)

// ConfirmOutcome reports what ConfirmByTxid decided. The order mutation has
// already been applied when it returns; callers only use it to shape the
// HTTP response.
type ConfirmOutcome struct {
	Final       bool         `json:"final"`
	State       ConfirmState `json:"state"`
	CheckFailed bool         `json:"check_failed,omitempty"`
}

// RedirectKind distinguishes the two browser return paths.
type RedirectKind string

const (
	RedirectKindSuccess RedirectKind = "success"
	RedirectKindFail    RedirectKind = "fail"
)

// RedirectOutcome tells the HTTP layer where to send the customer. Redirects
// always land on the order-received page; they never expose provider errors.
type RedirectOutcome struct {
	Location string
}
