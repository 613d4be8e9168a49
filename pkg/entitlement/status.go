package entitlement

// Status is the lifecycle state of a grant.
type Status string

const (
	StatusActive          Status = "active"
	StatusRefundRequested Status = "refund_requested"
	StatusPastDue         Status = "past_due"
	StatusRefunded        Status = "refunded"
	StatusCanceled        Status = "canceled"
	StatusSuperseded      Status = "superseded"
	StatusExpired         Status = "expired"
)

// GrantsAccess reports whether a grant in this status contributes to the
// effective tier. A requested refund keeps access until it is executed.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusRefundRequested
}

// Terminal reports whether the status only appears on history entries.
func (s Status) Terminal() bool {
	switch s {
	case StatusRefunded, StatusCanceled, StatusSuperseded, StatusExpired:
		return true
	}
	return false
}

type transition struct {
	from, to Status
}

var validTransitions = map[transition]bool{
	{StatusActive, StatusRefundRequested}:     true,
	{StatusActive, StatusPastDue}:             true,
	{StatusPastDue, StatusActive}:             true,
	{StatusActive, StatusCanceled}:            true,
	{StatusRefundRequested, StatusCanceled}:   true,
	{StatusPastDue, StatusCanceled}:           true,
	{StatusRefundRequested, StatusRefunded}:   true,
	{StatusActive, StatusSuperseded}:          true,
	{StatusRefundRequested, StatusSuperseded}: true,
	{StatusPastDue, StatusSuperseded}:         true,
	{StatusActive, StatusExpired}:             true,
	{StatusPastDue, StatusExpired}:            true,
}

// CanTransition reports whether a grant may move from one status to another.
func CanTransition(from, to Status) bool {
	return validTransitions[transition{from, to}]
}
