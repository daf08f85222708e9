package lifecycle

type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusInitialized   Status = "INITIALIZED"
	StatusFunded        Status = "FUNDED"
	StatusClosed        Status = "CLOSED"
	StatusCancelled     Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// statusChangeMap maps the current status of a settlement to the statuses it
// can transition to. Claims-open is derived from the clock, not stored.
var statusChangeMap = map[Status][]Status{
	StatusUninitialized: {
		StatusInitialized,
	},
	StatusInitialized: {
		StatusFunded,
		StatusClosed,
		StatusCancelled,
	},
	StatusFunded: {
		StatusFunded,
		StatusClosed,
		StatusCancelled,
	},
	StatusClosed:    {},
	StatusCancelled: {},
}

func IsQualifiedStatusChange(currentStatus, newStatus Status) bool {
	qualifiedStatuses, ok := statusChangeMap[currentStatus]
	if !ok {
		return false
	}
	for _, status := range qualifiedStatuses {
		if status == newStatus {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}
