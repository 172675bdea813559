package attendance

// State is the per-(subject, date) attendance state.
type State int

const (
	StateNoRecord State = iota
	StateCheckedIn
	StateCheckedOut
)

func (s State) String() string {
	switch s {
	case StateCheckedIn:
		return "checked_in"
	case StateCheckedOut:
		return "checked_out"
	}
	return "no_record"
}

// Event is an inbound attendance request.
type Event int

const (
	// EventScan is a QR scan; its meaning depends on the current state.
	EventScan Event = iota
	EventCheckIn
	EventCheckOut
)

// Action is the write a transition performs.
type Action int

const (
	ActionCheckIn Action = iota + 1
	ActionCheckOut
)

func (a Action) String() string {
	if a == ActionCheckOut {
		return "check_out"
	}
	return "check_in"
}

// Classify derives the state from the stored record. A record whose timestamps
// were both cleared by an administrator counts as no record.
func Classify(rec *Record) State {
	switch {
	case rec == nil:
		return StateNoRecord
	case rec.CheckOut != nil:
		return StateCheckedOut
	case rec.CheckIn != nil:
		return StateCheckedIn
	}
	return StateNoRecord
}

// Next returns the action ev triggers in state s, or the rejection.
func Next(s State, ev Event) (Action, error) {
	switch ev {
	case EventScan:
		switch s {
		case StateNoRecord:
			return ActionCheckIn, nil
		case StateCheckedIn:
			return ActionCheckOut, nil
		}
		return 0, ErrAlreadyCompleted
	case EventCheckIn:
		if s == StateNoRecord {
			return ActionCheckIn, nil
		}
		return 0, ErrAlreadyCheckedIn
	case EventCheckOut:
		switch s {
		case StateNoRecord:
			return 0, ErrNoCheckInRecord
		case StateCheckedIn:
			return ActionCheckOut, nil
		}
		return 0, ErrAlreadyCheckedOut
	}
	return 0, ErrAlreadyCompleted
}
