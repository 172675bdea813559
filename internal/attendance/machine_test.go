package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		rec  *Record
		want State
	}{
		{name: "nil", rec: nil, want: StateNoRecord},
		{name: "cleared", rec: &Record{}, want: StateNoRecord},
		{name: "checked in", rec: &Record{CheckIn: &now}, want: StateCheckedIn},
		{name: "checked out", rec: &Record{CheckIn: &now, CheckOut: &now}, want: StateCheckedOut},
		{name: "check out only", rec: &Record{CheckOut: &now}, want: StateCheckedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rec))
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		state   State
		event   Event
		want    Action
		wantErr error
	}{
		{StateNoRecord, EventScan, ActionCheckIn, nil},
		{StateCheckedIn, EventScan, ActionCheckOut, nil},
		{StateCheckedOut, EventScan, 0, ErrAlreadyCompleted},
		{StateNoRecord, EventCheckIn, ActionCheckIn, nil},
		{StateCheckedIn, EventCheckIn, 0, ErrAlreadyCheckedIn},
		{StateCheckedOut, EventCheckIn, 0, ErrAlreadyCheckedIn},
		{StateNoRecord, EventCheckOut, 0, ErrNoCheckInRecord},
		{StateCheckedIn, EventCheckOut, ActionCheckOut, nil},
		{StateCheckedOut, EventCheckOut, 0, ErrAlreadyCheckedOut},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			got, err := Next(tt.state, tt.event)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
