package models

import "testing"

func TestStatusPredicates(t *testing.T) {
	cases := []struct {
		s        Status
		valid    bool
		terminal bool
		active   bool
	}{
		{StatusNotAccepted, true, false, true},
		{StatusAccepted, true, false, true},
		{StatusInProgress, true, false, true},
		{StatusDone, true, true, false},
		{StatusExpired, true, true, false},
		{StatusCanceledByPassenger, true, true, false},
		{StatusCanceledByDriver, true, true, false},
		{Status(7), false, false, false},
		{Status(-9), false, false, false},
	}
	for _, c := range cases {
		if c.s.Valid() != c.valid {
			t.Errorf("%d.Valid() = %v", c.s, c.s.Valid())
		}
		if c.s.Terminal() != c.terminal {
			t.Errorf("%d.Terminal() = %v", c.s, c.s.Terminal())
		}
		if c.s.Active() != c.active {
			t.Errorf("%d.Active() = %v", c.s, c.s.Active())
		}
	}
}

func TestStatusString(t *testing.T) {
	if StatusCanceledByDriver.String() != "canceled_by_driver" {
		t.Fatalf("got %q", StatusCanceledByDriver.String())
	}
	if Status(42).String() != "unknown" {
		t.Fatalf("got %q", Status(42).String())
	}
}
