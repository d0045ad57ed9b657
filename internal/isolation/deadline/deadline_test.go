package deadline

import (
	"testing"
	"time"

	"isolator/internal/isolation/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestUnboundedNeverExpires(t *testing.T) {
	c := clock.Fake(epoch)
	d := New(c, Unlimited())

	for _, step := range []time.Duration{0, time.Second, time.Hour, 1000 * time.Hour} {
		c.Advance(step)
		if d.Expired() {
			t.Fatalf("unbounded deadline expired after %v", step)
		}
		if _, ok := d.TimeLeft(); ok {
			t.Fatalf("unbounded deadline reported a time left")
		}
		if !d.Status().OK() {
			t.Fatalf("unbounded status not ok")
		}
		if got := d.Status().PollTimeout(); got >= 0 {
			t.Fatalf("PollTimeout() = %v, want negative", got)
		}
	}
	if _, ok := d.Allowed(); ok {
		t.Fatal("unbounded deadline reported an allowed time")
	}
}

func TestBoundedTimeLeft(t *testing.T) {
	c := clock.Fake(epoch)
	d := New(c, Within(4*time.Second))

	cases := []struct {
		advance  time.Duration
		wantLeft time.Duration
		expired  bool
	}{
		{0, 4 * time.Second, false},
		{time.Second, 3 * time.Second, false},
		{2 * time.Second, time.Second, false},
		{time.Second, 0, true},
		{time.Second, -time.Second, true},
	}
	for _, tc := range cases {
		c.Advance(tc.advance)
		left, ok := d.TimeLeft()
		if !ok {
			t.Fatal("bounded deadline returned no time left")
		}
		if left != tc.wantLeft {
			t.Errorf("TimeLeft() = %v, want %v", left, tc.wantLeft)
		}
		if d.Expired() != tc.expired {
			t.Errorf("Expired() = %v at %v left", d.Expired(), left)
		}
		if d.Status().OK() == tc.expired {
			t.Errorf("Status().OK() = %v at %v left", d.Status().OK(), left)
		}
	}
	if allowed, ok := d.Allowed(); !ok || allowed != 4*time.Second {
		t.Errorf("Allowed() = %v, %v", allowed, ok)
	}
}

func TestStatusIsASnapshot(t *testing.T) {
	c := clock.Fake(epoch)
	d := New(c, Within(2*time.Second))

	status := d.Status()
	c.Advance(5 * time.Second)

	if !status.OK() {
		t.Fatal("snapshot changed after clock moved")
	}
	if left, _ := status.TimeLeft(); left != 2*time.Second {
		t.Fatalf("snapshot TimeLeft() = %v", left)
	}
	if d.Status().OK() {
		t.Fatal("fresh status should be expired")
	}
	if got := d.Status().PollTimeout(); got != 0 {
		t.Fatalf("expired PollTimeout() = %v, want 0", got)
	}
}

func TestStatusOK(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{Status{}, true},
		{Status{timeLeft: time.Nanosecond, bounded: true}, true},
		{Status{timeLeft: 0, bounded: true}, false},
		{Status{timeLeft: -time.Second, bounded: true}, false},
	}
	for _, tc := range cases {
		if got := tc.status.OK(); got != tc.want {
			t.Errorf("%v OK() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestWithinClampsNegative(t *testing.T) {
	allowed, ok := Within(-time.Second).Allowed()
	if !ok || allowed != 0 {
		t.Fatalf("Within(-1s) = %v, %v", allowed, ok)
	}
	if Unlimited().String() != "unlimited" {
		t.Fatalf("Unlimited().String() = %q", Unlimited().String())
	}
}
