package scheduler

import "testing"

func TestParseDeviceIndex(t *testing.T) {
	cases := []struct {
		in      string
		wantIdx int
		wantOK  bool
	}{
		{"cuda:0", 0, true},
		{"cuda:3", 3, true},
		{"cpu", 0, false},
		{"cuda:", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		idx, ok := parseDeviceIndex(c.in)
		if ok != c.wantOK {
			t.Errorf("parseDeviceIndex(%q) ok = %v, want %v", c.in, ok, c.wantOK)
			continue
		}
		if ok && idx != c.wantIdx {
			t.Errorf("parseDeviceIndex(%q) = %d, want %d", c.in, idx, c.wantIdx)
		}
	}
}

func TestDeviceName(t *testing.T) {
	if got := deviceName(2); got != "cuda:2" {
		t.Errorf("deviceName(2) = %q, want %q", got, "cuda:2")
	}
}
