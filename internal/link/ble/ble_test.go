// internal/link/ble/ble_test.go
package ble

import (
	"testing"

	"github.com/tamzrod/imu-bridge/internal/device"
)

func TestMatchName(t *testing.T) {
	cases := []struct {
		name, prefix string
		want         bool
	}{
		{"WT901BLE68", "WT", true},
		{"WT901BLE68", "", true},
		{"Headphones", "WT", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := matchName(c.name, c.prefix); got != c.want {
			t.Fatalf("matchName(%q, %q): expected %v, got %v", c.name, c.prefix, c.want, got)
		}
	}
}

func TestUUIDs(t *testing.T) {
	if serviceUUID.String() != "0000ffe5-0000-1000-8000-00805f9a34fb" {
		t.Fatalf("unexpected service uuid %s", serviceUUID.String())
	}
	if notifyUUID == writeUUID {
		t.Fatalf("notify and write characteristics must differ")
	}
}

func TestLink_RequiresDiscovery(t *testing.T) {
	d := NewDriver(Config{NamePrefix: "WT"}, nil)
	if _, err := d.Link(device.Candidate{Address: "AA:BB:CC:DD:EE:FF"}); err == nil {
		t.Fatalf("expected error for undiscovered address")
	}
}

func TestSendWhenClosed(t *testing.T) {
	l := &Link{}
	if err := l.SendRegisterFrame([]byte{0xFF}); err != device.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
