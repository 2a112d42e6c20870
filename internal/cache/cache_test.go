package cache

import (
	"testing"
	"time"
)

func TestSetGetHas(t *testing.T) {
	c := NewMap()
	if c.Has("domain:example.com.") {
		t.Fatalf("Has() = true on empty cache")
	}

	c.Set("domain:example.com.", []string{"mx.example.com."}, 0)
	if !c.Has("domain:example.com.") {
		t.Fatalf("Has() = false right after Set")
	}

	v, ok := c.Get("domain:example.com.")
	if !ok {
		t.Fatalf("Get() ok = false")
	}
	hosts, ok := v.([]string)
	if !ok || len(hosts) != 1 || hosts[0] != "mx.example.com." {
		t.Errorf("Get() = %v, want [mx.example.com.]", v)
	}
}

func TestExpiry(t *testing.T) {
	c := NewMap()
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if c.Has("k") {
		t.Errorf("Has() = true after expiry")
	}
	if _, ok := c.Get("k"); ok {
		t.Errorf("Get() ok = true after expiry")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewMap()
	c.Set("k", false, 0)
	time.Sleep(2 * time.Millisecond)
	if !c.Has("k") {
		t.Errorf("Has() = false for zero-TTL entry")
	}
}
