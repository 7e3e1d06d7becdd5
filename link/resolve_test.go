package link

import "testing"

func TestChainOrder(t *testing.T) {
	c := Chain{
		HostTable{"f": 0x1000},
		HostTable{"f": 0x2000, "g": 0x3000},
	}

	if addr, ok := c.Resolve("f"); !ok || addr != 0x1000 {
		t.Errorf("f: %#x (%v), wanted the first resolver to win", addr, ok)
	}
	if addr, ok := c.Resolve("g"); !ok || addr != 0x3000 {
		t.Errorf("g: %#x (%v), wanted 0x3000", addr, ok)
	}
	if _, ok := c.Resolve("h"); ok {
		t.Errorf("resolved a name no resolver knows")
	}
}
