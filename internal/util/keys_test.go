package util

import "testing"

func TestKeys(t *testing.T) {
	if got := EntryKey("php", "Foo"); got != "entry:php:Foo" {
		t.Fatalf("EntryKey: %q", got)
	}
	if got := TagKey("group_a"); got != "tag:group_a" {
		t.Fatalf("TagKey: %q", got)
	}
	if TagKey("flush") == FlushKey {
		t.Fatalf("a tag must not collide with the flush key")
	}
	r := Redact("entry:php:Foo")
	if len(r) != 16 || r != Redact("entry:php:Foo") || r == Redact("entry:php:Bar") {
		t.Fatalf("Redact not stable/short: %q", r)
	}
}
