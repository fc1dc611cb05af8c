package env

import (
	"testing"
	"time"
)

func TestHelpers_Defaults(t *testing.T) {
	t.Setenv("CHITCHAT_TEST_UNSET", "")

	if got := String("CHITCHAT_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("String()=%q want def", got)
	}
	if got := Bool("CHITCHAT_TEST_UNSET", true); !got {
		t.Fatalf("Bool()=%v want true", got)
	}
	if got := Int("CHITCHAT_TEST_UNSET", 7); got != 7 {
		t.Fatalf("Int()=%d want 7", got)
	}
	if got := Duration("CHITCHAT_TEST_UNSET", time.Second); got != time.Second {
		t.Fatalf("Duration()=%v want 1s", got)
	}
	if got := CSV("CHITCHAT_TEST_UNSET", "a, b,,c"); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("CSV()=%v want [a b c]", got)
	}
}

func TestHelpers_MalformedFallsBack(t *testing.T) {
	t.Setenv("CHITCHAT_TEST_BOOL", "maybe")
	t.Setenv("CHITCHAT_TEST_INT", "-3")
	t.Setenv("CHITCHAT_TEST_INT32", "99999999999")
	t.Setenv("CHITCHAT_TEST_DUR", "0s")

	if got := Bool("CHITCHAT_TEST_BOOL", false); got {
		t.Fatalf("Bool()=%v want false", got)
	}
	if got := Int("CHITCHAT_TEST_INT", 5); got != 5 {
		t.Fatalf("Int()=%d want 5", got)
	}
	if got := Int32("CHITCHAT_TEST_INT32", 2); got != 2 {
		t.Fatalf("Int32()=%d want 2", got)
	}
	if got := Duration("CHITCHAT_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("Duration()=%v want 1m", got)
	}
}

func TestHelpers_Parsed(t *testing.T) {
	t.Setenv("CHITCHAT_TEST_STR", "  value ")
	t.Setenv("CHITCHAT_TEST_INT64", "1048576")
	t.Setenv("CHITCHAT_TEST_CSV", "http://a, http://b")

	if got := String("CHITCHAT_TEST_STR", ""); got != "value" {
		t.Fatalf("String()=%q want value", got)
	}
	if got := Int64("CHITCHAT_TEST_INT64", 1); got != 1<<20 {
		t.Fatalf("Int64()=%d want %d", got, 1<<20)
	}
	if got := CSV("CHITCHAT_TEST_CSV", ""); len(got) != 2 || got[1] != "http://b" {
		t.Fatalf("CSV()=%v", got)
	}
}
