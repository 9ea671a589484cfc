package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get() returned empty version")
	}
	if strings.ContainsAny(v, " \n\t") {
		t.Errorf("Get() = %q, want no whitespace", v)
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "conductor version "+Get()) {
		t.Errorf("String() = %q, want prefix with version %q", s, Get())
	}
	if !strings.Contains(s, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("String() = %q, want platform", s)
	}
}
