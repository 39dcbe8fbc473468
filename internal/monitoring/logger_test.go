package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	logf := Prefixed("ptz")

	// the prefixed logger follows later SetLogger calls
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })
	logf("site %d connected", 7)

	if want := "ptz: site 7 connected"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message: %s", "value")
}
