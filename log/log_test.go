// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestHelperLevels(t *testing.T) {
	var buf bytes.Buffer
	h := NewHelper(NewStdLogger(&buf))

	h.Debugf("decoded %d strings", 3)
	h.Warnf("odd %s", "offset")
	h.Errorf("bad %s", "magic")

	out := buf.String()
	for _, want := range []string{
		"DEBUG msg=decoded 3 strings",
		"WARN msg=odd offset",
		"ERROR msg=bad magic",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output assertion failed, missing %q in %q", want, out)
		}
	}
}

func TestFilterLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewHelper(NewFilter(NewStdLogger(&buf), FilterLevel(LevelError)))

	h.Debug("dropped")
	h.Warn("dropped too")
	h.Error("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("filter assertion failed, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("filter assertion failed, missing error record in %q", out)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewStdLogger(&buf), "module", "dex")
	_ = l.Log(LevelInfo, "msg", "hello")

	if !strings.Contains(buf.String(), "module=dex") {
		t.Errorf("with assertion failed, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in  string
		out Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"fatal", LevelFatal},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.out {
			t.Errorf("ParseLevel(%q) assertion failed, got %v, want %v",
				tt.in, got, tt.out)
		}
	}
}
