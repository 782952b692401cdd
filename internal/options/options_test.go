package options

import (
	"errors"
	"sort"
	"testing"
)

func TestTableIsSorted(t *testing.T) {
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("option table is not sorted: %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			t.Fatalf("duplicate option %q", names[i])
		}
	}
}

func TestGetWalksParents(t *testing.T) {
	global := NewGlobal(ScopeWindow)
	window := New(global, ScopeWindow)
	pane := New(window, ScopePane)

	if got := pane.GetString("window-status-separator"); got != " " {
		t.Fatalf("inherited separator = %q, want %q", got, " ")
	}
	if err := window.Set("window-status-separator", "|"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := pane.GetString("window-status-separator"); got != "|" {
		t.Fatalf("separator after window override = %q, want %q", got, "|")
	}
	if err := window.Unset("window-status-separator"); err != nil {
		t.Fatalf("Unset() error = %v", err)
	}
	if got := pane.GetString("window-status-separator"); got != " " {
		t.Fatalf("separator after unset = %q, want %q", got, " ")
	}
}

func TestSetTypedValues(t *testing.T) {
	o := NewGlobal(ScopeSession | ScopeWindow)

	tests := []struct {
		name       string
		value      string
		numeric    bool
		want       string
		wantErr    error
		renderName string
	}{
		{name: "base-index", value: "1", want: "1"},
		{name: "base-index", value: "x", wantErr: ErrInvalidValue},
		{name: "mouse", value: "on", want: "on"},
		{name: "mouse", value: "on", numeric: true, want: "1"},
		{name: "status-position", value: "top", numeric: true, want: "0"},
		{name: "status-position", value: "top", want: "top"},
		{name: "status-position", value: "middle", wantErr: ErrInvalidValue},
		{name: "@custom", value: "hello", want: "hello"},
		{name: "no-such-option", value: "1", wantErr: ErrUnknownOption},
	}
	for _, tt := range tests {
		t.Run(tt.name+"="+tt.value, func(t *testing.T) {
			err := o.Set(tt.name, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Set() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			e, ok := o.Get(tt.name)
			if !ok {
				t.Fatalf("Get(%q) not found", tt.name)
			}
			if got := e.String(-1, tt.numeric); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlagToggleWithEmptyValue(t *testing.T) {
	o := NewGlobal(ScopeSession)
	if err := o.Set("mouse", ""); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if o.GetNumber("mouse") != 1 {
		t.Fatal("mouse should toggle on")
	}
	if err := o.Set("mouse", ""); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if o.GetNumber("mouse") != 0 {
		t.Fatal("mouse should toggle off")
	}
}

func TestArrayOptions(t *testing.T) {
	o := NewGlobal(ScopeSession)
	e, idx, ok := ParseGet(o, "update-environment[1]")
	if !ok {
		t.Fatal("ParseGet(update-environment[1]) not found")
	}
	if got := e.String(idx, true); got != "KRB5CCNAME" {
		t.Fatalf("element 1 = %q, want KRB5CCNAME", got)
	}

	if err := o.Set("update-environment[1]", "TERM"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	e, idx, _ = ParseGet(o, "update-environment[1]")
	if got := e.String(idx, true); got != "TERM" {
		t.Fatalf("element 1 after set = %q, want TERM", got)
	}
	if err := o.Set("base-index[0]", "1"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("indexing a scalar option error = %v, want ErrInvalidValue", err)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		base    string
		idx     int
		hasIdx  bool
		wantErr bool
	}{
		{in: "status", base: "status", idx: -1},
		{in: "status-format[3]", base: "status-format", idx: 3, hasIdx: true},
		{in: "x[", wantErr: true},
		{in: "x[-1]", wantErr: true},
		{in: "[1]", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		base, idx, hasIdx, err := ParseName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseName(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || base != tt.base || idx != tt.idx || hasIdx != tt.hasIdx {
			t.Errorf("ParseName(%q) = (%q,%d,%v,%v), want (%q,%d,%v)", tt.in, base, idx, hasIdx, err, tt.base, tt.idx, tt.hasIdx)
		}
	}
}
