package utils

import (
	"reflect"
	"testing"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	if v, err := ParseFlag("true"); err != nil || !v {
		t.Fatalf("true: got %v, %v", v, err)
	}
	if v, err := ParseFlag("false"); err != nil || v {
		t.Fatalf("false: got %v, %v", v, err)
	}
	for _, s := range []string{"", "1", "0", "yes", "TRUE", " true"} {
		if _, err := ParseFlag(s); err != ErrNotBool {
			t.Fatalf("ParseFlag(%q) err = %v; want ErrNotBool", s, err)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	cases := map[string][]string{
		"":                nil,
		"  ":              nil,
		",,":              nil,
		"name":            {"name"},
		" name, slug ,, ": {"name", "slug"},
	}
	for in, want := range cases {
		if got := SplitCSV(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("SplitCSV(%q) = %#v; want %#v", in, got, want)
		}
	}
}
