package records

import (
	"reflect"
	"strings"
	"testing"
)

func TestMissing(t *testing.T) {
	f := NewFrame("a", "b")
	got := f.Missing("a", "x", "b", "y")
	want := []string{"x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Missing: got %v want %v", got, want)
	}
	if f.Missing("a", "b") != nil {
		t.Fatalf("expected nil for fully present columns")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := NewFrame("a")
	f.Append(Record{"a": "1"})
	c := f.Clone()
	c.Rows[0]["a"] = "2"
	c.Columns[0] = "z"
	if f.Rows[0]["a"] != "1" || f.Columns[0] != "a" {
		t.Fatalf("clone mutated original: %#v", f)
	}
}

func TestRenameColumnsCollapsesDuplicates(t *testing.T) {
	f := NewFrame("A ", "a")
	f.Append(Record{"A ": "x", "a": "y"})
	got := f.RenameColumns(func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
	if !reflect.DeepEqual(got.Columns, []string{"a"}) {
		t.Fatalf("columns: got %v", got.Columns)
	}
	// Map iteration makes the surviving value either "x" or "y"; the column
	// set is what must be stable.
	if _, ok := got.Rows[0]["a"]; !ok {
		t.Fatalf("renamed key missing: %#v", got.Rows[0])
	}
}

func TestSelectSkipsAbsent(t *testing.T) {
	f := NewFrame("a", "b")
	f.Append(Record{"a": 1, "b": 2})
	got := f.Select("b", "nope")
	if !reflect.DeepEqual(got.Columns, []string{"b"}) {
		t.Fatalf("columns: got %v", got.Columns)
	}
	if !reflect.DeepEqual(got.Rows[0], Record{"b": 2}) {
		t.Fatalf("row: got %#v", got.Rows[0])
	}
}

func TestKey(t *testing.T) {
	r := Record{"a": "x", "b": nil, "c": 3}
	if got := Key(r, []string{"a", "b", "c"}); got != "x\x1f\x1f3" {
		t.Fatalf("key: got %q", got)
	}
	// Adjacent fields must not alias.
	r1 := Record{"a": "xy", "b": "z"}
	r2 := Record{"a": "x", "b": "yz"}
	if Key(r1, []string{"a", "b"}) == Key(r2, []string{"a", "b"}) {
		t.Fatalf("composite keys alias")
	}
}
