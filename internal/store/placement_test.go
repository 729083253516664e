package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPlacementWireShape(t *testing.T) {
	placement := Placement{
		{ID: "c1", Replies: []Reply{{ID: "r1"}, {ID: "r2"}}},
		{ID: "c2"},
	}
	data, err := json.Marshal(placement)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[["c1",["r1","r2"]],["c2",[]]]`
	if string(data) != want {
		t.Fatalf("Marshal() = %s, want %s", data, want)
	}

	empty, err := json.Marshal(Placement(nil))
	if err != nil {
		t.Fatalf("Marshal(nil) error = %v", err)
	}
	if string(empty) != "[]" {
		t.Fatalf("Marshal(nil) = %s, want []", empty)
	}
}

func TestPlacementDecodeValidates(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantLen int
	}{
		{name: "empty list", input: `[]`, wantLen: 0},
		{name: "null column", input: `null`, wantLen: 0},
		{name: "pairs", input: `[["a",[]],["b",["c"]]]`, wantLen: 2},
		{name: "bare string entry", input: `["a"]`, wantErr: true},
		{name: "triple", input: `[["a",[],"x"]]`, wantErr: true},
		{name: "numeric id", input: `[[1,[]]]`, wantErr: true},
		{name: "nested reply object", input: `[["a",[["b",[]]]]]`, wantErr: true},
		{name: "empty id", input: `[["",[]]]`, wantErr: true},
		{name: "null entry", input: `[null]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var placement Placement
			err := placement.Scan([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPlacement) {
					t.Fatalf("Scan(%s) error = %v, want ErrMalformedPlacement", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Scan(%s) error = %v", tt.input, err)
			}
			if len(placement) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(placement), tt.wantLen)
			}
		})
	}
}

func TestPlacementCloneDoesNotAlias(t *testing.T) {
	original := Placement{{ID: "c1", Replies: []Reply{{ID: "r1"}}}}
	clone := original.Clone()
	clone[0].Replies = append(clone[0].Replies, Reply{ID: "r2"})
	clone = append(clone, TopLevel{ID: "c2"})

	if len(original) != 1 || len(original[0].Replies) != 1 {
		t.Fatalf("original mutated: %+v", original)
	}
	if original.Find("c1") != 0 || original.Find("c2") != -1 {
		t.Fatal("Find() returned unexpected index")
	}
}
