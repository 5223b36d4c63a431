package ot

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		build func(o *Operation)
		input string
		want  string
	}{
		{
			name:  "empty operation on empty string",
			build: func(o *Operation) {},
			input: "",
			want:  "",
		},
		{
			name:  "insert into empty string",
			build: func(o *Operation) { o.Insert("hello") },
			input: "",
			want:  "hello",
		},
		{
			name: "replace one character",
			build: func(o *Operation) {
				o.Retain(2)
				o.Delete(1)
				o.Insert("n")
				o.Retain(2)
			},
			input: "hello",
			want:  "henlo",
		},
		{
			name: "delete everything",
			build: func(o *Operation) { o.Delete(5) },
			input: "hello",
			want:  "",
		},
		{
			name: "append",
			build: func(o *Operation) {
				o.Retain(5)
				o.Insert(" world")
			},
			input: "hello",
			want:  "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := New()
			tt.build(op)
			got, err := op.Apply(tt.input)
			if err != nil {
				t.Fatalf("Apply(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestApplyLengthMismatch(t *testing.T) {
	op := New()
	op.Retain(3)

	if _, err := op.Apply("ab"); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Apply with wrong base length: got %v, want ErrLengthMismatch", err)
	}
}

func TestUnicodeLengthsAreCodePoints(t *testing.T) {
	// The family emoji is four people joined by three zero-width joiners,
	// seven code points in total.
	family := "\U0001F468\u200D\U0001F468\u200D\U0001F466\u200D\U0001F466"
	if n := len([]rune(family)); n != 7 {
		t.Fatalf("expected family emoji to be 7 code points, got %d", n)
	}

	op := New()
	op.Insert(family)
	if op.TargetLen() != 7 {
		t.Errorf("TargetLen = %d, want 7", op.TargetLen())
	}

	// Retain counts must also be in code points, not bytes.
	op2 := New()
	op2.Retain(7)
	op2.Insert("🍕")
	got, err := op2.Apply(family)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != family+"🍕" {
		t.Errorf("Apply = %q, want %q", got, family+"🍕")
	}
}

func TestCanonicalForm(t *testing.T) {
	t.Run("adjacent retains merge", func(t *testing.T) {
		op := New()
		op.Retain(2)
		op.Retain(3)
		if len(op.Ops()) != 1 || op.Ops()[0].Len() != 5 {
			t.Errorf("expected single retain of 5, got %+v", op.Ops())
		}
	})

	t.Run("adjacent inserts merge", func(t *testing.T) {
		op := New()
		op.Insert("ab")
		op.Insert("cd")
		if len(op.Ops()) != 1 || op.Ops()[0].Text() != "abcd" {
			t.Errorf("expected single insert of abcd, got %+v", op.Ops())
		}
	})

	t.Run("adjacent deletes merge", func(t *testing.T) {
		op := New()
		op.Delete(1)
		op.Delete(2)
		if len(op.Ops()) != 1 || op.Ops()[0].Len() != 3 {
			t.Errorf("expected single delete of 3, got %+v", op.Ops())
		}
	})

	t.Run("insert after delete is reordered", func(t *testing.T) {
		op := New()
		op.Delete(2)
		op.Insert("x")
		ops := op.Ops()
		if len(ops) != 2 || ops[0].Kind() != OpInsert || ops[1].Kind() != OpDelete {
			t.Errorf("expected [insert, delete], got %+v", ops)
		}
	})

	t.Run("insert delete insert merges across the delete", func(t *testing.T) {
		op := New()
		op.Insert("a")
		op.Delete(1)
		op.Insert("b")
		ops := op.Ops()
		if len(ops) != 2 || ops[0].Text() != "ab" || ops[1].Kind() != OpDelete {
			t.Errorf("expected [insert ab, delete 1], got %+v", ops)
		}
	})

	t.Run("zero counts are ignored", func(t *testing.T) {
		op := New()
		op.Retain(0)
		op.Delete(0)
		op.Insert("")
		if len(op.Ops()) != 0 {
			t.Errorf("expected empty operation, got %+v", op.Ops())
		}
	})
}

func TestIsNoop(t *testing.T) {
	op := New()
	if !op.IsNoop() {
		t.Error("empty operation should be a noop")
	}

	op.Retain(5)
	if !op.IsNoop() {
		t.Error("pure retain should be a noop")
	}

	op.Insert("x")
	if op.IsNoop() {
		t.Error("operation with an insert should not be a noop")
	}
}

func TestInvert(t *testing.T) {
	tests := []struct {
		name  string
		build func(o *Operation)
		input string
	}{
		{
			name: "invert insert",
			build: func(o *Operation) {
				o.Retain(3)
				o.Insert("def")
			},
			input: "abc",
		},
		{
			name: "invert delete restores text",
			build: func(o *Operation) {
				o.Delete(1)
				o.Retain(2)
			},
			input: "abc",
		},
		{
			name: "invert mixed edit",
			build: func(o *Operation) {
				o.Retain(2)
				o.Delete(1)
				o.Insert("n")
				o.Retain(2)
			},
			input: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := New()
			tt.build(op)

			applied, err := op.Apply(tt.input)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			restored, err := op.Invert(tt.input).Apply(applied)
			if err != nil {
				t.Fatalf("inverse Apply failed: %v", err)
			}
			if restored != tt.input {
				t.Errorf("invert round trip = %q, want %q", restored, tt.input)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	op := New()
	op.Retain(2)
	op.Insert("n")
	op.Delete(1)
	op.Retain(2)

	data, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `[2,"n",-1,2]` {
		t.Errorf("Marshal = %s, want [2,\"n\",-1,2]", data)
	}
}

func TestUnmarshalJSON(t *testing.T) {
	t.Run("decodes and canonicalizes", func(t *testing.T) {
		// The delete arrives before the insert; decoding reorders them.
		var op Operation
		if err := json.Unmarshal([]byte(`[2,-1,"n",2]`), &op); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if op.BaseLen() != 5 || op.TargetLen() != 5 {
			t.Errorf("lengths = (%d, %d), want (5, 5)", op.BaseLen(), op.TargetLen())
		}
		data, err := json.Marshal(&op)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(data) != `[2,"n",-1,2]` {
			t.Errorf("canonical form = %s, want [2,\"n\",-1,2]", data)
		}
	})

	t.Run("rejects invalid elements", func(t *testing.T) {
		for _, input := range []string{`[0]`, `[1.5]`, `[true]`, `[null]`, `[[1]]`, `{"a":1}`} {
			var op Operation
			if err := json.Unmarshal([]byte(input), &op); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", input)
			}
		}
	})

	t.Run("round trips unicode inserts", func(t *testing.T) {
		var op Operation
		if err := json.Unmarshal([]byte(`["🍕🍕",3]`), &op); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if op.TargetLen() != 5 {
			t.Errorf("TargetLen = %d, want 5", op.TargetLen())
		}
	})
}
