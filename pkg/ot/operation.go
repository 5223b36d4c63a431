// Package ot implements operational transformation over plain text.
//
// An Operation is a sequence of Retain/Insert/Delete primitives applied
// left-to-right against a base string. All lengths and positions are counted
// in Unicode code points, never bytes or UTF-16 units, so a single emoji or a
// multi-scalar grapheme contributes one count per scalar value.
//
// Operations are kept in canonical form at all times: adjacent primitives of
// the same kind are merged, and an Insert directly after a Delete is reordered
// so the Insert comes first. Two operations with the same effect therefore
// compare equal structurally.
package ot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrLengthMismatch reports an operation whose primitives do not line up with
// the length of the string (or operation) it is being combined with.
var ErrLengthMismatch = errors.New("operation length mismatch")

// OpKind identifies a primitive within an operation.
type OpKind int

const (
	// OpRetain advances over code points without changing them.
	OpRetain OpKind = iota
	// OpInsert inserts text at the current position.
	OpInsert
	// OpDelete removes code points at the current position.
	OpDelete
)

// Op is a single primitive. Exactly one interpretation applies depending on
// Kind: a retain or delete count, or an insert payload.
type Op struct {
	kind OpKind
	n    int    // retain or delete count, in code points
	text []rune // insert payload
}

// Kind returns the primitive kind.
func (o Op) Kind() OpKind { return o.kind }

// Len returns the code-point length the primitive covers: the retain or
// delete count, or the length of the inserted text.
func (o Op) Len() int {
	if o.kind == OpInsert {
		return len(o.text)
	}
	return o.n
}

// Text returns the insert payload. It is empty for retains and deletes.
func (o Op) Text() string { return string(o.text) }

// Operation is an ordered sequence of primitives transforming a string of
// BaseLen code points into one of TargetLen code points.
//
// The zero value is the empty operation over the empty string.
type Operation struct {
	ops       []Op
	baseLen   int
	targetLen int
}

// New returns an empty operation.
func New() *Operation {
	return &Operation{}
}

// BaseLen returns the code-point length of strings this operation applies to.
func (o *Operation) BaseLen() int { return o.baseLen }

// TargetLen returns the code-point length of strings this operation produces.
func (o *Operation) TargetLen() int { return o.targetLen }

// Ops returns the primitives in order. The returned slice is shared; callers
// must not modify it.
func (o *Operation) Ops() []Op { return o.ops }

// IsNoop reports whether applying the operation leaves every input unchanged.
func (o *Operation) IsNoop() bool {
	switch len(o.ops) {
	case 0:
		return true
	case 1:
		return o.ops[0].kind == OpRetain
	default:
		return false
	}
}

// Retain appends a retain of n code points. Zero and negative counts are
// ignored.
func (o *Operation) Retain(n int) {
	if n <= 0 {
		return
	}
	o.baseLen += n
	o.targetLen += n
	if last := o.lastOp(); last != nil && last.kind == OpRetain {
		last.n += n
		return
	}
	o.ops = append(o.ops, Op{kind: OpRetain, n: n})
}

// Insert appends an insertion of s. Empty strings are ignored.
func (o *Operation) Insert(s string) {
	o.insertRunes([]rune(s))
}

// insertRunes appends an insertion, keeping canonical form: inserts merge
// with a preceding insert and are ordered before a trailing delete.
func (o *Operation) insertRunes(text []rune) {
	if len(text) == 0 {
		return
	}
	o.targetLen += len(text)
	n := len(o.ops)
	if n > 0 && o.ops[n-1].kind == OpInsert {
		o.ops[n-1].text = append(o.ops[n-1].text, text...)
		return
	}
	if n > 0 && o.ops[n-1].kind == OpDelete {
		// Keep the insert ahead of the delete so equivalent operations have
		// identical representations.
		if n > 1 && o.ops[n-2].kind == OpInsert {
			o.ops[n-2].text = append(o.ops[n-2].text, text...)
			return
		}
		o.ops = append(o.ops, Op{})
		o.ops[n] = o.ops[n-1]
		o.ops[n-1] = Op{kind: OpInsert, text: append([]rune(nil), text...)}
		return
	}
	o.ops = append(o.ops, Op{kind: OpInsert, text: append([]rune(nil), text...)})
}

// Delete appends a deletion of n code points. Zero and negative counts are
// ignored.
func (o *Operation) Delete(n int) {
	if n <= 0 {
		return
	}
	o.baseLen += n
	if last := o.lastOp(); last != nil && last.kind == OpDelete {
		last.n += n
		return
	}
	o.ops = append(o.ops, Op{kind: OpDelete, n: n})
}

func (o *Operation) lastOp() *Op {
	if len(o.ops) == 0 {
		return nil
	}
	return &o.ops[len(o.ops)-1]
}

// Apply runs the operation against s and returns the resulting string.
// It fails if the code-point length of s differs from BaseLen.
func (o *Operation) Apply(s string) (string, error) {
	runes := []rune(s)
	if len(runes) != o.baseLen {
		return "", fmt.Errorf("apply: base length %d does not match input length %d: %w",
			o.baseLen, len(runes), ErrLengthMismatch)
	}
	out := make([]rune, 0, o.targetLen)
	pos := 0
	for _, op := range o.ops {
		switch op.kind {
		case OpRetain:
			out = append(out, runes[pos:pos+op.n]...)
			pos += op.n
		case OpInsert:
			out = append(out, op.text...)
		case OpDelete:
			pos += op.n
		}
	}
	return string(out), nil
}

// Invert returns the operation that undoes o when applied to the output of
// o.Apply(s). Deletions become insertions of the deleted text.
func (o *Operation) Invert(s string) *Operation {
	runes := []rune(s)
	inv := New()
	pos := 0
	for _, op := range o.ops {
		switch op.kind {
		case OpRetain:
			inv.Retain(op.n)
			pos += op.n
		case OpInsert:
			inv.Delete(len(op.text))
		case OpDelete:
			inv.insertRunes(runes[pos : pos+op.n])
			pos += op.n
		}
	}
	return inv
}

// MarshalJSON encodes the operation in its wire form: a JSON array holding a
// positive integer for each retain, a negative integer for each delete, and a
// string for each insert.
func (o *Operation) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(o.ops))
	for _, op := range o.ops {
		switch op.kind {
		case OpRetain:
			items = append(items, op.n)
		case OpInsert:
			items = append(items, string(op.text))
		case OpDelete:
			items = append(items, -op.n)
		}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes the wire form. Zero counts and non-integer numbers
// are rejected.
func (o *Operation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return err
	}
	*o = Operation{}
	for _, item := range items {
		switch v := item.(type) {
		case json.Number:
			n, err := strconv.ParseInt(v.String(), 10, 32)
			if err != nil {
				return fmt.Errorf("invalid operation element %q", v.String())
			}
			switch {
			case n > 0:
				o.Retain(int(n))
			case n < 0:
				o.Delete(int(-n))
			default:
				return errors.New("operation element must be non-zero")
			}
		case string:
			o.Insert(v)
		default:
			return fmt.Errorf("invalid operation element of type %T", item)
		}
	}
	return nil
}
