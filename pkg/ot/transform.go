package ot

import "fmt"

// Transform resolves two operations that were produced concurrently against
// the same base string. It returns a pair (a', b') such that
//
//	b'.Apply(a.Apply(s)) == a'.Apply(b.Apply(s))
//
// for every s of matching length, where a is the receiver and b the argument.
//
// When both sides insert at the same position, the receiver's insert is
// ordered first. The server calls this with the incoming client operation as
// the receiver and the history entry as the argument, so concurrent inserts
// at one index resolve the same way on every replica.
func (a *Operation) Transform(b *Operation) (aPrime, bPrime *Operation, err error) {
	if a.baseLen != b.baseLen {
		return nil, nil, fmt.Errorf("transform: base lengths %d and %d differ: %w",
			a.baseLen, b.baseLen, ErrLengthMismatch)
	}

	aOut, bOut := New(), New()
	var cur cursorPair
	cur.init(a.ops, b.ops)

	for {
		if cur.a == nil && cur.b == nil {
			return aOut, bOut, nil
		}
		// Inserts consume no base text, so they are emitted eagerly. Checking
		// the left side first is the tie break for same-position inserts.
		if cur.a != nil && cur.a.kind == OpInsert {
			aOut.insertRunes(cur.a.text)
			bOut.Retain(len(cur.a.text))
			cur.nextA()
			continue
		}
		if cur.b != nil && cur.b.kind == OpInsert {
			aOut.Retain(len(cur.b.text))
			bOut.insertRunes(cur.b.text)
			cur.nextB()
			continue
		}
		if cur.a == nil || cur.b == nil {
			return nil, nil, fmt.Errorf("transform: operations are not aligned: %w", ErrLengthMismatch)
		}

		switch {
		case cur.a.kind == OpRetain && cur.b.kind == OpRetain:
			n := min(cur.a.n, cur.b.n)
			aOut.Retain(n)
			bOut.Retain(n)
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpDelete && cur.b.kind == OpDelete:
			// Both sides removed the same text; neither needs to repeat it.
			n := min(cur.a.n, cur.b.n)
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpDelete && cur.b.kind == OpRetain:
			n := min(cur.a.n, cur.b.n)
			aOut.Delete(n)
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpRetain && cur.b.kind == OpDelete:
			n := min(cur.a.n, cur.b.n)
			bOut.Delete(n)
			cur.consumeA(n)
			cur.consumeB(n)
		}
	}
}

// TransformIndex re-maps a cursor or selection endpoint across the operation.
// Insertions at or before the position shift it right by the inserted length;
// deletions shift it left, clamped at the deletion start when the deleted
// span covers the position.
func (o *Operation) TransformIndex(position uint32) uint32 {
	index := int(position)
	newIndex := index
	for _, op := range o.ops {
		switch op.kind {
		case OpRetain:
			index -= op.n
		case OpInsert:
			newIndex += len(op.text)
		case OpDelete:
			newIndex -= min(index, op.n)
			index -= op.n
		}
		if index < 0 {
			break
		}
	}
	return uint32(newIndex)
}
