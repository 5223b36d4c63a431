package ot

import "fmt"

// Compose merges o with next into a single operation c such that
// c.Apply(s) == next.Apply(o.Apply(s)) for every s of matching length.
// It fails unless o.TargetLen() == next.BaseLen().
func (o *Operation) Compose(next *Operation) (*Operation, error) {
	if o.targetLen != next.baseLen {
		return nil, fmt.Errorf("compose: target length %d does not match base length %d: %w",
			o.targetLen, next.baseLen, ErrLengthMismatch)
	}

	out := New()
	var cur cursorPair
	cur.init(o.ops, next.ops)

	for {
		if cur.a == nil && cur.b == nil {
			return out, nil
		}
		if cur.a != nil && cur.a.kind == OpDelete {
			out.Delete(cur.a.n)
			cur.nextA()
			continue
		}
		if cur.b != nil && cur.b.kind == OpInsert {
			out.insertRunes(cur.b.text)
			cur.nextB()
			continue
		}
		if cur.a == nil || cur.b == nil {
			// Unreachable when the length precondition holds.
			return nil, fmt.Errorf("compose: operations are not aligned: %w", ErrLengthMismatch)
		}

		switch {
		case cur.a.kind == OpRetain && cur.b.kind == OpRetain:
			n := min(cur.a.n, cur.b.n)
			out.Retain(n)
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpRetain && cur.b.kind == OpDelete:
			n := min(cur.a.n, cur.b.n)
			out.Delete(n)
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpInsert && cur.b.kind == OpRetain:
			n := min(len(cur.a.text), cur.b.n)
			out.insertRunes(cur.a.text[:n])
			cur.consumeA(n)
			cur.consumeB(n)
		case cur.a.kind == OpInsert && cur.b.kind == OpDelete:
			// The inserted text is removed again; both sides cancel.
			n := min(len(cur.a.text), cur.b.n)
			cur.consumeA(n)
			cur.consumeB(n)
		}
	}
}

// cursorPair walks two primitive sequences in lockstep, allowing partial
// consumption of the current primitive on either side.
type cursorPair struct {
	opsA, opsB []Op
	iA, iB     int
	curA, curB Op
	a, b       *Op
}

func (c *cursorPair) init(opsA, opsB []Op) {
	c.opsA, c.opsB = opsA, opsB
	c.nextA()
	c.nextB()
}

func (c *cursorPair) nextA() {
	if c.iA < len(c.opsA) {
		c.curA = c.opsA[c.iA]
		c.a = &c.curA
		c.iA++
	} else {
		c.a = nil
	}
}

func (c *cursorPair) nextB() {
	if c.iB < len(c.opsB) {
		c.curB = c.opsB[c.iB]
		c.b = &c.curB
		c.iB++
	} else {
		c.b = nil
	}
}

// consumeA uses up n code points of the current left primitive, advancing to
// the next one when it is exhausted.
func (c *cursorPair) consumeA(n int) {
	if c.a.kind == OpInsert {
		if n >= len(c.a.text) {
			c.nextA()
			return
		}
		c.curA.text = c.curA.text[n:]
		return
	}
	if n >= c.a.n {
		c.nextA()
		return
	}
	c.curA.n -= n
}

// consumeB mirrors consumeA for the right primitive.
func (c *cursorPair) consumeB(n int) {
	if c.b.kind == OpInsert {
		if n >= len(c.b.text) {
			c.nextB()
			return
		}
		c.curB.text = c.curB.text[n:]
		return
	}
	if n >= c.b.n {
		c.nextB()
		return
	}
	c.curB.n -= n
}
