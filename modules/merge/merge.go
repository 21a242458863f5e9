// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package merge implements the N-ary merge value that carries conflicts
// through trees, refs and file contents. A Merge holds 2k+1 terms in a
// single interleaved sequence [add0, remove0, add1, remove1, …, addk]:
// removes are base states, adds are side states. A resolved value is a
// merge of length one.
package merge

import (
	"encoding/json"
	"fmt"
)

type Merge[E comparable] struct {
	terms []E
}

// Resolved wraps a plain value as a trivially resolved merge.
func Resolved[E comparable](v E) Merge[E] {
	return Merge[E]{terms: []E{v}}
}

// New builds a merge from an interleaved term sequence. The length must be
// odd; anything else is a programming error, not user data.
func New[E comparable](terms ...E) Merge[E] {
	if len(terms)%2 == 0 {
		panic(fmt.Sprintf("merge: even number of terms: %d", len(terms)))
	}
	return Merge[E]{terms: terms}
}

// FromLegacyForm builds a merge from separate removes and adds, the shape
// older call sites carry. len(adds) must be len(removes)+1.
func FromLegacyForm[E comparable](removes, adds []E) Merge[E] {
	if len(adds) != len(removes)+1 {
		panic(fmt.Sprintf("merge: %d adds for %d removes", len(adds), len(removes)))
	}
	terms := make([]E, 0, len(adds)+len(removes))
	terms = append(terms, adds[0])
	for i, r := range removes {
		terms = append(terms, r, adds[i+1])
	}
	return Merge[E]{terms: terms}
}

// Len returns the number of terms, always odd.
func (m Merge[E]) Len() int { return len(m.terms) }

// Get returns the i-th interleaved term.
func (m Merge[E]) Get(i int) E { return m.terms[i] }

// Terms exposes the interleaved sequence. Callers must not mutate it.
func (m Merge[E]) Terms() []E { return m.terms }

// Adds returns the side states (even positions).
func (m Merge[E]) Adds() []E {
	adds := make([]E, 0, len(m.terms)/2+1)
	for i := 0; i < len(m.terms); i += 2 {
		adds = append(adds, m.terms[i])
	}
	return adds
}

// Removes returns the base states (odd positions).
func (m Merge[E]) Removes() []E {
	removes := make([]E, 0, len(m.terms)/2)
	for i := 1; i < len(m.terms); i += 2 {
		removes = append(removes, m.terms[i])
	}
	return removes
}

func (m Merge[E]) IsResolved() bool { return len(m.terms) == 1 }

// AsResolved returns the single value of a resolved merge.
func (m Merge[E]) AsResolved() (E, bool) {
	if len(m.terms) == 1 {
		return m.terms[0], true
	}
	var zero E
	return zero, false
}

// IsAbsent reports whether every term is the zero value of E. For id-typed
// merges the zero value is the "absent on this side" sentinel.
func (m Merge[E]) IsAbsent() bool {
	var zero E
	for _, t := range m.terms {
		if t != zero {
			return false
		}
	}
	return true
}

// Simplify cancels matching (add, remove) pairs. The result preserves the
// relative order of the surviving terms and is idempotent.
func (m Merge[E]) Simplify() Merge[E] {
	adds := m.Adds()
	removes := m.Removes()
	addUsed := make([]bool, len(adds))
	removeUsed := make([]bool, len(removes))
	for ri, r := range removes {
		for ai, a := range adds {
			if !addUsed[ai] && !removeUsed[ri] && a == r {
				addUsed[ai] = true
				removeUsed[ri] = true
				break
			}
		}
	}
	outAdds := adds[:0:0]
	for ai, a := range adds {
		if !addUsed[ai] {
			outAdds = append(outAdds, a)
		}
	}
	outRemoves := removes[:0:0]
	for ri, r := range removes {
		if !removeUsed[ri] {
			outRemoves = append(outRemoves, r)
		}
	}
	return FromLegacyForm(outRemoves, outAdds)
}

// ResolveTrivial collapses the merge when the terms leave no real choice:
// either cancellation leaves a single term, or every surviving side agrees.
func (m Merge[E]) ResolveTrivial() (E, bool) {
	s := m.Simplify()
	if len(s.terms) == 1 {
		return s.terms[0], true
	}
	adds := s.Adds()
	first := adds[0]
	for _, a := range adds[1:] {
		if a != first {
			var zero E
			return zero, false
		}
	}
	return first, true
}

// Map applies f to every term.
func (m Merge[E]) Map(f func(E) E) Merge[E] {
	terms := make([]E, len(m.terms))
	for i, t := range m.terms {
		terms[i] = f(t)
	}
	return Merge[E]{terms: terms}
}

// Convert applies f to every term, producing a merge over another type.
func Convert[E, T comparable](m Merge[E], f func(E) T) Merge[T] {
	terms := make([]T, m.Len())
	for i, t := range m.Terms() {
		terms[i] = f(t)
	}
	return Merge[T]{terms: terms}
}

// ConvertErr is Convert for fallible mappings; the first error wins.
func ConvertErr[E, T comparable](m Merge[E], f func(E) (T, error)) (Merge[T], error) {
	terms := make([]T, m.Len())
	for i, t := range m.Terms() {
		v, err := f(t)
		if err != nil {
			return Merge[T]{}, err
		}
		terms[i] = v
	}
	return Merge[T]{terms: terms}, nil
}

// MarshalJSON encodes the interleaved term sequence as a JSON array.
func (m Merge[E]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.terms)
}

func (m *Merge[E]) UnmarshalJSON(data []byte) error {
	var terms []E
	if err := json.Unmarshal(data, &terms); err != nil {
		return err
	}
	if len(terms)%2 == 0 {
		return fmt.Errorf("merge: even number of terms: %d", len(terms))
	}
	m.terms = terms
	return nil
}

// Flatten collapses a nested merge, given as the interleaved outer term
// sequence, by concatenation with sign alternation: inner terms under an
// outer remove swap their add/remove roles. The outer sequence must have
// odd length.
func Flatten[E comparable](outer []Merge[E]) Merge[E] {
	if len(outer)%2 == 0 {
		panic(fmt.Sprintf("merge: even number of outer terms: %d", len(outer)))
	}
	var adds, removes []E
	for i, inner := range outer {
		if i%2 == 0 {
			adds = append(adds, inner.Adds()...)
			removes = append(removes, inner.Removes()...)
		} else {
			adds = append(adds, inner.Removes()...)
			removes = append(removes, inner.Adds()...)
		}
	}
	return FromLegacyForm(removes, adds)
}
