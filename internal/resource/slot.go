// Package resource implements arithmetic over resource slots — the
// cpu/mem/accelerator quantities a kernel requests and an agent offers.
//
// Slot values are arbitrary-precision decimals (k8s.io/apimachinery's
// resource.Quantity), never floating point, so that fractional accelerator
// shares (e.g. "0.25" of a GPU) and multi-terabyte memory sizes both stay
// exact. A missing key in either operand is treated as zero.
package resource

import (
	"fmt"

	apiresource "k8s.io/apimachinery/pkg/api/resource"
)

// Slot is a mapping from slot name (cpu, mem, cuda.device, cuda.shares, ...)
// to a non-negative decimal quantity. Slot names are free-form strings
// registered by plugins; there is no fixed schema.
type Slot map[string]apiresource.Quantity

// SlotKind describes how a slot name's values should be formatted once
// normalized — used only to validate known-ness, not to reinterpret values.
type SlotKind struct {
	Name string
	// MaxDecimalPlaces bounds fractional precision for non-integer slots
	// (e.g. cuda.shares). Zero means integer-only (e.g. mem, in bytes).
	MaxDecimalPlaces int
}

// UnknownSlotError is returned by Normalize when a slot name is not present
// in the known-slot-types registry.
type UnknownSlotError struct {
	Slot string
}

func (e *UnknownSlotError) Error() string {
	return fmt.Sprintf("unknown slot type: %s", e.Slot)
}

// InsufficientSlotError is returned by Sub when subtracting would drive a
// component negative.
type InsufficientSlotError struct {
	Slot string
}

func (e *InsufficientSlotError) Error() string {
	return fmt.Sprintf("insufficient slot: %s", e.Slot)
}

func zero() apiresource.Quantity {
	return *apiresource.NewQuantity(0, apiresource.DecimalSI)
}

func get(s Slot, name string) apiresource.Quantity {
	if v, ok := s[name]; ok {
		return v
	}
	return zero()
}

// Add returns the componentwise sum of a and b. Missing keys are zero.
func Add(a, b Slot) Slot {
	out := make(Slot, len(a)+len(b))
	for k, v := range a {
		out[k] = v.DeepCopy()
	}
	for k, v := range b {
		cur := get(out, k)
		cur.Add(v)
		out[k] = cur
	}
	return out
}

// Sub returns a - b componentwise. It fails with InsufficientSlotError for
// the first slot that would go negative; callers that need the full set of
// violations should inspect components individually via LessOrEqual first.
func Sub(a, b Slot) (Slot, error) {
	out := make(Slot, len(a)+len(b))
	for k, v := range a {
		out[k] = v.DeepCopy()
	}
	for k, v := range b {
		cur := get(out, k)
		cur.Sub(v)
		if cur.Sign() < 0 {
			return nil, &InsufficientSlotError{Slot: k}
		}
		out[k] = cur
	}
	return out, nil
}

// LessOrEqual reports whether every component of a is <= the corresponding
// component of b (missing components treated as zero on both sides).
func LessOrEqual(a, b Slot) bool {
	names := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		names[k] = struct{}{}
	}
	for k := range b {
		names[k] = struct{}{}
	}
	for name := range names {
		av := get(a, name)
		bv := get(b, name)
		if av.Cmp(bv) > 0 {
			return false
		}
	}
	return true
}

// Normalize widens every slot in s to its canonical decimal form and
// validates that every slot name is registered in known and that a
// fractional slot's value has no more than its kind's MaxDecimalPlaces
// digits after the decimal point. Unknown slot names
// fail hard with UnknownSlotError, per the numeric contract: the scheduler
// must never silently invent semantics for a slot it does not recognize.
func Normalize(s Slot, known map[string]SlotKind) (Slot, error) {
	out := make(Slot, len(s))
	for name, qty := range s {
		kind, ok := known[name]
		if !ok {
			return nil, &UnknownSlotError{Slot: name}
		}
		if kind.MaxDecimalPlaces == 0 {
			// Integer-valued slot (e.g. mem in bytes); a fractional value is
			// rounded up to the next whole unit.
			out[name] = *apiresource.NewQuantity(qty.Value(), apiresource.DecimalSI)
			continue
		}
		scale := apiresource.Scale(-kind.MaxDecimalPlaces)
		if apiresource.NewScaledQuantity(qty.ScaledValue(scale), scale).Cmp(qty) != 0 {
			return nil, fmt.Errorf("slot %s: %s exceeds %d decimal places", name, qty.String(), kind.MaxDecimalPlaces)
		}
		out[name] = qty.DeepCopy()
	}
	return out, nil
}

// Sum adds requested slots across an arbitrary sequence, e.g. the kernels
// of a session.
func Sum[T any](items []T, get func(T) Slot) Slot {
	out := Slot{}
	for _, item := range items {
		out = Add(out, get(item))
	}
	return out
}

// IsZero reports whether every component of s is zero (or s is empty).
func IsZero(s Slot) bool {
	for _, v := range s {
		if v.Sign() != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func Clone(s Slot) Slot {
	out := make(Slot, len(s))
	for k, v := range s {
		out[k] = v.DeepCopy()
	}
	return out
}
