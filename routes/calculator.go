package routes

import (
	"net/netip"
	"sort"

	"go4.org/netipx"
)

// arena holds the working set of one ComputeAllowedRanges call. Nothing in
// it outlives the call, so concurrent calls never share state.
type arena struct {
	allowed []Range // disjoint, sorted by Start between steps
}

// ComputeAllowedRanges returns the minimal set of disjoint CIDR blocks
// covering (∪includes) \ (∪excludes), sorted by address.
//
// Each include is first subtracted from the working set and then appended
// in full, so an include re-adds space removed earlier. Excludes are applied
// afterwards, one at a time. The result does not depend on input order.
func ComputeAllowedRanges(includes, excludes []Prefix) []Prefix {
	a := &arena{allowed: make([]Range, 0, len(includes))}

	for _, p := range includes {
		a.include(p.Range())
	}

	if len(excludes) > 0 {
		for _, p := range excludes {
			a.exclude(p.Range())
		}
		a.sort()
	}

	return a.prefixes()
}

// ComputeAllowedRoutes parses both lists and computes the allow-list. The
// first malformed entry fails the whole call with a *FormatError.
func ComputeAllowedRoutes(includes, excludes []string) ([]netip.Prefix, error) {
	inc, err := ParsePrefixes(includes)
	if err != nil {
		return nil, err
	}
	exc, err := ParsePrefixes(excludes)
	if err != nil {
		return nil, err
	}

	allowed := ComputeAllowedRanges(inc, exc)
	out := make([]netip.Prefix, len(allowed))
	for i, p := range allowed {
		out[i] = p.Netip()
	}
	return out, nil
}

// Merge returns the minimal CIDR cover of the union of prefixes.
func Merge(prefixes []Prefix) []Prefix {
	return ComputeAllowedRanges(prefixes, nil)
}

func (a *arena) include(r Range) {
	a.subtract(r)
	a.allowed = append(a.allowed, r)
	a.sort()
	a.mergeAdjacent()
}

func (a *arena) exclude(r Range) {
	a.subtract(r)
}

// subtract removes r from every overlapping entry: entries inside r are
// dropped, entries overlapping one edge are trimmed and entries strictly
// containing r are split in two.
func (a *arena) subtract(r Range) {
	out := a.allowed[:0:0]
	for _, e := range a.allowed {
		switch {
		case !e.overlaps(r):
			out = append(out, e)
		case r.Start <= e.Start && r.End >= e.End:
			// fully covered
		case r.Start <= e.Start:
			out = append(out, Range{Start: r.End + 1, End: e.End})
		case r.End >= e.End:
			out = append(out, Range{Start: e.Start, End: r.Start - 1})
		default:
			out = append(out,
				Range{Start: e.Start, End: r.Start - 1},
				Range{Start: r.End + 1, End: e.End},
			)
		}
	}
	a.allowed = out
}

func (a *arena) sort() {
	sort.Slice(a.allowed, func(i, j int) bool {
		return a.allowed[i].Start < a.allowed[j].Start
	})
}

// mergeAdjacent joins neighbours where one ends right before the next starts.
func (a *arena) mergeAdjacent() {
	if len(a.allowed) < 2 {
		return
	}
	out := a.allowed[:1]
	for _, r := range a.allowed[1:] {
		last := &out[len(out)-1]
		if last.End+1 == r.Start {
			last.End = r.End
			continue
		}
		out = append(out, r)
	}
	a.allowed = out
}

// prefixes splits every range into the largest aligned blocks that fit.
func (a *arena) prefixes() []Prefix {
	var out []Prefix
	for _, r := range a.allowed {
		ipr := netipx.IPRangeFrom(addrFrom(r.Start), addrFrom(r.End))
		for _, p := range ipr.Prefixes() {
			out = append(out, Prefix{Addr: addrBits(p.Addr()), Bits: uint8(p.Bits())})
		}
	}
	return out
}
