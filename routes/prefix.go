// Package routes computes the tunnel's routing allow-list for split
// tunnelling: the minimal set of disjoint IPv4 CIDR blocks covering the
// included destinations minus the excluded ones.
package routes

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/nymtech/nym-vpn-client-sub000/common"
)

// FormatError reports a malformed prefix or address string.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid prefix %q: %s", e.Input, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, common.ErrInvalidPrefix).
func (e *FormatError) Unwrap() error {
	return common.ErrInvalidPrefix
}

// Prefix is an IPv4 network prefix: a 32-bit base address and a length
// between 0 and 32. The base may carry host bits; they are masked off when
// the prefix is turned into a Range. Lengths above 32 are treated as 32.
type Prefix struct {
	Addr uint32
	Bits uint8
}

// ParsePrefix parses "a.b.c.d/n" or a bare "a.b.c.d", which implies /32.
func ParsePrefix(s string) (Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Prefix{}, &FormatError{Input: s, Reason: "empty"}
	}

	addrPart, bitsPart, hasBits := strings.Cut(s, "/")

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return Prefix{}, &FormatError{Input: s, Reason: "bad address"}
	}
	if !addr.Is4() {
		return Prefix{}, &FormatError{Input: s, Reason: "only IPv4 is supported"}
	}

	bits := 32
	if hasBits {
		bits, err = strconv.Atoi(bitsPart)
		if err != nil || bitsPart[0] == '+' || bitsPart[0] == '-' {
			return Prefix{}, &FormatError{Input: s, Reason: "prefix length is not a number"}
		}
		if bits < 0 || bits > 32 {
			return Prefix{}, &FormatError{Input: s, Reason: "prefix length out of range"}
		}
	}

	return Prefix{Addr: addrBits(addr), Bits: uint8(bits)}, nil
}

// ParsePrefixes parses every entry, failing on the first malformed one.
func ParsePrefixes(list []string) ([]Prefix, error) {
	out := make([]Prefix, 0, len(list))
	for _, s := range list {
		p, err := ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Netip returns the prefix as a masked netip.Prefix.
func (p Prefix) Netip() netip.Prefix {
	return netip.PrefixFrom(addrFrom(uint64(p.Addr)), int(p.bits())).Masked()
}

// Range returns the inclusive address interval the prefix covers.
func (p Prefix) Range() Range {
	size := uint64(1) << (32 - p.bits())
	start := uint64(p.Addr) &^ (size - 1)
	return Range{Start: start, End: start + size - 1}
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", addrFrom(uint64(p.Addr)), p.bits())
}

func (p Prefix) bits() uint8 {
	return min(p.Bits, 32)
}

// Range is an inclusive interval of IPv4 addresses held in 64 bits so that
// End+1 never wraps.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", addrFrom(r.Start), addrFrom(r.End))
}

func (r Range) overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func addrFrom(v uint64) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func addrBits(addr netip.Addr) uint32 {
	a := addr.As4()
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}
