package tunnel

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/routes"
)

// Config is a tunnel profile: where to connect and which destinations the
// tunnel should carry.
type Config struct {
	// Name is a human-readable name for the profile.
	Name string `json:"name" yaml:"name"`
	// EntryGateway and ExitGateway select gateways in the engine; empty lets
	// the engine choose.
	EntryGateway string `json:"entry_gateway,omitempty" yaml:"entry_gateway,omitempty"`
	ExitGateway  string `json:"exit_gateway,omitempty" yaml:"exit_gateway,omitempty"`
	// Addresses are assigned to the tunnel interface, in CIDR notation.
	Addresses []string `json:"addresses" yaml:"addresses"`
	// DNS servers pushed to the interface.
	DNS []string `json:"dns,omitempty" yaml:"dns,omitempty"`
	// MTU of the tunnel interface; 0 selects common.DefaultMTU.
	MTU int `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	// IncludeRoutes are the destinations routed through the tunnel.
	// Example: ["0.0.0.0/0"] or ["10.0.0.0/8", "192.168.1.10"]
	IncludeRoutes []string `json:"include_routes" yaml:"include_routes"`
	// ExcludeRoutes are carved out of IncludeRoutes.
	ExcludeRoutes []string `json:"exclude_routes,omitempty" yaml:"exclude_routes,omitempty"`
}

// Equal reports whether two profiles would build the same tunnel.
func (c *Config) Equal(o *Config) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Name == o.Name &&
		c.EntryGateway == o.EntryGateway &&
		c.ExitGateway == o.ExitGateway &&
		c.effectiveMTU() == o.effectiveMTU() &&
		slices.Equal(c.Addresses, o.Addresses) &&
		slices.Equal(c.DNS, o.DNS) &&
		slices.Equal(c.IncludeRoutes, o.IncludeRoutes) &&
		slices.Equal(c.ExcludeRoutes, o.ExcludeRoutes)
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Addresses = slices.Clone(c.Addresses)
	c.DNS = slices.Clone(c.DNS)
	c.IncludeRoutes = slices.Clone(c.IncludeRoutes)
	c.ExcludeRoutes = slices.Clone(c.ExcludeRoutes)
	return c
}

func (c *Config) effectiveMTU() int {
	if c.MTU == 0 {
		return common.DefaultMTU
	}
	return c.MTU
}

// Validate checks that every field parses. Route list errors are
// *routes.FormatError values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: profile name is required", common.ErrInvalidConfig)
	}
	if c.MTU != 0 && (c.MTU < common.MinMTU || c.MTU > common.MaxMTU) {
		return fmt.Errorf("%w: mtu %d outside %d-%d", common.ErrInvalidConfig, c.MTU, common.MinMTU, common.MaxMTU)
	}
	if len(c.IncludeRoutes) == 0 {
		return fmt.Errorf("%w: include_routes is empty", common.ErrInvalidConfig)
	}
	if _, err := c.interfaceConfig(nil); err != nil {
		return err
	}
	if _, err := routes.ParsePrefixes(c.IncludeRoutes); err != nil {
		return err
	}
	if _, err := routes.ParsePrefixes(c.ExcludeRoutes); err != nil {
		return err
	}
	return nil
}

// InterfaceConfig is what the platform factory needs to build the tunnel
// interface. Routes is the computed allow-list.
type InterfaceConfig struct {
	MTU       int
	Addresses []netip.Prefix
	DNS       []netip.Addr
	Routes    []netip.Prefix
}

func (c *Config) interfaceConfig(allowed []netip.Prefix) (InterfaceConfig, error) {
	ic := InterfaceConfig{MTU: c.effectiveMTU(), Routes: allowed}

	var errs []error
	for _, a := range c.Addresses {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			errs = append(errs, fmt.Errorf("address %q: %w", a, err))
			continue
		}
		ic.Addresses = append(ic.Addresses, p)
	}
	for _, d := range c.DNS {
		addr, err := netip.ParseAddr(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("dns %q: %w", d, err))
			continue
		}
		ic.DNS = append(ic.DNS, addr)
	}
	if len(errs) > 0 {
		return InterfaceConfig{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, errors.Join(errs...))
	}
	return ic, nil
}
