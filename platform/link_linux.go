//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"go4.org/netipx"
	"golang.org/x/sys/unix"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

func (f *LinkFactory) create(ctx context.Context, cfg tunnel.InterfaceConfig) (int, error) {
	tun := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: f.name, MTU: cfg.MTU},
		Mode:      netlink.TUNTAP_MODE_TUN,
		Flags:     netlink.TUNTAP_NO_PI,
	}
	if err := netlink.LinkAdd(tun); err != nil {
		return 0, classify(err, "add link "+f.name)
	}
	// The link is persistent; the engine opens its own queue by name.
	for _, fd := range tun.Fds {
		fd.Close()
	}

	link, err := netlink.LinkByName(f.name)
	if err != nil {
		f.rollback(f.name)
		return 0, classify(err, "look up "+f.name)
	}

	if err := f.configure(ctx, link, cfg); err != nil {
		f.rollback(f.name)
		return 0, err
	}
	return link.Attrs().Index, nil
}

func (f *LinkFactory) configure(ctx context.Context, link netlink.Link, cfg tunnel.InterfaceConfig) error {
	for _, p := range cfg.Addresses {
		addr := &netlink.Addr{IPNet: netipx.PrefixIPNet(p)}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return classify(err, fmt.Sprintf("add address %s", p))
		}
	}
	if err := netlink.LinkSetMTU(link, cfg.MTU); err != nil {
		return classify(err, fmt.Sprintf("set mtu %d", cfg.MTU))
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return classify(err, "set link up")
	}

	index := link.Attrs().Index
	for _, p := range cfg.Routes {
		if err := ctx.Err(); err != nil {
			return err
		}
		route := &netlink.Route{
			LinkIndex: index,
			Dst:       netipx.PrefixIPNet(p.Masked()),
			Scope:     netlink.SCOPE_LINK,
		}
		if err := netlink.RouteAdd(route); err != nil {
			return classify(err, fmt.Sprintf("add route %s", p))
		}
		f.log.Debug("Route %s via %s", p, f.name)
	}
	if len(cfg.DNS) > 0 {
		f.log.Debug("DNS %v left to the engine", cfg.DNS)
	}
	return nil
}

func (f *LinkFactory) rollback(name string) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return
	}
	if err := netlink.LinkDel(link); err != nil {
		f.log.Warn("Rollback of %s failed: %v", name, err)
	}
}

// remove deletes the link. Routes go with it.
func (f *LinkFactory) remove(h *linkHandle) error {
	link, err := netlink.LinkByIndex(h.index)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, unix.ENODEV) {
			return nil
		}
		return classify(err, "look up "+h.name)
	}
	if link.Attrs().Name != h.name {
		// The index was reused by another interface.
		return nil
	}
	if err := netlink.LinkDel(link); err != nil {
		return classify(err, "delete "+h.name)
	}
	return nil
}

// classify maps a netlink error onto the tunnel factory error kinds.
func classify(err error, op string) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return fmt.Errorf("%w: %s: %w", common.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %w", common.ErrDevice, op, err)
}
