// Package platform builds the tunnel network interface on the host.
//
// LinkFactory implements tunnel.TunnelFactory. On Linux it creates a
// persistent TUN link through netlink, assigns addresses, sets the MTU,
// brings the link up and installs every allow-list prefix as a
// link-scoped route. Other platforms report common.ErrDevice.
package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

var _ tunnel.TunnelFactory = (*LinkFactory)(nil)

// LinkFactory creates tunnel links named after a fixed interface name.
type LinkFactory struct {
	name string
	log  common.Logger

	mu   sync.Mutex
	live map[string]*linkHandle
}

// NewLinkFactory returns a factory for the interface called name
// (common.DefaultInterfaceName when empty).
func NewLinkFactory(name string, log common.Logger) *LinkFactory {
	if name == "" {
		name = common.DefaultInterfaceName
	}
	return &LinkFactory{
		name: name,
		log:  common.WithComponent(log, "Platform"),
		live: make(map[string]*linkHandle),
	}
}

type linkHandle struct {
	id    string
	name  string
	index int
}

func (h *linkHandle) ID() string   { return h.id }
func (h *linkHandle) Name() string { return h.name }

// Create builds the interface described by cfg.
func (f *LinkFactory) Create(ctx context.Context, cfg tunnel.InterfaceConfig) (tunnel.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index, err := f.create(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h := &linkHandle{id: uuid.NewString(), name: f.name, index: index}
	f.mu.Lock()
	f.live[h.id] = h
	f.mu.Unlock()

	f.log.Info("Created %s with %d routes", h.name, len(cfg.Routes))
	return h, nil
}

// Destroy removes the interface behind h. Destroying a handle twice is a
// no-op.
func (f *LinkFactory) Destroy(h tunnel.Handle) error {
	f.mu.Lock()
	lh, ok := f.live[h.ID()]
	delete(f.live, h.ID())
	f.mu.Unlock()

	if !ok {
		f.log.Debug("Handle %s already released", h.ID())
		return nil
	}
	if err := f.remove(lh); err != nil {
		return fmt.Errorf("remove %s: %w", lh.name, err)
	}
	f.log.Info("Removed %s", lh.name)
	return nil
}
