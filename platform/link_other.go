//go:build !linux

package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

func (f *LinkFactory) create(ctx context.Context, cfg tunnel.InterfaceConfig) (int, error) {
	return 0, fmt.Errorf("%w: tunnel links are not supported on %s", common.ErrDevice, runtime.GOOS)
}

func (f *LinkFactory) remove(h *linkHandle) error {
	return nil
}
