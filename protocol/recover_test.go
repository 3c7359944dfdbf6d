package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/common/types"
	"github.com/nthswap/xmrbtc-swap/protocol/swap"
)

func TestRecover_NotImplemented(t *testing.T) {
	info := swap.NewInfo(types.NewSwapID(), swap.RoleMaker, 1000, 1000, types.StatusOngoing, time.Now())
	err := Recover(info)
	require.True(t, errors.Is(err, common.ErrRecoveryNotImplemented))
}
