package xmrmaker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common/types"
)

func TestState_IsTerminal(t *testing.T) {
	terminal := []State{StateBtcRedeemed, StateXmrRefunded, StateBtcPunished, StateSafelyAborted}
	for _, s := range terminal {
		require.True(t, s.IsTerminal(), s.String())
	}

	nonTerminal := []State{
		StateStarted, StateNegotiated, StateBtcLockTransactionSeen, StateBtcLocked,
		StateXmrLockTransactionSent, StateXmrLocked, StateEncSigLearned,
		StateCancelTimelockExpired, StateBtcCancelled, StateBtcRefundable, StateBtcPunishable,
	}
	for _, s := range nonTerminal {
		require.False(t, s.IsTerminal(), s.String())
	}
}

func TestState_Status(t *testing.T) {
	cases := []struct {
		state State
		want  types.Status
	}{
		{StateBtcRedeemed, types.StatusSuccess},
		{StateXmrRefunded, types.StatusRefunded},
		{StateBtcPunished, types.StatusPunished},
		{StateSafelyAborted, types.StatusAborted},
		{StateStarted, types.StatusOngoing},
		{StateBtcCancelled, types.StatusOngoing},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.state.Status(), c.state.String())
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "Started", StateStarted.String())
	require.Equal(t, "BtcRedeemed", StateBtcRedeemed.String())
	require.Equal(t, "Unknown", State(999).String())
}
