package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/db"
)

func TestNew(t *testing.T) {
	database, err := db.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, database.Close()) })

	env := common.ConfigDefaultsForEnv(common.Testnet)

	b, err := New(&Config{
		Ctx:         context.Background(),
		Env:         env,
		Database:    database,
		XMRRPCURL:   "http://127.0.0.1:18083/json_rpc",
		SwapTimeout: 5 * time.Minute,
	})
	require.NoError(t, err)

	require.Equal(t, env, b.Env())
	require.Equal(t, 5*time.Minute, b.SwapTimeout())
	require.NotNil(t, b.SwapManager())
	require.NotNil(t, b.MoneroWalletClient())
}
