// internal/chain/ethereum_test.go
package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairCreatedLog(token0, token1, pair common.Address) types.Log {
	data := make([]byte, 64)
	copy(data[12:32], pair.Bytes())
	// Second word is the factory's pair counter; the decoder ignores it.
	data[63] = 42

	return types.Log{
		Topics: []common.Hash{
			pairCreatedTopic,
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
		},
		Data:        data,
		BlockNumber: 1_234_567,
		TxHash:      common.HexToHash("0xabc123"),
	}
}

func TestDecodePairCreated(t *testing.T) {
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	pair := common.HexToAddress("0x3333333333333333333333333333333333333333")

	event, err := DecodePairCreated(pairCreatedLog(token0, token1, pair))
	require.NoError(t, err)

	assert.Equal(t, token0, event.Token0)
	assert.Equal(t, token1, event.Token1)
	assert.Equal(t, pair, event.Pair)
	assert.Equal(t, uint64(1_234_567), event.BlockNumber)
}

func TestDecodePairCreatedRejectsMalformedLogs(t *testing.T) {
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	pair := common.HexToAddress("0x3333333333333333333333333333333333333333")

	t.Run("missing topics", func(t *testing.T) {
		vLog := pairCreatedLog(token0, token1, pair)
		vLog.Topics = vLog.Topics[:2]
		_, err := DecodePairCreated(vLog)
		require.Error(t, err)
	})

	t.Run("wrong event signature", func(t *testing.T) {
		vLog := pairCreatedLog(token0, token1, pair)
		vLog.Topics[0] = common.HexToHash("0xdead")
		_, err := DecodePairCreated(vLog)
		require.Error(t, err)
	})

	t.Run("truncated data", func(t *testing.T) {
		vLog := pairCreatedLog(token0, token1, pair)
		vLog.Data = vLog.Data[:16]
		_, err := DecodePairCreated(vLog)
		require.Error(t, err)
	})
}

func TestReservesOrient(t *testing.T) {
	base := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token := common.HexToAddress("0x4444444444444444444444444444444444444444")

	reserves := &Reserves{
		Reserve0: big.NewInt(100),
		Reserve1: big.NewInt(200),
		Token0:   base,
	}
	baseReserve, tokenReserve := reserves.Orient(base)
	assert.Equal(t, int64(100), baseReserve.Int64())
	assert.Equal(t, int64(200), tokenReserve.Int64())

	reserves.Token0 = token
	baseReserve, tokenReserve = reserves.Orient(base)
	assert.Equal(t, int64(200), baseReserve.Int64())
	assert.Equal(t, int64(100), tokenReserve.Int64())
}
