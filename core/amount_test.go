package core_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/Artfain/powchain/core"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want core.Amount
		ok   bool
	}{
		{"10", core.Coins(10), true},
		{"0", 0, true},
		{"2.5", core.Amount(2_500_000), true},
		{"0.000001", core.Amount(1), true},
		{"0.0000001", 0, false},
		{"-1", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
		{".5", 0, false},
		{"5.", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := core.ParseAmount(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, core.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAmountString(t *testing.T) {
	require.Equal(t, "10", core.Coins(10).String())
	require.Equal(t, "2.5", core.Amount(2_500_000).String())
	require.Equal(t, "-3.25", core.Amount(-3_250_000).String())
}

func TestAmountJSON(t *testing.T) {
	var tx core.Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"sender":"a","recipient":"b","amount":1.5,"signature":""}`), &tx))
	require.Equal(t, core.Amount(1_500_000), tx.Amount)

	data, err := json.Marshal(tx)
	require.NoError(t, err)
	require.JSONEq(t, `{"sender":"a","recipient":"b","amount":1.5,"signature":""}`, string(data))

	require.Error(t, json.Unmarshal([]byte(`{"amount":-2}`), &tx))
	require.Error(t, json.Unmarshal([]byte(`{"amount":"2"}`), &tx))
}

func TestAmountAdd(t *testing.T) {
	sum, ok := core.Coins(2).Add(core.Amount(500_000))
	require.True(t, ok)
	require.Equal(t, "2.5", sum.String())

	_, ok = core.Amount(math.MaxInt64).Add(1)
	require.False(t, ok)
	_, ok = core.Amount(math.MinInt64).Add(-1)
	require.False(t, ok)
}

func TestCoinsOverflow(t *testing.T) {
	require.Equal(t, core.Amount(9_000_000_000_000_000_000), core.Coins(9_000_000_000_000))
	require.Panics(t, func() { core.Coins(math.MaxInt64) })
	require.Panics(t, func() { core.Coins(math.MinInt64) })
}
