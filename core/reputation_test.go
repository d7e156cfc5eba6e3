package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Artfain/powchain/core"
	"github.com/stretchr/testify/require"
)

func TestUpdateReputation(t *testing.T) {
	rep := core.NewPeerReputation("a")
	now := time.Unix(100, 0)

	core.UpdateReputation(rep, errors.New("boom"), now)
	require.InDelta(t, 0.9, rep.Score, 1e-9)
	require.Equal(t, "boom", rep.LastError)
	require.Equal(t, now, rep.LastContact)

	for i := 0; i < 50; i++ {
		core.UpdateReputation(rep, errors.New("boom"), now)
	}
	require.InDelta(t, 0.1, rep.Score, 1e-9)

	core.UpdateReputation(rep, nil, now)
	require.Greater(t, rep.Score, 0.1)
	require.Empty(t, rep.LastError)
	require.Equal(t, uint64(1), rep.Successes)
	require.Equal(t, uint64(51), rep.Failures)
}

func TestPeerBookReport(t *testing.T) {
	book := core.NewPeerBook()
	book.Record("b", nil)
	book.Record("a", errors.New("down"))

	report := book.Report([]string{"b", "a", "c"})
	require.Len(t, report, 3)
	require.Equal(t, "a", report[0].Address)
	require.Equal(t, uint64(1), report[0].Failures)
	require.Equal(t, uint64(1), report[1].Successes)
	require.Equal(t, 1.0, report[2].Score)

	book.Forget("a")
	require.Equal(t, uint64(0), book.Get("a").Failures)
}

func TestMiningStats(t *testing.T) {
	stats := core.NewMiningStats()
	require.Equal(t, 0, stats.Summary().Blocks)

	stats.Record(9, time.Millisecond)
	sum := stats.Summary()
	require.Equal(t, 1, sum.Blocks)
	require.Equal(t, 10.0, sum.MeanIterations)
	require.Zero(t, sum.StdDevIterations)

	stats.Record(29, 3*time.Millisecond)
	sum = stats.Summary()
	require.Equal(t, 20.0, sum.MeanIterations)
	require.Equal(t, 30.0, sum.MaxIterations)
	require.InDelta(t, 14.142, sum.StdDevIterations, 0.001)
	require.Equal(t, 2*time.Millisecond, sum.MeanDuration)
}
