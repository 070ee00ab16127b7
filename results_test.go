package perfspan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCustomNames(t *testing.T) {
	k := installFakeKernel(t)

	l1d := func(result uint64) uint64 {
		return unix.PERF_COUNT_HW_CACHE_L1D | unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | result<<16
	}
	g, err := Open([]Request{
		{Event: PerfEvent(unix.PERF_TYPE_HW_CACHE, l1d(unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS)), Name: "L1D_access"},
		{Event: PerfEvent(unix.PERF_TYPE_HW_CACHE, l1d(unix.PERF_COUNT_HW_CACHE_RESULT_MISS)), Name: "L1D_miss"},
		{Event: EventCPUCycles},
	}, Options{})
	require.NoError(t, err)
	defer g.Close()

	k.set(0, 4000)
	k.set(1, 40)
	k.set(2, 9)
	require.NoError(t, g.Start())
	require.NoError(t, g.Stop())

	assert.Equal(t, Results{"L1D_access": 4000, "L1D_miss": 40}, g.ResultsByName())
	assert.Equal(t, Results{"RAW_0": 4000, "RAW_65536": 40, "CPU_CYCLES": 9}, g.Results())

	v, err := g.Value("L1D_miss")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), v)
	v, err = g.Value("L1D_access")
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), v)

	_, err = g.Value("CPU_CYCLES")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = g.Value("")
	assert.ErrorIs(t, err, ErrNotFound)

	rates := g.ResultsByName().MissRates()
	assert.Equal(t, map[string]float64{"L1D": 1}, rates)
}

func TestOpenPerfNamedFewerNames(t *testing.T) {
	k := installFakeKernel(t)

	g, err := OpenPerfNamed(
		[]uint32{unix.PERF_TYPE_RAW, unix.PERF_TYPE_RAW, unix.PERF_TYPE_RAW},
		[]uint64{1, 2, 3},
		[]string{"first", "second"})
	require.NoError(t, err)
	defer g.Close()
	for i := range k.opens {
		k.set(i, uint64(10*(i+1)))
	}
	require.NoError(t, g.Start())
	require.NoError(t, g.Stop())

	assert.Equal(t, Results{"first": 10, "second": 20}, g.ResultsByName())
	assert.Len(t, g.Results(), 3)
	_, err = g.Value("third")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateCustomNameLastWins(t *testing.T) {
	k := installFakeKernel(t)

	g, err := Open([]Request{
		{Event: RawEvent(1), Name: "x"},
		{Event: RawEvent(2), Name: "x"},
	}, Options{})
	require.NoError(t, err)
	defer g.Close()
	k.set(0, 1)
	k.set(1, 2)
	require.NoError(t, g.Start())
	require.NoError(t, g.Stop())

	v, err := g.Value("x")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, Results{"x": 2}, g.ResultsByName())
}

func TestMissRate(t *testing.T) {
	rate, ok := MissRate(25, 100)
	assert.True(t, ok)
	assert.Equal(t, 25.0, rate)

	rate, ok = MissRate(5, 0)
	assert.False(t, ok)
	assert.Zero(t, rate)
}

func TestDerivedRates(t *testing.T) {
	r := Results{
		"CACHE_MISSES":        10,
		"CACHE_REFERENCES":    40,
		"BRANCH_MISSES":       1,
		"BRANCH_INSTRUCTIONS": 0,
	}
	rate, ok := r.CacheMissRate()
	assert.True(t, ok)
	assert.Equal(t, 25.0, rate)

	_, ok = r.BranchMissRate()
	assert.False(t, ok)

	_, ok = Results{"CACHE_MISSES": 3}.CacheMissRate()
	assert.False(t, ok)
}

func TestMissRatesSkipsUnpaired(t *testing.T) {
	r := Results{
		"DTLB_miss":   2,
		"DTLB_access": 8,
		"ITLB_miss":   1,
		"L1I_miss":    3,
		"L1I_access":  0,
		"_miss":       4,
	}
	assert.Equal(t, map[string]float64{"DTLB": 25}, r.MissRates())
}

func TestResultsNames(t *testing.T) {
	r := Results{"b": 1, "a": 2, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}
