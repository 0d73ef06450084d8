package update

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestProgressFromMap decodes a complete and a partial vardict.
func TestProgressFromMap(t *testing.T) {
	t.Parallel()

	p := ProgressFromMap(map[string]any{
		KeyOps:          uint32(3),
		KeyOp:           uint32(1),
		KeyProgress:     uint32(40),
		KeyStatus:       uint32(StatusFailed),
		KeyError:        "org.freedesktop.DBus.Error.Failed",
		KeyErrorMessage: "boom",
	})

	require.Equal(t, uint32(3), p.Ops)
	require.Equal(t, uint32(1), p.Op)
	require.Equal(t, uint32(40), p.Percent)
	require.Equal(t, StatusFailed, p.Status)
	require.True(t, p.Status.Terminal())
	require.Equal(t, "boom", p.ErrorMessage)

	// Wrong types and missing keys are ignored.
	p = ProgressFromMap(map[string]any{KeyOps: "three", KeyStatus: int32(-1)})
	require.Equal(t, Progress{}, p)
	require.Equal(t, "running", p.Status.String())
	require.False(t, p.Status.Terminal())
}

// TestUpdateInfoFromMap decodes commits and checks Installed.
func TestUpdateInfoFromMap(t *testing.T) {
	t.Parallel()

	info := UpdateInfoFromMap(map[string]any{
		KeyRunningCommit: "aaa",
		KeyLocalCommit:   "bbb",
		KeyRemoteCommit:  "bbb",
	})

	require.Equal(t, "aaa", info.RunningCommit)
	require.True(t, info.Installed())

	info.LocalCommit = "aaa"
	require.False(t, info.Installed())

	cloned := info.Clone()
	require.Equal(t, &info, cloned)
	require.NotSame(t, &info, cloned)
	require.Nil(t, (*UpdateInfo)(nil).Clone())
}

// TestProgressFromMap_OutOfRange keeps zero values for numbers beyond uint32.
func TestProgressFromMap_OutOfRange(t *testing.T) {
	t.Parallel()

	p := ProgressFromMap(map[string]any{
		KeyOps:      uint64(1) << 32,
		KeyOp:       int64(1) << 33,
		KeyProgress: float64(1 << 40),
		KeyStatus:   uint64(StatusDone),
	})

	require.Equal(t, Progress{Status: StatusDone}, p)

	p = ProgressFromMap(map[string]any{KeyOps: uint64(7), KeyOp: int64(2), KeyProgress: float64(55)})
	require.Equal(t, Progress{Ops: 7, Op: 2, Percent: 55}, p)
}
