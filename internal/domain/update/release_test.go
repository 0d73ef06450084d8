package update

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCompareVersions covers semantic and dotted fallbacks.
func TestCompareVersions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"3.0.4", "3.0.4", 0},
		{"3.0.10", "3.0.4", 1},
		{"v2.10", "2.9.9", 1},
		{"1.2", "1.2.0", 0},
		{"2024.1.2.3", "2024.1.2.10", -1},
		{"1.0.0.1", "1.0.0", 1},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, CompareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

// TestReleaseNewerThan checks empty and nil handling.
func TestReleaseNewerThan(t *testing.T) {
	t.Parallel()

	r := &Release{Version: "3.0.4", Timestamp: time.Unix(1751241600, 0)}

	require.True(t, r.NewerThan(""))
	require.True(t, r.NewerThan("3.0.2"))
	require.False(t, r.NewerThan("3.0.4"))
	require.False(t, (*Release)(nil).NewerThan("1.0"))
}

// TestStatusClone verifies nested pointers are copied.
func TestStatusClone(t *testing.T) {
	t.Parallel()

	s := &Status{
		AppID:      "org.example.App",
		UpdateInfo: &UpdateInfo{RemoteCommit: "abc"},
		Progress:   &Progress{Percent: 10},
	}

	c := s.Clone()
	require.Equal(t, s, c)
	require.NotSame(t, s.UpdateInfo, c.UpdateInfo)
	require.NotSame(t, s.Progress, c.Progress)
	require.Nil(t, (*Status)(nil).Clone())
}
