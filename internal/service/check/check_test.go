package check

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/service/checker"
)

type fakeFetcher struct {
	release *update.Release
	err     error
}

func (f *fakeFetcher) LatestRelease(context.Context, string) (*update.Release, error) {
	return f.release, f.err
}

// TestCheck compares the latest release with the installed version.
func TestCheck(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{release: &update.Release{Version: "1.10.0"}}

	result, err := Check(context.Background(), fetcher, "org.purejava.App", "1.9.2")
	require.NoError(t, err)
	require.True(t, result.UpdateAvailable())

	var out bytes.Buffer
	require.NoError(t, result.Write(&out))
	require.Equal(t,
		"org.purejava.App latest version: 1.10.0\ninstalled version: 1.9.2 (update available)\n",
		out.String())

	result, err = Check(context.Background(), fetcher, "org.purejava.App", "1.10.0")
	require.NoError(t, err)
	require.False(t, result.UpdateAvailable())

	// Without an installed version only the latest is printed.
	result, err = Check(context.Background(), fetcher, "org.purejava.App", "")
	require.NoError(t, err)
	require.False(t, result.UpdateAvailable())

	out.Reset()
	require.NoError(t, result.Write(&out))
	require.Equal(t, "org.purejava.App latest version: 1.10.0\n", out.String())
}

// TestCheck_Errors covers a blank app ID and fetch failures.
func TestCheck_Errors(t *testing.T) {
	t.Parallel()

	_, err := Check(context.Background(), new(fakeFetcher), " ", "")
	require.ErrorIs(t, err, checker.ErrMissingAppID)

	errFetch := errors.New("HTTP 503")

	_, err = Check(context.Background(), &fakeFetcher{err: errFetch}, "org.purejava.App", "")
	require.ErrorIs(t, err, errFetch)
}
