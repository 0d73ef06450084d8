package v1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
)

// TestStatus_ThroughJSON encodes a full status, passes it through protojson
// and decodes it again, so numbers come back as JSON doubles.
func TestStatus_ThroughJSON(t *testing.T) {
	t.Parallel()

	want := &update.Status{
		AppID:            "org.purejava.App",
		InstalledVersion: "1.2.0",
		LatestVersion:    "1.3.0",
		UpdateAvailable:  true,
		UpdateInfo: &update.UpdateInfo{
			RunningCommit: "aaa",
			LocalCommit:   "aaa",
			RemoteCommit:  "bbb",
		},
		Progress: &update.Progress{
			Ops:          3,
			Op:           2,
			Percent:      75,
			Status:       update.StatusFailed,
			Error:        "org.freedesktop.DBus.Error.Failed",
			ErrorMessage: "no space left",
		},
		CheckedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		LastError: "previous failure",
	}

	message, err := StatusToStruct(want)
	require.NoError(t, err)

	data, err := protojson.Marshal(message)
	require.NoError(t, err)

	var decoded structpb.Struct
	require.NoError(t, protojson.Unmarshal(data, &decoded))

	got, err := StatusFromStruct(&decoded)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestStatus_Minimal leaves optional parts unset.
func TestStatus_Minimal(t *testing.T) {
	t.Parallel()

	message, err := StatusToStruct(&update.Status{AppID: "org.example.App"})
	require.NoError(t, err)
	require.NotContains(t, message.GetFields(), FieldCheckedAt)
	require.NotContains(t, message.GetFields(), FieldProgress)

	got, err := StatusFromStruct(message)
	require.NoError(t, err)
	require.Equal(t, &update.Status{AppID: "org.example.App"}, got)

	_, err = StatusToStruct(nil)
	require.ErrorIs(t, err, ErrNilStatus)

	got, err = StatusFromStruct(nil)
	require.NoError(t, err)
	require.Equal(t, &update.Status{}, got)
}

// TestStatusFromStruct_BadTime rejects malformed timestamps.
func TestStatusFromStruct_BadTime(t *testing.T) {
	t.Parallel()

	message, err := structpb.NewStruct(map[string]any{FieldCheckedAt: "yesterday"})
	require.NoError(t, err)

	_, err = StatusFromStruct(message)
	require.ErrorContains(t, err, FieldCheckedAt)
}

// TestUpdateRequest trims the payload fields.
func TestUpdateRequest(t *testing.T) {
	t.Parallel()

	window, actor := ParseUpdateRequest(NewUpdateRequest(" wayland:abc ", "user@host"))
	require.Equal(t, "wayland:abc", window)
	require.Equal(t, "user@host", actor)

	window, actor = ParseUpdateRequest(nil)
	require.Empty(t, window)
	require.Empty(t, actor)
}
