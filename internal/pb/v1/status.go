package v1

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
)

// Service and method names of the status API.
const (
	StatusServiceName = "flatpakupdater.v1.StatusService"

	StatusService_GetStatus_FullMethodName     = "/" + StatusServiceName + "/GetStatus"     //nolint:revive,stylecheck // Generated-style name.
	StatusService_RequestUpdate_FullMethodName = "/" + StatusServiceName + "/RequestUpdate" //nolint:revive,stylecheck // Generated-style name.
)

// Status struct fields.
const (
	FieldAppID            = "app_id"
	FieldInstalledVersion = "installed_version"
	FieldLatestVersion    = "latest_version"
	FieldUpdateAvailable  = "update_available"
	FieldUpdateInfo       = "update_info"
	FieldProgress         = "progress"
	FieldCheckedAt        = "checked_at"
	FieldLastError        = "last_error"
)

// Update request fields.
const (
	FieldParentWindow = "parent_window"
	FieldRequestedBy  = "requested_by"
)

// ErrNilStatus is returned when a nil status is encoded.
var ErrNilStatus = errors.New("status is nil")

// StatusToStruct encodes a status snapshot.
func StatusToStruct(status *update.Status) (*structpb.Struct, error) {
	if status == nil {
		return nil, ErrNilStatus
	}

	fields := map[string]any{
		FieldAppID:            status.AppID,
		FieldInstalledVersion: status.InstalledVersion,
		FieldLatestVersion:    status.LatestVersion,
		FieldUpdateAvailable:  status.UpdateAvailable,
		FieldLastError:        status.LastError,
	}

	if !status.CheckedAt.IsZero() {
		fields[FieldCheckedAt] = status.CheckedAt.UTC().Format(time.RFC3339Nano)
	}

	if info := status.UpdateInfo; info != nil {
		fields[FieldUpdateInfo] = map[string]any{
			update.KeyRunningCommit: info.RunningCommit,
			update.KeyLocalCommit:   info.LocalCommit,
			update.KeyRemoteCommit:  info.RemoteCommit,
		}
	}

	if progress := status.Progress; progress != nil {
		fields[FieldProgress] = map[string]any{
			update.KeyOps:          progress.Ops,
			update.KeyOp:           progress.Op,
			update.KeyProgress:     progress.Percent,
			update.KeyStatus:       uint32(progress.Status),
			update.KeyError:        progress.Error,
			update.KeyErrorMessage: progress.ErrorMessage,
		}
	}

	message, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}

	return message, nil
}

// StatusFromStruct decodes a status snapshot. Unknown fields are ignored.
func StatusFromStruct(message *structpb.Struct) (*update.Status, error) {
	values := message.AsMap()

	status := &update.Status{
		AppID:            stringField(values, FieldAppID),
		InstalledVersion: stringField(values, FieldInstalledVersion),
		LatestVersion:    stringField(values, FieldLatestVersion),
		LastError:        stringField(values, FieldLastError),
	}

	status.UpdateAvailable, _ = values[FieldUpdateAvailable].(bool)

	if raw := stringField(values, FieldCheckedAt); raw != "" {
		checkedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", FieldCheckedAt, err)
		}

		status.CheckedAt = checkedAt
	}

	if nested, ok := values[FieldUpdateInfo].(map[string]any); ok {
		info := update.UpdateInfoFromMap(nested)
		status.UpdateInfo = &info
	}

	if nested, ok := values[FieldProgress].(map[string]any); ok {
		progress := update.ProgressFromMap(nested)
		status.Progress = &progress
	}

	return status, nil
}

// NewUpdateRequest builds the RequestUpdate payload.
func NewUpdateRequest(parentWindow, requestedBy string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldParentWindow: structpb.NewStringValue(parentWindow),
			FieldRequestedBy:  structpb.NewStringValue(requestedBy),
		},
	}
}

// ParseUpdateRequest extracts the RequestUpdate payload fields.
func ParseUpdateRequest(message *structpb.Struct) (parentWindow, requestedBy string) {
	fields := message.GetFields()

	return strings.TrimSpace(fields[FieldParentWindow].GetStringValue()),
		strings.TrimSpace(fields[FieldRequestedBy].GetStringValue())
}

func stringField(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}
