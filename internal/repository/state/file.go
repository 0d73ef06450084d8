package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	pb "github.com/oshokin/flatpak-updater/internal/pb/v1"
)

// Repository defines persistence operations for the watcher status.
type Repository interface {
	Load(ctx context.Context) (*update.Status, error)
	Save(ctx context.Context, status *update.Status) error
}

// FileRepository persists the watcher status to a JSON file on disk.
// JSON is produced and consumed via protobuf JSON (protojson) so the file
// matches what the status API returns.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("state not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the state file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the status from disk.
func (r *FileRepository) Load(_ context.Context) (*update.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var message structpb.Struct
	if err = protojson.Unmarshal(contents, &message); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	status, err := pb.StatusFromStruct(&message)
	if err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return status, nil
}

// Save writes the status to disk using JSON representation. The file is
// replaced atomically so a concurrent reader never sees a partial write.
func (r *FileRepository) Save(_ context.Context, status *update.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, err := pb.StatusToStruct(status)
	if err != nil {
		return err
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	temporary := r.path + ".tmp"
	if err = os.WriteFile(temporary, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(temporary, r.path); err != nil {
		//nolint:errcheck // The rename error is reported.
		_ = os.Remove(temporary)

		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}
