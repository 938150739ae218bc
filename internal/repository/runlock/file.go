package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/oneclick/internal/config"
)

// Filename is the lock file created in the application directory.
const Filename = "oneclick-run.lock"

var (
	// ErrNotFound is returned when no lock file exists.
	ErrNotFound = errors.New("run lock not found")
	// ErrExists is returned by Create when another record is already stored.
	ErrExists = errors.New("run lock already exists")
)

// Record describes the invocation holding the lock.
type Record struct {
	PID       int
	RunID     string
	StartedAt time.Time
}

// FileRepository persists the lock Record to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the lock file.
	path string
	// mu protects concurrent access to the lock file within the process.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the lock file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read lock file: %w", err)
	}

	var message structpb.Struct
	if err = protojson.Unmarshal(contents, &message); err != nil {
		return nil, fmt.Errorf("decode lock file: %w", err)
	}

	return fromProto(&message), nil
}

// Create writes record unless a lock file already exists.
func (r *FileRepository) Create(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, err := toProto(record)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	data, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}

		return fmt.Errorf("create lock file: %w", err)
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("write lock file: %w", err)
	}

	return file.Close()
}

// Remove deletes the lock file. A missing file is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}

// fromProto converts the stored struct into a Record. Unknown or malformed fields are left zero.
func fromProto(message *structpb.Struct) *Record {
	fields := message.GetFields()

	record := &Record{
		PID:   int(fields["pid"].GetNumberValue()),
		RunID: fields["run_id"].GetStringValue(),
	}

	if startedAt, err := time.Parse(time.RFC3339Nano, fields["started_at"].GetStringValue()); err == nil {
		record.StartedAt = startedAt
	}

	return record
}

// toProto converts a Record into its stored struct.
func toProto(record *Record) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"pid":        record.PID,
		"run_id":     record.RunID,
		"started_at": record.StartedAt.UTC().Format(time.RFC3339Nano),
	})
}
