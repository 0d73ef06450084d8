package checker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrMissingAppID is returned when a blank app ID is given.
	ErrMissingAppID = errors.New("app ID is missing")
	// ErrTaskNotSet is returned when Get is called before Set.
	ErrTaskNotSet = errors.New("update checker task was not set")
	// ErrUnknownApp is returned when the stored task belongs to another app.
	ErrUnknownApp = errors.New("no update checker task for app")
)

// Registry holds the update checker task of the current application.
type Registry struct {
	// factory builds a task for an app ID.
	factory func(appID string) *Task

	mu   sync.Mutex
	task *Task
}

// NewRegistry creates a registry building tasks with factory.
func NewRegistry(factory func(appID string) *Task) *Registry {
	return &Registry{factory: factory}
}

// Set replaces the stored task with a new one for appID. A previous task is
// canceled.
func (r *Registry) Set(appID string) *Task {
	task := r.factory(appID)

	r.mu.Lock()
	previous := r.task
	r.task = task
	r.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}

	return task
}

// AppID returns the app ID of the stored task.
func (r *Registry) AppID(appID string) (string, error) {
	if strings.TrimSpace(appID) == "" {
		return "", ErrMissingAppID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.task == nil {
		return "", ErrTaskNotSet
	}

	return r.task.AppID(), nil
}

// IsAppID reports whether the stored task checks appID.
func (r *Registry) IsAppID(appID string) bool {
	stored, err := r.AppID(appID)

	return err == nil && stored == appID
}

// Get returns the stored task when it checks appID.
func (r *Registry) Get(appID string) (*Task, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, ErrMissingAppID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.task == nil {
		return nil, ErrTaskNotSet
	}

	if r.task.AppID() != appID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}

	return r.task, nil
}
