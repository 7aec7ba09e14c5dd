// Package secrets resolves vendor credentials through the Doppler CLI
package secrets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const lookupTimeout = 5 * time.Second

// Runner executes the doppler CLI and returns its stdout
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func execRunner(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "doppler", args...).Output()
}

// DopplerClient provides access to secrets stored in Doppler
type DopplerClient struct {
	Project string
	Config  string

	run         Runner
	lookPath    func(string) (string, error)
	initialized bool

	mu    sync.Mutex
	cache map[string]string
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project:  project,
		Config:   config,
		run:      execRunner,
		lookPath: exec.LookPath,
		cache:    make(map[string]string),
	}
}

// WithRunner replaces the CLI runner
func (d *DopplerClient) WithRunner(run Runner) *DopplerClient {
	d.run = run
	d.lookPath = func(string) (string, error) { return "doppler", nil }
	return d
}

// Initialize checks that the Doppler CLI is installed
func (d *DopplerClient) Initialize() error {
	if _, err := d.lookPath("doppler"); err != nil {
		return fmt.Errorf("doppler CLI not found: %w", err)
	}
	d.initialized = true
	return nil
}

// GetSecret returns the secret from the environment (doppler run) or the CLI.
// CLI results are cached for the life of the process.
func (d *DopplerClient) GetSecret(key string) (string, error) {
	if !d.initialized {
		if err := d.Initialize(); err != nil {
			return "", err
		}
	}

	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if value, ok := d.cache[key]; ok {
		return value, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	output, err := d.run(ctx, "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	value := strings.TrimSpace(string(output))
	d.cache[key] = value
	return value, nil
}

// GetSecretWithFallback gets a secret from Doppler with a fallback value
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	value, err := d.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
