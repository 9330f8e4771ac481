package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/trinsiklabs/onelist/internal/config"
)

// Identity is the provenance tuple stamped onto every Store request.
// It is fixed at client construction: downstream tool code cannot forge it.
type Identity struct {
	Kind       string // agent kind tag, e.g. "claude-code"
	Version    string // runtime version
	InstanceID string // stable per host installation
	SubagentID string // set when acting for a named sub-agent
}

// LoadIdentity assembles the identity for this installation: kind and
// sub-agent from config, instance id from the persisted marker.
func LoadIdentity(cfg *config.Config, version string) (Identity, error) {
	instanceID, err := LoadOrCreateInstanceID(cfg.OneListHomePath())
	if err != nil {
		return Identity{}, fmt.Errorf("load instance id: %w", err)
	}
	return Identity{
		Kind:       cfg.Agent.Kind,
		Version:    version,
		InstanceID: instanceID,
		SubagentID: cfg.Agent.SubagentID,
	}, nil
}

// LoadOrCreateInstanceID returns the stable installation identifier,
// creating {home}/instance-id on first run.
func LoadOrCreateInstanceID(home string) (string, error) {
	path := filepath.Join(home, "instance-id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", err
	}
	id := uuid.Must(uuid.NewV7()).String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", err
	}
	return id, nil
}
