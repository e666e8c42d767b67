package access

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleSource provides the role→permission table. Sources are read once at
// resolver construction; the table is immutable afterwards.
type RoleSource interface {
	Load(ctx context.Context) (map[string][]string, error)
}

type staticRoleSource struct {
	roles map[string][]string
}

// NewStaticRoleSource creates a role source from an in-memory table. The
// input is deep-copied so later mutations by the caller have no effect.
func NewStaticRoleSource(roles map[string][]string) RoleSource {
	copied := make(map[string][]string, len(roles))
	for role, permissions := range roles {
		perms := make([]string, len(permissions))
		copy(perms, permissions)
		copied[role] = perms
	}
	return &staticRoleSource{roles: copied}
}

func (s *staticRoleSource) Load(ctx context.Context) (map[string][]string, error) {
	return s.roles, nil
}

type fileRoleSource struct {
	path string
}

// NewFileRoleSource creates a role source that reads a YAML file of the form:
//
//	roles:
//	  owner: ["*"]
//	  admin: ["org.*", "member.*"]
//	  member: ["org.read"]
func NewFileRoleSource(path string) RoleSource {
	return &fileRoleSource{path: path}
}

func (s *fileRoleSource) Load(ctx context.Context) (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role file: %w", err)
	}

	var doc struct {
		Roles map[string][]string `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse role file: %w", err)
	}

	return doc.Roles, nil
}
