package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sitehq/girder/model"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// StaticPolicyEvaluator resolves capabilities from a static YAML file mapping
// roles to capability strings.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates a new evaluator that loads the
// role-to-capability policy from path.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewDefaultPolicyEvaluator creates an evaluator preloaded with the built-in
// construction-site role policy, for deployments that ship no policy file.
func NewDefaultPolicyEvaluator() *StaticPolicyEvaluator {
	return &StaticPolicyEvaluator{policy: policyFile{Roles: defaultRoles()}}
}

func defaultRoles() map[string][]string {
	return map[string][]string{
		"site_engineer":       {model.CapWorkflowTransition, model.CapScheduleEdit},
		"project_manager":     {model.CapWorkflowTransition, model.CapScheduleEdit, model.CapScheduleOverride},
		"client_director":     {model.CapWorkflowTransition, model.CapScheduleOverride},
		"qa_inspector":        {model.CapWorkflowTransition},
		"safety_officer":      {model.CapWorkflowTransition},
		"document_controller": {model.CapWorkflowTransition, model.CapScheduleEdit},
	}
}

// ResolveCapabilities returns the capability set granted to a role.
func (e *StaticPolicyEvaluator) ResolveCapabilities(role string) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, c := range e.policy.Roles[role] {
		caps[c] = true
	}
	return caps, nil
}

// Sync reloads the policy file from disk.
func (e *StaticPolicyEvaluator) Sync() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
