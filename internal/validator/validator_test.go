package validator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/deckhand/internal/validator"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateFile(t *testing.T) {
	// 1. Plain definitions document
	names, err := validator.ValidateFile(writeFile(t, `
CMD-B:
  stages:
    - name: Deploy
      actions:
        - {name: Run, type: sh, value: "true"}
CMD-A:
  stages:
    - name: Deploy
      leader_election: "true"
      actions:
        - {name: Pre, type: hook, value: pre}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"CMD-A", "CMD-B"}, names)

	// 2. Metadata document wrapping the definitions
	names, err = validator.ValidateFile(writeFile(t, `
identity: {instance_id: i-1}
command_definitions:
  CMD-Noop:
    stages:
      - name: Only
        actions: []
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"CMD-Noop"}, names)
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	defs := domain.Definitions{
		"CMD-Bad": {Stages: []domain.Stage{{
			Name:    "Only",
			Actions: []domain.Action{{Name: "Run", Type: "python", Value: "x"}},
		}}},
		"CMD-Dup": {Stages: []domain.Stage{{Name: "Deploy"}, {Name: "Deploy"}}},
		"CMD-Empty": {},
	}

	_, err := validator.Validate(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 3 errors")
	assert.Contains(t, err.Error(), `CMD-Bad: stage "Only" action "Run" has unknown type "python"`)
	assert.Contains(t, err.Error(), `CMD-Dup: duplicate stage "Deploy"`)
	assert.Contains(t, err.Error(), "CMD-Empty: definition has no stages")
}

func TestValidate_InfraNames(t *testing.T) {
	defs := domain.Definitions{
		"CMD-Deploy": {Stages: []domain.Stage{{
			Name: "Write",
			Actions: []domain.Action{
				{Name: "Fetch", Type: domain.ActionInfra, Value: "fetch_bundle"},
				{Name: "Unpack", Type: domain.ActionInfra, Value: "unpack"},
			},
		}}},
	}

	_, err := validator.Validate(defs, validator.WithInfra([]string{"fetch_bundle"}))
	assert.ErrorContains(t, err, `uses unknown infra script "unpack"`)

	_, err = validator.Validate(defs, validator.WithInfra([]string{"fetch_bundle", "unpack"}))
	assert.NoError(t, err)

	_, err = validator.Validate(defs)
	assert.NoError(t, err, "infra names are only checked when known")
}

func TestValidateFile_Errors(t *testing.T) {
	_, err := validator.ValidateFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))

	_, err = validator.ValidateFile(writeFile(t, "not: [valid"))
	assert.ErrorContains(t, err, "failed to parse")
}
