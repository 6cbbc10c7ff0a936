// Package ci resolves the build context for a run from the environment
// of whichever CI provider executed it.
package ci

import (
	"os"
	"strings"
)

// Provider identifies the CI system that triggered the run.
type Provider string

const (
	ProviderTravis         Provider = "travis"
	ProviderDrone          Provider = "drone"
	ProviderAzurePipelines Provider = "azure-pipelines"
	ProviderCircleCI       Provider = "circleci"
	ProviderLocalContainer Provider = "container"
)

// BuildType classifies the intent of a CI run.
type BuildType string

const (
	BuildTypeFeatureBranch BuildType = "feature-branch"
	BuildTypeStaging       BuildType = "staging"
	BuildTypeProduction    BuildType = "production"
)

// BuildContext is the resolved, read-only description of the run.
// Tag is non-empty exactly when BuildType is BuildTypeProduction.
type BuildContext struct {
	Provider  Provider
	Branch    string
	Commit    string
	Tag       string
	Comment   string
	BuildType BuildType
}

// IsProduction reports whether this run builds from a release tag.
func (c *BuildContext) IsProduction() bool {
	return c.BuildType == BuildTypeProduction
}

// Env is an immutable snapshot of environment variables.
type Env map[string]string

// Get returns the value for key, or "" when unset.
func (e Env) Get(key string) string { return e[key] }

// Has reports whether key is set to a non-empty value.
func (e Env) Has(key string) bool { return e[key] != "" }

// Snapshot captures the current process environment as an Env.
func Snapshot() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
