package ci

import (
	"log/slog"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	git "github.com/go-git/go-git/v5"
)

// Options carries the tunables the resolver needs.
type Options struct {
	// TagPrefixes are the acceptable release tag prefixes, current first.
	TagPrefixes []string
	// BranchPrefix marks feature branches (default feature/).
	BranchPrefix string
	// WorkingRoot is the checkout path, read by the container fallback
	// to determine branch and commit from HEAD.
	WorkingRoot string
}

// descriptor is one provider variant: a marker predicate plus its own
// extraction function. Resolution is a total function over the
// environment snapshot; no provider combination is supported.
type descriptor struct {
	name    Provider
	matches func(env Env) bool
	extract func(env Env, opts Options) (*BuildContext, error)
}

// providers in priority order. First match wins; the container fallback
// is deliberately last.
var providers = []descriptor{
	{ProviderTravis, func(env Env) bool { return env.Get("TRAVIS") == "true" }, extractTravis},
	{ProviderDrone, func(env Env) bool { return env.Get("DRONE") == "true" }, extractDrone},
	{ProviderAzurePipelines, func(env Env) bool { return env.Has("TF_BUILD") }, extractAzure},
	{ProviderCircleCI, func(env Env) bool { return env.Get("CIRCLECI") == "true" }, extractCircle},
	{ProviderLocalContainer, func(env Env) bool { return env.Has("IS_CONTAINER") }, extractContainer},
}

// Resolve inspects the environment snapshot and produces exactly one
// BuildContext, or fails when no provider markers match.
func Resolve(env Env, opts Options) (*BuildContext, error) {
	if !env.Has("CI") && !env.Has("IS_CONTAINER") {
		return nil, relerr.New(relerr.CategoryEnvironment,
			"not running under CI and no container markers detected")
	}

	for _, p := range providers {
		if !p.matches(env) {
			continue
		}
		ctx, err := p.extract(env, opts)
		if err != nil {
			return nil, err
		}
		ctx.Provider = p.name
		slog.Debug("Resolved CI context",
			logfields.Provider(string(ctx.Provider)),
			logfields.Branch(ctx.Branch),
			logfields.Tag(ctx.Tag),
			logfields.BuildType(string(ctx.BuildType)))
		return ctx, nil
	}

	return nil, relerr.New(relerr.CategoryProvider, "unrecognized CI environment")
}

func extractTravis(env Env, opts Options) (*BuildContext, error) {
	pr := env.Has("TRAVIS_PULL_REQUEST") && env.Get("TRAVIS_PULL_REQUEST") != "false"
	return classify(env.Get("TRAVIS_BRANCH"), env.Get("TRAVIS_COMMIT"), env.Get("TRAVIS_TAG"), pr, opts), nil
}

func extractDrone(env Env, opts Options) (*BuildContext, error) {
	return classify(env.Get("DRONE_BRANCH"), env.Get("DRONE_COMMIT"), env.Get("DRONE_TAG"), env.Has("DRONE_PULL_REQUEST"), opts), nil
}

// extractAzure handles the pipeline provider whose refs carry a
// refs/heads/ or refs/tags/ prefix. Pull requests are an explicit
// failure rather than being silently treated as branch builds.
func extractAzure(env Env, opts Options) (*BuildContext, error) {
	if env.Has("SYSTEM_PULLREQUEST_PULLREQUESTID") {
		return nil, relerr.New(relerr.CategoryUnsupported,
			"pull request builds are not supported on Azure Pipelines")
	}

	ref := env.Get("BUILD_SOURCEBRANCH")
	commit := env.Get("BUILD_SOURCEVERSION")
	if tag, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
		return classify("", commit, tag, false, opts), nil
	}
	branch := strings.TrimPrefix(ref, "refs/heads/")
	return classify(branch, commit, "", false, opts), nil
}

func extractCircle(env Env, opts Options) (*BuildContext, error) {
	return classify(env.Get("CIRCLE_BRANCH"), env.Get("CIRCLE_SHA1"), env.Get("CIRCLE_TAG"), env.Has("CIRCLE_PULL_REQUEST"), opts), nil
}

// extractContainer reads branch and commit from the checkout itself.
// Container runs never resolve a tag, so production is unreachable here
// and the comment always derives from the branch.
func extractContainer(env Env, opts Options) (*BuildContext, error) {
	repo, err := git.PlainOpen(opts.WorkingRoot)
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot open repository for container run").
			WithContext("path", opts.WorkingRoot)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot resolve HEAD for container run")
	}
	if !head.Name().IsBranch() {
		return nil, relerr.New(relerr.CategoryGit, "container runs require a checked-out branch").
			WithContext("head", head.Name().String())
	}
	return classify(head.Name().Short(), head.Hash().String(), "", false, opts), nil
}

// classify derives BuildType and comment from the extracted fields.
func classify(branch, commit, tag string, pullRequest bool, opts Options) *BuildContext {
	ctx := &BuildContext{
		Branch: branch,
		Commit: commit,
		Tag:    tag,
	}

	if tag != "" {
		ctx.BuildType = BuildTypeProduction
		ctx.Comment = releaseComment(tag, opts.TagPrefixes)
		return ctx
	}

	if opts.BranchPrefix != "" && strings.HasPrefix(branch, opts.BranchPrefix) {
		ctx.BuildType = BuildTypeFeatureBranch
	} else {
		ctx.BuildType = BuildTypeStaging
	}
	ctx.Comment = branch
	if pullRequest {
		ctx.Comment += ".pull.request.test"
	}
	return ctx
}

// releaseComment extracts the release name from a version tag: strip the
// first matching prefix, keep the segment before the first slash, append
// the production marker.
func releaseComment(tag string, prefixes []string) string {
	name := stripAnyPrefix(tag, prefixes)
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	return name + ".production"
}

// stripAnyPrefix tries each acceptable prefix in order and uses
// whichever replacement changed the string. Stripping an absent prefix
// leaves the string untouched.
func stripAnyPrefix(s string, prefixes []string) string {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if replaced := strings.Replace(s, p, "", 1); replaced != s {
			return replaced
		}
	}
	return s
}
