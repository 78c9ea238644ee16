// Package registry resolves version tags and digests against a container
// registry.
package registry

import (
	"context"
	"fmt"
	"sort"

	mvc "github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Resolver talks to a container registry to compute the next release
// version and to look up image digests.
type Resolver struct {
	auth remote.Option
}

// NewResolver returns a resolver authenticating with the given credentials.
// With empty credentials it falls back to the standard docker config
// (~/.docker/config.json).
func NewResolver(user, pass string) *Resolver {
	if user == "" && pass == "" {
		return &Resolver{auth: remote.WithAuthFromKeychain(authn.DefaultKeychain)}
	}
	return &Resolver{auth: remote.WithAuth(&authn.Basic{Username: user, Password: pass})}
}

// NextVersion lists the repository's tags and returns the current highest
// semver tag with its patch number bumped. A repository with no semver
// tags starts at 0.1.0.
func (r *Resolver) NextVersion(ctx context.Context, repository string) (string, error) {
	repo, err := parseRepo(repository)
	if err != nil {
		return "", err
	}
	tags, err := remote.List(repo, r.auth, remote.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list tags for %s: %w", repo.Name(), err)
	}
	return nextVersion(tags), nil
}

// Digest returns the manifest digest for the given image reference.
func (r *Resolver) Digest(ctx context.Context, image string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	desc, err := remote.Head(ref, r.auth, remote.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest for %s: %w", image, err)
	}
	return desc.Digest.String(), nil
}

func parseRepo(repository string) (name.Repository, error) {
	ref, err := name.ParseReference(repository)
	if err != nil {
		return name.Repository{}, fmt.Errorf("invalid repository %q: %w", repository, err)
	}
	return ref.Context(), nil
}

// nextVersion picks the highest semver tag and bumps its patch number.
// Non-semver tags (e.g. "latest", "alpine") are skipped.
func nextVersion(tags []string) string {
	var versions []*mvc.Version
	for _, t := range tags {
		v, err := mvc.NewVersion(t)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "0.1.0"
	}
	sort.Sort(mvc.Collection(versions))
	next := versions[len(versions)-1].IncPatch()
	return next.String()
}
