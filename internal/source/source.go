// Package source turns bundle locations into local directories, cloning git
// locations into a cache.
package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/namespace"
)

var sshGitPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)

// Resolver maps bundle locations to directories.
type Resolver struct {
	// BaseDir anchors relative local paths.
	BaseDir string
	// CacheDir receives clones, one directory per namespace.
	CacheDir string
	// Depth limits network clones. Zero clones full history.
	Depth int

	logger *logger.Logger
}

// NewResolver returns a resolver performing shallow network clones.
func NewResolver(baseDir, cacheDir string, log *logger.Logger) *Resolver {
	return &Resolver{BaseDir: baseDir, CacheDir: cacheDir, Depth: 1, logger: log.Component("source")}
}

// IsRemote reports whether location names a git repository rather than a local path.
func IsRemote(location string) bool {
	if sshGitPattern.MatchString(location) {
		return true
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ssh", "git", "file":
		return true
	}
	return false
}

// Resolve returns the directory holding the bundle at location. Local paths
// are made absolute; git locations are cloned into CacheDir, reusing an
// existing clone of the same remote.
func (r *Resolver) Resolve(ctx context.Context, location string) (string, error) {
	if !IsRemote(location) {
		return r.local(location)
	}
	return r.clone(ctx, location)
}

func (r *Resolver) local(location string) (string, error) {
	dir := location
	if !filepath.IsAbs(dir) && r.BaseDir != "" {
		dir = filepath.Join(r.BaseDir, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve bundle path %s: %w", location, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("bundle path %s: %w", location, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bundle path %s is not a directory", location)
	}
	return abs, nil
}

func (r *Resolver) clone(ctx context.Context, location string) (string, error) {
	if r.CacheDir == "" {
		return "", fmt.Errorf("cache directory is required to fetch %s", location)
	}
	ns := namespace.Derive(location)
	if ns == "" {
		return "", fmt.Errorf("cannot derive a directory name from %s", location)
	}
	dest := filepath.Join(r.CacheDir, ns)

	switch reusable, err := r.existingClone(dest, location); {
	case err != nil:
		return "", err
	case reusable:
		r.logger.WithFields(map[string]any{"location": location, "dir": dest}).Debug("reusing cached bundle clone")
		return dest, nil
	}

	if err := os.MkdirAll(r.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	opts := &git.CloneOptions{URL: location}
	if r.Depth > 0 && !strings.HasPrefix(strings.ToLower(location), "file://") {
		opts.Depth = r.Depth
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("clone %s: %w", location, err)
	}

	r.logger.WithFields(map[string]any{"location": location, "dir": dest}).Info("bundle cloned")
	return dest, nil
}

// existingClone reports whether dest already holds a clone of location.
// Anything else found at dest is removed.
func (r *Resolver) existingClone(dest, location string) (bool, error) {
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("cannot access %s: %w", dest, err)
	}

	if repo, err := git.PlainOpen(dest); err == nil {
		remote, err := repo.Remote(git.DefaultRemoteName)
		if err == nil && len(remote.Config().URLs) > 0 && remote.Config().URLs[0] == location {
			return true, nil
		}
	}

	r.logger.With("dir", dest).Warn("cache entry does not match bundle location, re-cloning")
	if err := os.RemoveAll(dest); err != nil {
		return false, fmt.Errorf("failed to remove stale clone: %w", err)
	}
	return false, nil
}
