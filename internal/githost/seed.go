// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// SeedRepository fills a freshly created repository with the contents of a
// template repository. The template's default branch is cloned into memory
// and pushed to the target; nothing touches the local filesystem.
func (c *Client) SeedRepository(ctx context.Context, org, repo, templateURL string) error {
	cloneOpts := &git.CloneOptions{
		URL:          templateURL,
		SingleBranch: true,
	}
	// Templates hosted on the git host itself may be private.
	if strings.HasPrefix(templateURL, c.baseURL) {
		cloneOpts.Auth = c.gitAuth()
	}

	src, err := git.CloneContext(ctx, memory.NewStorage(), nil, cloneOpts)
	if err != nil {
		return fmt.Errorf("failed to clone template %q: %w", templateURL, err)
	}

	pushURL := c.baseURL + "/" + org + "/" + repo + ".git"
	err = src.PushContext(ctx, &git.PushOptions{
		RemoteURL: pushURL,
		RefSpecs:  []config.RefSpec{"refs/heads/*:refs/heads/*"},
		Auth:      c.gitAuth(),
		Force:     true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push template to %s/%s: %w", org, repo, err)
	}

	c.logger.Info("seeded repository from template", "org", org, "repo", repo, "template", templateURL)
	return nil
}

func (c *Client) gitAuth() transport.AuthMethod {
	if c.adminUsername != "" {
		return &githttp.BasicAuth{Username: c.adminUsername, Password: c.adminPassword}
	}
	return &githttp.BasicAuth{Username: "oauth2", Password: c.token}
}
