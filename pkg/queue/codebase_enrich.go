package queue

// EnrichCodebase fills in a codebase's Description/DefaultBranch from GitHub
// when Path looks like a GitHub remote. Best-effort: any failure (rate
// limit, private repo, not a GitHub URL at all) is logged and swallowed —
// watch mode and task dispatch must never depend on this succeeding.

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v60/github"
)

var githubRemotePattern = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/.]+)(\.git)?/?$`)

// EnrichCodebase best-effort populates cb.Description/DefaultBranch via the
// GitHub API when cb.Path matches a github.com remote URL. client may be
// nil, in which case an unauthenticated client is used (subject to GitHub's
// unauthenticated rate limit).
func EnrichCodebase(ctx context.Context, client *github.Client, cb *Codebase) {
	owner, repo, ok := parseGitHubRemote(cb.Path)
	if !ok {
		return
	}

	if client == nil {
		client = github.NewClient(nil)
	}

	repoInfo, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		log.Warn("codebase enrichment: github lookup failed", "codebase_id", cb.ID, "owner", owner, "repo", repo, "err", err)
		return
	}

	if repoInfo.GetDescription() != "" {
		cb.Description = repoInfo.GetDescription()
	}
	if repoInfo.GetDefaultBranch() != "" {
		cb.DefaultBranch = repoInfo.GetDefaultBranch()
	}
}

func parseGitHubRemote(path string) (owner, repo string, ok bool) {
	if !strings.Contains(path, "github.com") {
		return "", "", false
	}
	m := githubRemotePattern.FindStringSubmatch(path)
	if len(m) < 3 {
		return "", "", false
	}
	return m[1], m[2], true
}
