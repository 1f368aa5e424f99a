// Package ghclient wraps the GitHub REST API surface Hookyard's workers
// need: pull request diffs, issue and comment CRUD, labels, and file
// contents on a branch.
package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/hookyard/hookyard/internal/retry"
	"golang.org/x/oauth2"
)

// Client wraps a go-github client authenticated with a single long-lived
// personal access token, per spec.md §6.
type Client struct {
	gh       *github.Client
	retryCfg retry.Config
}

// New builds a Client authenticated with token. If apiBaseURL is non-empty
// (e.g. for a GitHub Enterprise instance or a test server), it overrides
// the default api.github.com endpoint.
func New(token, apiBaseURL string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	gh := github.NewClient(tc)
	if apiBaseURL != "" {
		u, err := url.Parse(apiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("ghclient: configure base URL %q: %w", apiBaseURL, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}

	return &Client{gh: gh, retryCfg: retry.DefaultConfig()}, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("ghclient: repo %q must be in owner/name form", repo)
}

// PullRequest returns the pull request identified by repo/number.
func (c *Client) PullRequest(ctx context.Context, repo string, number int) (*github.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var pr *github.PullRequest
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		pr, _, e = c.gh.PullRequests.Get(ctx, owner, name, number)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: get PR %s#%d: %w", repo, number, err)
	}
	return pr, nil
}

// PullRequestDiff returns the raw unified diff for a pull request.
func (c *Client) PullRequestDiff(ctx context.Context, repo string, number int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	var diff string
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		raw, _, e := c.gh.PullRequests.GetRaw(ctx, owner, name, number, github.RawOptions{Type: github.Diff})
		diff = raw
		return e
	})
	if err != nil {
		return "", fmt.Errorf("ghclient: get PR diff %s#%d: %w", repo, number, err)
	}
	return diff, nil
}

// CreateIssueComment posts a new comment on an issue or pull request.
func (c *Client) CreateIssueComment(ctx context.Context, repo string, number int, body string) (*github.IssueComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var comment *github.IssueComment
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		comment, _, e = c.gh.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{Body: &body})
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: create comment on %s#%d: %w", repo, number, err)
	}
	return comment, nil
}

// AddLabels applies labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		_, _, e := c.gh.Issues.AddLabelsToIssue(ctx, owner, name, number, labels)
		return e
	})
	if err != nil {
		return fmt.Errorf("ghclient: add labels to %s#%d: %w", repo, number, err)
	}
	return nil
}

// Issue returns the issue identified by repo/number.
func (c *Client) Issue(ctx context.Context, repo string, number int) (*github.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var issue *github.Issue
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		issue, _, e = c.gh.Issues.Get(ctx, owner, name, number)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: get issue %s#%d: %w", repo, number, err)
	}
	return issue, nil
}

// CreateIssue creates a new issue in repo.
func (c *Client) CreateIssue(ctx context.Context, repo string, req *github.IssueRequest) (*github.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var issue *github.Issue
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		issue, _, e = c.gh.Issues.Create(ctx, owner, name, req)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: create issue in %s: %w", repo, err)
	}
	return issue, nil
}

// IssueComments lists all comments on an issue, following pagination.
func (c *Client) IssueComments(ctx context.Context, repo string, number int) ([]*github.IssueComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var all []*github.IssueComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page []*github.IssueComment
		var resp *github.Response
		err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
			var e error
			page, resp, e = c.gh.Issues.ListComments(ctx, owner, name, number, opts)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("ghclient: list comments on %s#%d: %w", repo, number, err)
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// FileContents fetches a file's decoded content from a specific branch. It
// returns the content, the blob SHA (needed for updates), and whether the
// file existed.
func (c *Client) FileContents(ctx context.Context, repo, path, branch string) (content []byte, sha string, found bool, err error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, "", false, err
	}

	var fileContent *github.RepositoryContent
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		fileContent, _, _, e = c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: branch})
		return e
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("ghclient: get contents %s/%s@%s: %w", repo, path, branch, err)
	}

	decoded, err := fileContent.GetContent()
	if err != nil {
		return nil, "", false, fmt.Errorf("ghclient: decode contents %s/%s@%s: %w", repo, path, branch, err)
	}
	return []byte(decoded), fileContent.GetSHA(), true, nil
}

// UploadFile creates or updates a file on branch, matching the original
// system's get-or-create-by-sha upload flow.
func (c *Client) UploadFile(ctx context.Context, repo, path, branch, message string, content []byte) (*github.RepositoryContentResponse, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	_, sha, found, err := c.FileContents(ctx, repo, path, branch)
	if err != nil {
		return nil, err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: &message,
		Content: content,
		Branch:  &branch,
	}
	if found {
		opts.SHA = &sha
	}

	var result *github.RepositoryContentResponse
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var e error
		result, _, e = c.gh.Repositories.CreateFile(ctx, owner, name, path, opts)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: upload file %s/%s@%s: %w", repo, path, branch, err)
	}
	return result, nil
}

// EnsureBranch creates branch (from the repo's default branch HEAD) if it
// does not already exist.
func (c *Client) EnsureBranch(ctx context.Context, repo, branch string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != 404 {
		return fmt.Errorf("ghclient: check branch %s on %s: %w", branch, repo, err)
	}

	repoInfo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return fmt.Errorf("ghclient: get repo %s: %w", repo, err)
	}
	defaultBranch := repoInfo.GetDefaultBranch()

	defaultRef, _, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+defaultBranch)
	if err != nil {
		return fmt.Errorf("ghclient: get default branch ref on %s: %w", repo, err)
	}

	newRef := &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: defaultRef.Object.SHA},
	}
	_, _, err = c.gh.Git.CreateRef(ctx, owner, name, newRef)
	if err != nil {
		return fmt.Errorf("ghclient: create branch %s on %s: %w", branch, repo, err)
	}
	return nil
}

// isNotFound reports whether err represents a GitHub 404 response.
func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	return ghErr.Response.StatusCode == 404
}
