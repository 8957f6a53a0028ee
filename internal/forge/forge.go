// Package forge is a minimal Bitbucket Server (Stash) REST client covering
// exactly what the bulk-patch workflow needs: listing the repositories of a
// project, checking branches, and finding or creating pull requests.
package forge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gopasspw/gopass/pkg/debug"
)

const pageLimit = 100

// Client talks to one Bitbucket Server instance with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// New creates a client for the server at baseURL. With insecure set,
// certificate verification is disabled, which some internal instances
// require.
func New(baseURL, username, password string, insecure bool) *Client {
	hc := &http.Client{Timeout: 30 * time.Second}
	if insecure {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		client:   hc,
	}
}

// Repo is one repository of a project.
type Repo struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// PullRequest describes a pull request to create.
type PullRequest struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
}

type pagedRepos struct {
	Values        []Repo `json:"values"`
	IsLastPage    bool   `json:"isLastPage"`
	NextPageStart int    `json:"nextPageStart"`
}

// ListRepos returns all repositories of the project, following pagination.
func (c *Client) ListRepos(ctx context.Context, project string) ([]Repo, error) {
	var repos []Repo
	start := 0
	for {
		endpoint := fmt.Sprintf("/rest/api/1.0/projects/%s/repos?start=%d&limit=%d", url.PathEscape(project), start, pageLimit)

		var page pagedRepos
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		repos = append(repos, page.Values...)
		if page.IsLastPage {
			return repos, nil
		}
		start = page.NextPageStart
	}
}

type branchPage struct {
	Values []struct {
		DisplayID string `json:"displayId"`
	} `json:"values"`
}

// BranchExists reports whether the named branch exists in the repository.
func (c *Client) BranchExists(ctx context.Context, project, slug, branch string) (bool, error) {
	endpoint := fmt.Sprintf("/rest/api/1.0/projects/%s/repos/%s/branches?filterText=%s",
		url.PathEscape(project), url.PathEscape(slug), url.QueryEscape(branch))

	var page branchPage
	if err := c.get(ctx, endpoint, &page); err != nil {
		return false, err
	}
	for _, b := range page.Values {
		if b.DisplayID == branch {
			return true, nil
		}
	}

	return false, nil
}

type prPage struct {
	Values []struct {
		ID      int `json:"id"`
		FromRef struct {
			DisplayID string `json:"displayId"`
		} `json:"fromRef"`
		ToRef struct {
			DisplayID string `json:"displayId"`
		} `json:"toRef"`
	} `json:"values"`
}

// FindPullRequest looks for an open pull request from source into target and
// returns its URL if one exists.
func (c *Client) FindPullRequest(ctx context.Context, project, slug, source, target string) (string, bool, error) {
	endpoint := fmt.Sprintf("/rest/api/1.0/projects/%s/repos/%s/pull-requests?state=OPEN",
		url.PathEscape(project), url.PathEscape(slug))

	var page prPage
	if err := c.get(ctx, endpoint, &page); err != nil {
		return "", false, err
	}
	for _, pr := range page.Values {
		if pr.FromRef.DisplayID == source && pr.ToRef.DisplayID == target {
			return c.prURL(project, slug, pr.ID), true, nil
		}
	}

	return "", false, nil
}

type prRef struct {
	ID         string `json:"id"`
	Repository struct {
		Slug    string `json:"slug"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"repository"`
}

type prCreateBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
	Open        bool   `json:"open"`
	Closed      bool   `json:"closed"`
	FromRef     prRef  `json:"fromRef"`
	ToRef       prRef  `json:"toRef"`
}

// CreatePullRequest opens a pull request and returns its URL.
func (c *Client) CreatePullRequest(ctx context.Context, project, slug string, pr PullRequest) (string, error) {
	body := prCreateBody{
		Title:       pr.Title,
		Description: pr.Description,
		State:       "OPEN",
		Open:        true,
	}
	body.FromRef.ID = "refs/heads/" + pr.SourceBranch
	body.FromRef.Repository.Slug = slug
	body.FromRef.Repository.Project.Key = project
	body.ToRef.ID = "refs/heads/" + pr.TargetBranch
	body.ToRef.Repository.Slug = slug
	body.ToRef.Repository.Project.Key = project

	endpoint := fmt.Sprintf("/rest/api/1.0/projects/%s/repos/%s/pull-requests",
		url.PathEscape(project), url.PathEscape(slug))

	var created struct {
		ID int `json:"id"`
	}
	if err := c.post(ctx, endpoint, body, &created); err != nil {
		return "", err
	}

	return c.prURL(project, slug, created.ID), nil
}

// CloneURL returns the HTTPS clone URL for a repository.
func (c *Client) CloneURL(project, slug string) string {
	return fmt.Sprintf("%s/scm/%s/%s.git", c.baseURL, strings.ToLower(project), slug)
}

func (c *Client) prURL(project, slug string, id int) string {
	return fmt.Sprintf("%s/projects/%s/repos/%s/pull-requests/%d", c.baseURL, project, slug, id)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(buf), out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	debug.V(1).Log("%s %s", method, endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%s %s: unexpected status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}

	return nil
}
