// Command confpatch applies a declarative change ruleset to many
// repositories and drives the branch/commit/push/pull-request workflow for
// each one. Credentials are read from the CONFPATCH_USERNAME and
// CONFPATCH_PASSWORD environment variables.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gopasspw/gopass/pkg/debug"

	"github.com/confpatch/confpatch"
	"github.com/confpatch/confpatch/internal/forge"
	"github.com/confpatch/confpatch/internal/gitops"
)

type options struct {
	rulesFile   string
	reposFile   string
	baseURL     string
	project     string
	cloneDir    string
	keepClones  bool
	dryRun      bool
	insecure    bool
	authorName  string
	authorEmail string
}

type result struct {
	repo     string
	status   string // success, skipped, failed
	detail   string
	modified []string
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var opts options
	fs := flag.NewFlagSet("confpatch", flag.ExitOnError)
	fs.StringVar(&opts.rulesFile, "rules", "rules.yaml", "path to the ruleset file")
	fs.StringVar(&opts.reposFile, "repos-file", "", "file with one PROJECT/slug or clone URL per line (overrides the ruleset's repo list)")
	fs.StringVar(&opts.baseURL, "base-url", "", "base URL of the Bitbucket Server instance")
	fs.StringVar(&opts.project, "project", "", "process every repository of this project (instead of an explicit repo list)")
	fs.StringVar(&opts.cloneDir, "clone-dir", "", "directory to clone into (default: a temporary directory)")
	fs.BoolVar(&opts.keepClones, "keep-clones", false, "keep cloned repositories after the run")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "clone and compute changes but do not write, commit, push or create pull requests")
	fs.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	fs.StringVar(&opts.authorName, "author-name", "confpatch", "git author name for commits")
	fs.StringVar(&opts.authorEmail, "author-email", "confpatch@localhost", "git author email for commits")

	branch := fs.String("branch", "", "override the ruleset's feature branch name")
	base := fs.String("base-branch", "", "override the ruleset's base branch")
	commitMsg := fs.String("commit-message", "", "override the ruleset's commit message")
	prTitle := fs.String("pr-title", "", "override the ruleset's pull request title")
	prBody := fs.String("pr-body", "", "override the ruleset's pull request body")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rs, err := confpatch.LoadRuleset(opts.rulesFile)
	if err != nil {
		return err
	}
	override(&rs.Branch, *branch)
	override(&rs.BaseBranch, *base)
	override(&rs.CommitMessage, *commitMsg)
	override(&rs.PRTitle, *prTitle)
	override(&rs.PRBody, *prBody)
	if rs.Branch == "" {
		return fmt.Errorf("no feature branch configured, set branch in %s or pass -branch", opts.rulesFile)
	}

	client := forge.New(opts.baseURL, os.Getenv("CONFPATCH_USERNAME"), os.Getenv("CONFPATCH_PASSWORD"), opts.insecure)
	auth := &gitops.Auth{Username: os.Getenv("CONFPATCH_USERNAME"), Password: os.Getenv("CONFPATCH_PASSWORD")}

	repos, err := targetRepos(ctx, &opts, rs, client)
	if err != nil {
		return err
	}
	if len(repos) < 1 {
		return fmt.Errorf("no repositories to process")
	}

	cloneDir := opts.cloneDir
	if cloneDir == "" {
		cloneDir, err = os.MkdirTemp("", "confpatch-")
		if err != nil {
			return fmt.Errorf("failed to create clone dir: %w", err)
		}
		if !opts.keepClones {
			defer os.RemoveAll(cloneDir) //nolint:errcheck
		}
	}

	engine := confpatch.New(rs.Rules)
	engine.DryRun = opts.dryRun

	if opts.dryRun {
		fmt.Println("Dry run: no files will be written, no branches pushed, no pull requests created")
	}
	fmt.Printf("Processing %d repositories\n", len(repos))

	results := make([]result, 0, len(repos))
	for i, repo := range repos {
		fmt.Printf("[%d/%d] %s\n", i+1, len(repos), repo)
		results = append(results, processRepo(ctx, &opts, rs, engine, client, auth, cloneDir, repo))
	}

	return report(results)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// processRepo runs the whole pipeline for one repository. Any failure is
// captured in the result; one broken repository never stops the run.
func processRepo(ctx context.Context, opts *options, rs *confpatch.Ruleset, engine *confpatch.Engine, client *forge.Client, auth *gitops.Auth, cloneDir, repo string) result {
	res := result{repo: repo, status: "failed"}

	project, slug, ok := strings.Cut(repo, "/")
	if !ok {
		res.detail = "invalid repository, expected PROJECT/slug"

		return res
	}

	// reuse the feature branch when a previous run already pushed it
	cloneBranch := rs.BaseBranch
	if !opts.dryRun {
		if exists, err := client.BranchExists(ctx, project, slug, rs.Branch); err != nil {
			debug.Log("failed to check branch %s on %s: %s", rs.Branch, repo, err)
		} else if exists {
			debug.Log("branch %s already exists on %s", rs.Branch, repo)
			cloneBranch = rs.Branch
		}
	}

	ws, err := gitops.CloneOrOpen(ctx, client.CloneURL(project, slug), filepath.Join(cloneDir, slug), cloneBranch, auth)
	if err != nil {
		res.detail = err.Error()

		return res
	}

	res.modified = engine.Apply(ws.Dir())
	if len(res.modified) < 1 {
		res.status = "skipped"
		res.detail = "no changes needed"

		return res
	}

	if opts.dryRun {
		res.status = "success"
		res.detail = fmt.Sprintf("would modify %s", strings.Join(res.modified, ", "))

		return res
	}

	if err := ws.EnsureBranch(rs.Branch); err != nil {
		res.detail = err.Error()

		return res
	}

	committed, err := ws.CommitAll(rs.CommitMessage, opts.authorName, opts.authorEmail)
	if err != nil {
		res.detail = err.Error()

		return res
	}
	if !committed {
		res.status = "skipped"
		res.detail = "nothing to commit"

		return res
	}

	if err := ws.Push(ctx, rs.Branch, auth, false); err != nil {
		res.detail = err.Error()

		return res
	}

	target := rs.BaseBranch
	if target == "" {
		target = "master"
	}
	if url, found, err := client.FindPullRequest(ctx, project, slug, rs.Branch, target); err == nil && found {
		res.status = "success"
		res.detail = url + " (updated)"

		return res
	}

	url, err := client.CreatePullRequest(ctx, project, slug, forge.PullRequest{
		Title:        rs.PRTitle,
		Description:  rs.PRBody,
		SourceBranch: rs.Branch,
		TargetBranch: target,
	})
	if err != nil {
		res.detail = err.Error()

		return res
	}

	res.status = "success"
	res.detail = url

	return res
}

// targetRepos resolves the repository list: an explicit repos file wins,
// then the ruleset's list, then every repository of -project.
func targetRepos(ctx context.Context, opts *options, rs *confpatch.Ruleset, client *forge.Client) ([]string, error) {
	if opts.reposFile != "" {
		return readReposFile(opts.reposFile)
	}
	if len(rs.Repos) > 0 {
		return rs.Repos, nil
	}
	if opts.project != "" {
		repos, err := client.ListRepos(ctx, opts.project)
		if err != nil {
			return nil, fmt.Errorf("failed to list repos of %s: %w", opts.project, err)
		}
		out := make([]string, 0, len(repos))
		for _, r := range repos {
			out = append(out, opts.project+"/"+r.Slug)
		}

		return out, nil
	}

	return nil, fmt.Errorf("no repositories configured, set repos in the ruleset or pass -repos-file or -project")
}

var reRepoURL = regexp.MustCompile(`(?:/scm)?/([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)

// readReposFile reads one repository per line. Blank lines and # comments
// are skipped; clone URLs are normalized to PROJECT/slug.
func readReposFile(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repos file %s: %w", path, err)
	}
	defer fh.Close() //nolint:errcheck

	var repos []string
	s := bufio.NewScanner(fh)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if repo, ok := normalizeRepo(line); ok {
			repos = append(repos, repo)
		} else {
			debug.Log("invalid repository line %q, expected PROJECT/slug", line)
		}
	}

	return repos, s.Err()
}

func normalizeRepo(line string) (string, bool) {
	if strings.Contains(line, "://") {
		m := reRepoURL.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}

		return m[1] + "/" + m[2], true
	}

	parts := strings.Split(line, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}

	return line, true
}

func report(results []result) error {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.status]++
	}

	fmt.Println()
	fmt.Println("Summary")
	fmt.Printf("  total: %d, success: %d, skipped: %d, failed: %d\n",
		len(results), counts["success"], counts["skipped"], counts["failed"])

	for _, status := range []string{"success", "skipped", "failed"} {
		if counts[status] == 0 {
			continue
		}
		fmt.Printf("%s:\n", status)
		for _, r := range results {
			if r.status != status {
				continue
			}
			fmt.Printf("  - %s: %s\n", r.repo, r.detail)
			if len(r.modified) > 0 {
				fmt.Printf("    modified: %s\n", strings.Join(r.modified, ", "))
			}
		}
	}

	if counts["failed"] > 0 {
		return fmt.Errorf("%d repositories failed", counts["failed"])
	}

	return nil
}
