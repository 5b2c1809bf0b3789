// Package ci discovers pipeline metadata that is attached to scans submitted from CI.
package ci

import (
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Kind represents the CI provider.
type Kind int

const (
	KindUnknown Kind = iota
	KindGitHub
	KindGitLab
	KindBitbucket
)

// LookupFunc fetches environment variables and defaults to os.Getenv.
type LookupFunc func(string) string

// Environment is the subset of pipeline variables that describes the scanned revision.
type Environment struct {
	Kind           Kind
	CI             bool
	CommitHash     string
	ServerURL      string // scheme and host only
	Reference      string // e.g. refs/heads/main
	ReferenceName  string
	RepositoryName string
	Repository     string // namespace-qualified name
	RepositoryURL  string
}

func (k Kind) String() string {
	switch k {
	case KindGitHub:
		return "github"
	case KindGitLab:
		return "gitlab"
	case KindBitbucket:
		return "bitbucket"
	default:
		return "unknown"
	}
}

// Detect reads the process environment.
func Detect() (Environment, bool) {
	return DetectWithLookup(os.Getenv)
}

// DetectWithLookup infers the provider from well-known variables and collects its metadata.
// The second result is false outside a supported pipeline.
func DetectWithLookup(lookup LookupFunc) (Environment, bool) {
	if lookup == nil {
		lookup = os.Getenv
	}

	switch detectKind(lookup) {
	case KindGitHub:
		return fromGitHub(lookup), true
	case KindGitLab:
		return fromGitLab(lookup), true
	case KindBitbucket:
		return fromBitbucket(lookup), true
	default:
		return Environment{}, false
	}
}

func detectKind(lookup LookupFunc) Kind {
	if lookup("GITHUB_REPOSITORY") != "" || lookup("GITHUB_SHA") != "" {
		return KindGitHub
	}
	if strings.EqualFold(lookup("GITLAB_CI"), "true") || lookup("CI_PROJECT_PATH") != "" {
		return KindGitLab
	}
	if lookup("BITBUCKET_WORKSPACE") != "" || lookup("BITBUCKET_REPO_SLUG") != "" {
		return KindBitbucket
	}
	return KindUnknown
}

// See https://docs.github.com/en/actions/reference/workflows-and-actions/variables.
func fromGitHub(lookup LookupFunc) Environment {
	ci, _ := strconv.ParseBool(lookup("CI"))

	fullName := lookup("GITHUB_REPOSITORY")
	serverURL := lookup("GITHUB_SERVER_URL")
	env := Environment{
		Kind:          KindGitHub,
		CI:            ci,
		CommitHash:    lookup("GITHUB_SHA"),
		ServerURL:     serverURL,
		Reference:     lookup("GITHUB_REF"),
		ReferenceName: lookup("GITHUB_REF_NAME"),
		Repository:    fullName,
	}
	if i := strings.LastIndex(fullName, "/"); i >= 0 && i < len(fullName)-1 {
		env.RepositoryName = fullName[i+1:]
	}
	if serverURL != "" && fullName != "" {
		env.RepositoryURL = strings.TrimRight(serverURL, "/") + "/" + fullName
	}
	return env
}

// See https://docs.gitlab.com/ci/variables/predefined_variables/.
func fromGitLab(lookup LookupFunc) Environment {
	ci, _ := strconv.ParseBool(lookup("CI"))

	var reference, refName string
	switch {
	case lookup("CI_COMMIT_TAG") != "":
		refName = lookup("CI_COMMIT_TAG")
		reference = "refs/tags/" + refName
	case lookup("CI_MERGE_REQUEST_REF_PATH") != "":
		reference = lookup("CI_MERGE_REQUEST_REF_PATH")
		refName = lookup("CI_MERGE_REQUEST_IID")
		if refName == "" {
			refName = lookup("CI_MERGE_REQUEST_SOURCE_BRANCH_NAME")
		}
	case lookup("CI_COMMIT_REF_NAME") != "":
		refName = lookup("CI_COMMIT_REF_NAME")
		reference = "refs/heads/" + refName
	}

	return Environment{
		Kind:           KindGitLab,
		CI:             ci,
		CommitHash:     lookup("CI_COMMIT_SHA"),
		ServerURL:      lookup("CI_SERVER_URL"),
		Reference:      reference,
		ReferenceName:  refName,
		RepositoryName: lookup("CI_PROJECT_NAME"),
		Repository:     lookup("CI_PROJECT_PATH"),
		RepositoryURL:  lookup("CI_PROJECT_URL"),
	}
}

// See https://support.atlassian.com/bitbucket-cloud/docs/variables-and-secrets/.
func fromBitbucket(lookup LookupFunc) Environment {
	ci, _ := strconv.ParseBool(lookup("CI"))

	var reference, refName string
	switch {
	case lookup("BITBUCKET_TAG") != "":
		refName = lookup("BITBUCKET_TAG")
		reference = "refs/tags/" + refName
	case lookup("BITBUCKET_BRANCH") != "":
		refName = lookup("BITBUCKET_BRANCH")
		reference = "refs/heads/" + refName
	case lookup("BITBUCKET_PR_ID") != "":
		refName = lookup("BITBUCKET_PR_ID")
		reference = "refs/pull/" + refName
	}

	origin := lookup("BITBUCKET_GIT_HTTP_ORIGIN")
	var serverURL string
	if u, err := url.Parse(origin); err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = u.Scheme + "://" + u.Host
	}

	return Environment{
		Kind:           KindBitbucket,
		CI:             ci,
		CommitHash:     lookup("BITBUCKET_COMMIT"),
		ServerURL:      serverURL,
		Reference:      reference,
		ReferenceName:  refName,
		RepositoryName: lookup("BITBUCKET_REPO_SLUG"),
		Repository:     lookup("BITBUCKET_REPO_FULL_NAME"),
		RepositoryURL:  origin,
	}
}
