package ci

import (
	"strings"
)

// Metadata renders the environment as scan metadata. Empty values are omitted.
func (e Environment) Metadata() map[string]any {
	meta := map[string]any{"ci": e.Kind.String()}
	set := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	set("commit", e.CommitHash)
	set("ref", e.Reference)
	set("refName", e.ReferenceName)
	set("repository", e.Repository)
	set("repositoryUrl", e.RepositoryURL)
	set("pullRequest", e.PullRequestID())
	return meta
}

// PullRequestID returns the pull or merge request number of the pipeline, if any.
func (e Environment) PullRequestID() string {
	switch e.Kind {
	case KindGitHub, KindBitbucket:
		return pullRequestFromRef(e.Reference)
	case KindGitLab:
		if strings.HasPrefix(e.Reference, "refs/merge-requests/") && allDigits(e.ReferenceName) {
			return e.ReferenceName
		}
	}
	return ""
}

// Merge adds the pipeline metadata to meta without overwriting keys already present.
func Merge(meta map[string]any, env Environment) map[string]any {
	out := env.Metadata()
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func pullRequestFromRef(ref string) string {
	parts := strings.Split(ref, "/")
	for i := 0; i+1 < len(parts); i++ {
		if (parts[i] == "pull" || parts[i] == "merge-requests") && allDigits(parts[i+1]) {
			return parts[i+1]
		}
	}
	return ""
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
