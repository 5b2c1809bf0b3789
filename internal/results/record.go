package results

import (
	"time"

	"github.com/scan-io-git/scanio-remote/internal/findings"
)

// Status is the lifecycle state of a scan on the remote service.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition can happen from the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ScanRecord is the local view of a scan, mirrored from the service.
type ScanRecord struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	Title           string           `json:"title"`
	CompletedAt     *time.Time       `json:"completedAt"`
	Status          Status           `json:"status"`
	DisclosureLevel string           `json:"disclosureLevel,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	Result          []findings.Issue `json:"result"`
	CodeSummary     *string          `json:"codeSummary"`
}

// Clone returns a deep copy, so callers never share mutable state with the store.
func (r ScanRecord) Clone() ScanRecord {
	out := r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.CodeSummary != nil {
		s := *r.CodeSummary
		out.CodeSummary = &s
	}
	out.Metadata = cloneMetadata(r.Metadata)
	if r.Result != nil {
		out.Result = make([]findings.Issue, len(r.Result))
		for i, issue := range r.Result {
			out.Result[i] = issue.Clone()
		}
	}
	return out
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMetadata(nested)
			continue
		}
		out[k] = v
	}
	return out
}
