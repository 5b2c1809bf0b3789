// Package scan submits files to the scanning service and follows the scans to completion.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"k8s.io/utils/clock"

	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/notify"
	"github.com/scan-io-git/scanio-remote/internal/remote"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/pkg/shared/files"
)

var (
	ErrNoFiles      = errors.New("no files selected")
	ErrNoValidFiles = errors.New("no valid files")
)

// Creator creates scans on the service.
type Creator interface {
	CreateScan(ctx context.Context, req remote.CreateScanRequest) (*remote.CreateScanResponse, error)
}

// Poller follows a created scan.
type Poller interface {
	Start(id string)
}

// SubmitterOptions carries the context used for titles and wire paths.
type SubmitterOptions struct {
	Workspace   string
	ProjectName string
}

// Submitter turns a selection of files into a remote scan.
type Submitter struct {
	creator  Creator
	store    *results.Store
	poller   Poller
	notifier notify.Notifier
	clock    clock.PassiveClock
	opts     SubmitterOptions
	logger   hclog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(creator Creator, store *results.Store, poller Poller, notifier notify.Notifier, clk clock.PassiveClock, opts SubmitterOptions, logger hclog.Logger) *Submitter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Submitter{
		creator:  creator,
		store:    store,
		poller:   poller,
		notifier: notifier,
		clock:    clk,
		opts:     opts,
		logger:   logger.Named("submitter"),
	}
}

// StartScan submits the readable files among paths and starts polling the new scan.
// Unreadable files are skipped with a warning.
func (s *Submitter) StartScan(ctx context.Context, paths []string, metadata map[string]any) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoFiles
	}

	var (
		payload  []remote.File
		accepted []string
	)
	for _, path := range paths {
		content, err := files.ReadTextFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", path, "error", err)
			s.notifier.Warn(fmt.Sprintf("Skipping %s: %v", filepath.Base(path), err))
			continue
		}
		payload = append(payload, remote.File{Path: s.wirePath(path), Content: content})
		accepted = append(accepted, path)
	}
	if len(payload) == 0 {
		return "", ErrNoValidFiles
	}

	title := BuildTitle(s.opts.ProjectName, s.opts.Workspace, accepted)
	s.logger.Info("submitting scan", "title", title, "files", len(payload))

	resp, err := s.creator.CreateScan(ctx, remote.CreateScanRequest{
		Title:    title,
		Files:    payload,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start scan: %w", err)
	}

	status := resp.Status
	if status == "" {
		status = results.StatusProcessing
	}
	now := s.clock.Now()
	rec := results.ScanRecord{
		ID:        resp.ScanID,
		CreatedAt: now,
		UpdatedAt: now,
		Title:     title,
		Status:    status,
		Metadata:  metadata,
		Result:    []findings.Issue{},
	}
	s.store.Upsert(rec)
	s.poller.Start(resp.ScanID)

	s.logger.Info("scan started", "id", resp.ScanID, "status", status)
	return resp.ScanID, nil
}

// wirePath is the workspace-relative slash path of a file, or its base name outside the workspace.
func (s *Submitter) wirePath(path string) string {
	if rel, ok := files.RelativeToRoot(s.opts.Workspace, path); ok && s.opts.Workspace != "" {
		return rel
	}
	return filepath.Base(path)
}
