// Package app wires the client components together.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"k8s.io/utils/clock"

	"github.com/scan-io-git/scanio-remote/internal/auth"
	"github.com/scan-io-git/scanio-remote/internal/notify"
	"github.com/scan-io-git/scanio-remote/internal/remote"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/internal/scan"
	"github.com/scan-io-git/scanio-remote/internal/storage"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
	"github.com/scan-io-git/scanio-remote/pkg/shared/httpclient"
)

// Options overrides the collaborators App builds by default.
type Options struct {
	Version     string
	Notifier    notify.Notifier
	OpenBrowser func(url string) error
	Clock       clock.Clock
	HTTPClient  *resty.Client
	InMemory    bool
}

// App is the composition root of the client.
type App struct {
	Config    *config.Config
	Logger    hclog.Logger
	Notifier  notify.Notifier
	DB        *storage.DB
	Auth      *auth.Authenticator
	Remote    *remote.Client
	Results   *results.Store
	Scheduler *scan.Scheduler
	Submitter *scan.Submitter
}

// New builds every component. Nothing is loaded from storage until Init.
func New(cfg *config.Config, logger hclog.Logger, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewConsole(os.Stderr, logger.Named("notify"))
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpclient.InitializeRestyClient(logger.Named("http"), cfg)
	}

	var (
		db  *storage.DB
		err error
	)
	if opts.InMemory {
		db, err = storage.OpenInMemory(logger)
	} else {
		db, err = storage.Open(config.GetDatabasePath(cfg), logger)
	}
	if err != nil {
		return nil, err
	}

	authCfg := config.GetAuth(cfg)
	authenticator, err := auth.New(auth.Options{
		BaseURL:         config.GetBaseURL(cfg),
		ClientID:        config.GetClientID(cfg),
		Scope:           config.GetScope(cfg),
		CallbackPorts:   authCfg.CallbackPorts,
		CallbackTimeout: authCfg.CallbackTimeout,
		OpenBrowser:     opts.OpenBrowser,
		Clock:           opts.Clock,
	}, opts.HTTPClient, auth.NewCredentialStore(db.Global()), opts.Notifier, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	userAgent := "scanio-remote"
	if opts.Version != "" {
		userAgent = fmt.Sprintf("scanio-remote/%s", opts.Version)
	}
	client := remote.NewClient(opts.HTTPClient, authenticator, remote.Options{
		BaseURL:    config.GetBaseURL(cfg),
		ClientType: config.GetClientType(cfg),
		UserAgent:  userAgent,
	}, logger)

	workspace := config.GetWorkspace(cfg)
	store := results.NewStore(db.Workspace(workspace), logger.Named("results"))

	polling := config.GetPolling(cfg)
	scheduler := scan.NewScheduler(client, store, opts.Notifier, opts.Clock, scan.SchedulerOptions{
		Interval: polling.Interval,
		Timeout:  polling.Timeout,
	}, logger)

	submitter := scan.NewSubmitter(client, store, scheduler, opts.Notifier, opts.Clock, scan.SubmitterOptions{
		Workspace:   workspace,
		ProjectName: cfg.ScanioRemote.ProjectName,
	}, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Notifier:  opts.Notifier,
		DB:        db,
		Auth:      authenticator,
		Remote:    client,
		Results:   store,
		Scheduler: scheduler,
		Submitter: submitter,
	}, nil
}

// Init loads credentials and history and resumes polling of scans that had not finished.
// It returns the ids whose polling was resumed.
func (a *App) Init(ctx context.Context) []string {
	a.Auth.Init()
	a.Results.Load()

	var resumed []string
	for _, rec := range a.Results.All() {
		if ctx.Err() != nil {
			break
		}
		if rec.Status.IsTerminal() {
			continue
		}
		a.Scheduler.Start(rec.ID)
		resumed = append(resumed, rec.ID)
	}
	if len(resumed) > 0 {
		a.Logger.Debug("resumed polling of unfinished scans", "ids", resumed)
	}
	return resumed
}

// Close stops polling, aborts a pending login and closes storage.
func (a *App) Close() error {
	a.Scheduler.Shutdown()
	a.Auth.Close()
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
