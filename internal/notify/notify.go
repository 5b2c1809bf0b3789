// Package notify surfaces scan and authentication events to the user.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-remote/internal/results"
)

// Notifier is the presentation boundary of the core: user-facing messages,
// scan completion prompts and the "results available" indicator.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	ScanCompleted(rec results.ScanRecord, summary string)
	ScanFailed(rec results.ScanRecord)
	ResultsAvailable()
	RefreshStatus()
}

// Console prints notifications to a terminal.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	logger hclog.Logger

	resultsAvailable bool
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer, logger hclog.Logger) *Console {
	return &Console{out: out, logger: logger}
}

func (c *Console) printf(paint *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	paint.Fprintf(c.out, format+"\n", args...)
}

// Info prints an informational message.
func (c *Console) Info(msg string) {
	c.logger.Debug("notify", "level", "info", "message", msg)
	c.printf(color.New(color.FgCyan), "%s", msg)
}

// Warn prints a warning.
func (c *Console) Warn(msg string) {
	c.logger.Debug("notify", "level", "warn", "message", msg)
	c.printf(color.New(color.FgYellow), "Warning: %s", msg)
}

// Error prints an error message.
func (c *Console) Error(msg string) {
	c.logger.Debug("notify", "level", "error", "message", msg)
	c.printf(color.New(color.FgRed), "Error: %s", msg)
}

// ScanCompleted announces a finished scan and how to show its findings.
func (c *Console) ScanCompleted(rec results.ScanRecord, summary string) {
	c.printf(color.New(color.FgGreen, color.Bold), "Scan %q completed: %s", rec.Title, summary)
	c.printf(color.New(color.Faint), "Show results: scanio-remote results show %s", rec.ID)
}

// ScanFailed announces a failed scan.
func (c *Console) ScanFailed(rec results.ScanRecord) {
	c.printf(color.New(color.FgRed, color.Bold), "Scan %q failed. Please try again later.", rec.Title)
}

// ResultsAvailable marks that the session has results to show.
func (c *Console) ResultsAvailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultsAvailable = true
}

// RefreshStatus logs whether results are available.
func (c *Console) RefreshStatus() {
	c.mu.Lock()
	available := c.resultsAvailable
	c.mu.Unlock()
	c.logger.Debug("status refreshed", "results_available", available)
}

// HasResults reports whether a scan reached a terminal state during this session.
func (c *Console) HasResults() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultsAvailable
}

// Message is a captured notification.
type Message struct {
	Kind string
	Text string
}

// Recorder captures notifications in memory.
type Recorder struct {
	mu               sync.Mutex
	messages         []Message
	resultsAvailable int
	refreshes        int
}

func (r *Recorder) add(kind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Kind: kind, Text: text})
}

func (r *Recorder) Info(msg string)  { r.add("info", msg) }
func (r *Recorder) Warn(msg string)  { r.add("warn", msg) }
func (r *Recorder) Error(msg string) { r.add("error", msg) }

func (r *Recorder) ScanCompleted(rec results.ScanRecord, summary string) {
	r.add("completed", fmt.Sprintf("%s: %s", rec.ID, summary))
}

func (r *Recorder) ScanFailed(rec results.ScanRecord) {
	r.add("failed", rec.ID)
}

func (r *Recorder) ResultsAvailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resultsAvailable++
}

func (r *Recorder) RefreshStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

// Messages returns the captured messages of the given kind, or all of them when kind is empty.
func (r *Recorder) Messages(kind string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// ResultsAvailableCount returns how many times ResultsAvailable was called.
func (r *Recorder) ResultsAvailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultsAvailable
}

// RefreshCount returns how many times RefreshStatus was called.
func (r *Recorder) RefreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}
