package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/config"
	"forcecode/internal/diagnostics"
	"forcecode/internal/gateway"
	"forcecode/internal/notify"
)

// Status glyphs appended to the status line.
const (
	GlyphCheck = "$(check)"
	GlyphAlert = "$(alert)"
)

// Settings is the read-only configuration a deploy needs.
type Settings struct {
	NamespacePrefix string
	APIVersion      string
	PollInterval    time.Duration
}

// SettingsFromProject picks the deploy settings out of a project config.
func SettingsFromProject(p config.Project) Settings {
	return Settings{
		NamespacePrefix: p.NamespacePrefix,
		APIVersion:      p.APIVersion,
		PollInterval:    p.PollInterval(),
	}
}

func (s Settings) apiVersion() string {
	if s.APIVersion == "" {
		return config.DefaultAPIVersion
	}
	return s.APIVersion
}

func (s Settings) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return config.DefaultPollInterval
	}
	return s.PollInterval
}

// Context holds the remote ids created or found during one deploy.
type Context struct {
	BundleID     string  `json:"bundleId,omitempty"`
	DefinitionID string  `json:"definitionId,omitempty"`
	DefType      DefType `json:"defType,omitempty"`
	ContainerID  string  `json:"containerId,omitempty"`
	MemberID     string  `json:"memberId,omitempty"`
	RequestID    string  `json:"requestId,omitempty"`
	FullName     string  `json:"fullName,omitempty"`
}

// Result is the outcome of one Deploy call.
type Result struct {
	ID          string                `json:"id"`
	Path        string                `json:"path"`
	Strategy    Strategy              `json:"strategy"`
	Status      string                `json:"status"`
	Message     string                `json:"message,omitempty"`
	Success     bool                  `json:"success"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
	Context     Context               `json:"context"`
	Polls       int                   `json:"polls,omitempty"`
	Duration    time.Duration         `json:"duration"`
}

// MetricsRecorder receives deploy metrics. It may be nil.
type MetricsRecorder interface {
	RecordDeployStarted(ctx context.Context, strategy string)
	RecordDeployCompleted(ctx context.Context, strategy string, success bool, durationSeconds float64)
	RecordPollAttempts(ctx context.Context, attempts int)
}

// Deployer runs deploys against one org.
type Deployer struct {
	gateway  gateway.Gateway
	settings Settings
	sink     diagnostics.Sink
	notifier notify.Sink
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithNotifier sets the status and outcome sink.
func WithNotifier(n notify.Sink) Option {
	return func(d *Deployer) { d.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(d *Deployer) { d.metrics = m }
}

// New creates a Deployer that publishes diagnostics to sink.
func New(gw gateway.Gateway, settings Settings, sink diagnostics.Sink, opts ...Option) *Deployer {
	d := &Deployer{
		gateway:  gw,
		settings: settings,
		sink:     sink,
		notifier: notify.Discard,
		logger:   slog.With("component", "deploy"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy sends a to the org with the strategy its kind calls for and
// replaces the diagnostics published for a.Path. The returned error is the
// driver failure, if any; the Result is filled in either way.
func (d *Deployer) Deploy(ctx context.Context, a artifact.Artifact) (Result, error) {
	start := time.Now()
	res := Result{ID: uuid.NewString(), Path: a.Path, Diagnostics: []protocol.Diagnostic{}}
	doc := diagnostics.NewDocument(a.Path, a.Body)

	strategy, err := Classify(a)
	res.Strategy = strategy
	logger := d.logger.With("id", res.ID, "file", a.Path, "strategy", strategy, "kind", a.Kind)

	if err == nil {
		if d.metrics != nil {
			d.metrics.RecordDeployStarted(ctx, strategy.String())
		}
		d.notifier.Status(ctx, statusLine(a, "", ""))
		err = d.run(ctx, &res, a, strategy)
	}

	if err != nil {
		err = d.fail(&res, doc, a, err)
	} else {
		res.Success = res.Message == "" && len(res.Diagnostics) == 0
		glyph := GlyphCheck
		if !res.Success {
			glyph = GlyphAlert
		}
		res.Status = statusLine(a, res.Context.DefType, glyph)
	}
	res.Duration = time.Since(start)

	d.sink.Publish(a.Path, res.Diagnostics)

	if err != nil {
		logger.Error("Deploy failed", "error", err, "diagnostics", len(res.Diagnostics))
	}
	if d.metrics != nil && strategy != StrategyUnknown {
		d.metrics.RecordDeployCompleted(ctx, strategy.String(), res.Success, res.Duration.Seconds())
	}
	d.notifier.Finished(ctx, notify.Outcome{
		ID:          res.ID,
		Path:        a.Path,
		Name:        a.Name,
		Strategy:    strategy.String(),
		Kind:        string(a.Kind),
		Status:      res.Status,
		Message:     res.Message,
		Success:     res.Success,
		Diagnostics: len(res.Diagnostics),
		Polls:       res.Polls,
		Duration:    res.Duration,
		Err:         err,
	})
	return res, err
}

// run executes the driver for strategy and records what it touched.
func (d *Deployer) run(ctx context.Context, res *Result, a artifact.Artifact, strategy Strategy) error {
	switch strategy {
	case StrategyBundle:
		br, err := deployBundle(ctx, d.gateway, d.settings, a)
		res.Context.BundleID = br.BundleID
		res.Context.DefinitionID = br.DefinitionID
		res.Context.DefType = br.DefType
		return err

	case StrategyMetadata:
		d.notifier.Status(ctx, "ForceCode: Deploying...")
		ur, err := deployMetadata(ctx, d.gateway, a)
		res.Context.FullName = ur.FullName
		if err == nil {
			d.notifier.Status(ctx, "ForceCode: Successfully deployed "+ur.FullName)
		}
		return err

	case StrategyContainer:
		onPoll := func(attempt int) {
			d.notifier.Status(ctx, statusLine(a, "", fmt.Sprintf("(%d/%d)", attempt, MaxPolls)))
		}
		cr, err := deployContainer(ctx, d.gateway, d.settings, a, onPoll)
		res.Context.ContainerID = cr.ContainerID
		res.Context.MemberID = cr.MemberID
		res.Context.RequestID = cr.RequestID
		res.Polls = cr.Polls
		if d.metrics != nil && cr.Polls > 0 {
			d.metrics.RecordPollAttempts(ctx, cr.Polls)
		}
		if err != nil {
			return err
		}
		n := NormalizeRequests(diagnostics.NewDocument(a.Path, a.Body), cr.Requests)
		res.Diagnostics = n.Diagnostics
		res.Message = n.Alert
		return nil

	default:
		return apperrors.Classification(unknownKindMessage)
	}
}

// fail routes a driver error by strategy. Remote bundle and metadata failures
// are parsed for a position; classification errors and everything else are
// only logged. The diagnostic set
// is always rebuilt, so stale entries from an earlier deploy are cleared.
func (d *Deployer) fail(res *Result, doc *diagnostics.Document, a artifact.Artifact, err error) error {
	res.Success = false
	res.Diagnostics = []protocol.Diagnostic{}
	res.Status = statusLine(a, res.Context.DefType, GlyphAlert)
	res.Message = err.Error()

	if res.Strategy != StrategyBundle && res.Strategy != StrategyMetadata {
		return err
	}
	if errors.Is(err, apperrors.ErrClassification) {
		return err
	}

	pe, perr := ParseRemoteError(res.Strategy, a.BaseName, err.Error())
	if perr != nil {
		return errors.Join(err, perr)
	}
	rng := anchor(doc, pe.LineIndex(), pe.Column)
	res.Diagnostics = append(res.Diagnostics, diagnostics.New(rng, pe.Message, diagnostics.ProblemError))
	res.Message = pe.Status
	return err
}

// statusLine renders "ForceCode: <name> <type> <glyph>".
func statusLine(a artifact.Artifact, defType DefType, glyph string) string {
	parts := []string{"ForceCode:", a.Name}
	if defType != "" {
		parts = append(parts, string(defType))
	} else if a.Kind != artifact.KindUnknown {
		parts = append(parts, string(a.Kind))
	}
	if glyph != "" {
		parts = append(parts, glyph)
	}
	return strings.Join(parts, " ")
}
