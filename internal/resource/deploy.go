package resource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"forcecode/internal/apperrors"
	"forcecode/internal/gateway"
	"forcecode/internal/notify"
)

const (
	kindStaticResource = "StaticResource"
	strategyName       = "resource"
)

// Result describes one packed and deployed bundle.
type Result struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     Type          `json:"type"`
	Archive  string        `json:"archive"`
	Files    int           `json:"files"`
	Size     int           `json:"size"`
	Created  bool          `json:"created"`
	Duration time.Duration `json:"duration"`
}

// Bundler packs bundles of one project and upserts them.
type Bundler struct {
	gateway     gateway.Gateway
	projectRoot string
	excludes    []string
	notifier    notify.Sink
	logger      *slog.Logger
}

// Option configures a Bundler.
type Option func(*Bundler)

// WithExcludes replaces DefaultExcludes.
func WithExcludes(patterns []string) Option {
	return func(b *Bundler) { b.excludes = patterns }
}

// WithNotifier sets the status and outcome sink.
func WithNotifier(n notify.Sink) Option {
	return func(b *Bundler) { b.notifier = n }
}

// NewBundler creates a Bundler for the project at projectRoot.
func NewBundler(gw gateway.Gateway, projectRoot string, opts ...Option) *Bundler {
	b := &Bundler{
		gateway:     gw,
		projectRoot: projectRoot,
		excludes:    DefaultExcludes,
		notifier:    notify.Discard,
		logger:      slog.With("component", "resource"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Deploy zips the bundle into src/staticresources/<name>.resource and
// upserts it as a StaticResource.
func (b *Bundler) Deploy(ctx context.Context, bundle Bundle) (Result, error) {
	start := time.Now()
	res := Result{ID: uuid.NewString(), Name: bundle.Name, Type: bundle.Type}

	err := b.run(ctx, bundle, &res)
	res.Duration = time.Since(start)

	status := "ForceCode: Deploy Success $(check)"
	message := ""
	if err != nil {
		status = "ForceCode: " + bundle.Name + " $(alert)"
		message = err.Error()
		b.logger.Error("Bundle failed", "bundle", bundle.Name, "type", bundle.Type, "error", err)
	}
	b.notifier.Finished(ctx, notify.Outcome{
		ID:       res.ID,
		Path:     res.Archive,
		Name:     bundle.Name,
		Strategy: strategyName,
		Kind:     kindStaticResource,
		Status:   status,
		Message:  message,
		Success:  err == nil,
		Duration: res.Duration,
		Err:      err,
	})
	return res, err
}

func (b *Bundler) run(ctx context.Context, bundle Bundle, res *Result) error {
	b.notifier.Status(ctx, "ForceCode: Making Zip $(fold)")
	files, err := Files(bundle.Root, b.excludes)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", bundle.Root, err)
	}
	data, err := Zip(bundle.Root, files)
	if err != nil {
		return fmt.Errorf("failed to zip %s: %w", bundle.Name, err)
	}
	res.Files = len(files)
	res.Size = len(data)

	b.notifier.Status(ctx, "ForceCode: Bundling Resource $(beaker)")
	res.Archive = filepath.Join(b.projectRoot, filepath.FromSlash(staticResource), bundle.Name+bundleSuffix)
	if err := os.MkdirAll(filepath.Dir(res.Archive), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(res.Archive, data, 0o644); err != nil {
		return err
	}

	b.notifier.Status(ctx, "ForceCode: Deploying $(rocket)")
	results, err := b.gateway.Upsert(ctx, kindStaticResource, []gateway.Record{Metadata(bundle.Name, data)})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return apperrors.Internal("resource.upsert", errors.New("empty upsert response"))
	}
	if !results[0].Success {
		return apperrors.RemoteRejection("resource.upsert", gateway.FirstMessage(results[0].Errors))
	}
	res.Created = results[0].Created

	b.logger.Info("Bundle deployed", "bundle", bundle.Name, "files", res.Files, "bytes", res.Size, "created", res.Created)
	return nil
}

// Metadata is the StaticResource upsert record for a zipped bundle.
func Metadata(name string, archive []byte) gateway.Record {
	return gateway.Record{
		"fullName":     name,
		"description":  "spa data files",
		"content":      base64.StdEncoding.EncodeToString(archive),
		"contentType":  "application/zip",
		"cacheControl": "Private",
	}
}
