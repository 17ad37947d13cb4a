package resource

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"

	"forcecode/internal/apperrors"
	"forcecode/internal/gateway"
	"forcecode/internal/notify"
	"forcecode/internal/testutil"
)

type fakeGateway struct {
	gateway.Gateway

	kind    string
	items   []gateway.Record
	results []gateway.UpsertResult
	err     error
}

func (f *fakeGateway) Upsert(_ context.Context, kind string, items []gateway.Record) ([]gateway.UpsertResult, error) {
	f.kind = kind
	f.items = items
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	return []gateway.UpsertResult{{FullName: items[0].String("fullName"), Created: true, Success: true}}, nil
}

type recordingSink struct {
	statuses []string
	outcomes []notify.Outcome
}

func (r *recordingSink) Status(_ context.Context, line string) { r.statuses = append(r.statuses, line) }

func (r *recordingSink) Finished(_ context.Context, o notify.Outcome) {
	r.outcomes = append(r.outcomes, o)
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFile(t, root, "resource-bundles/Styles.resource/css/app.css", "body {}")
	testutil.WriteFile(t, root, "resource-bundles/Styles.resource/.DS_Store", "junk")
	testutil.WriteFile(t, root, "spa/Console/index.html", "<html></html>")
	testutil.WriteFile(t, root, "spa/Console/js/app.js", "console.log(1)")
	testutil.WriteFile(t, root, "spa/Console/js/.gitignore", "dist")
	testutil.WriteFile(t, root, "spa/Console/node_modules/lib/index.js", "module.exports = 1")
	testutil.WriteFile(t, root, "spa/Console/bower_modules/x.js", "x")
	testutil.WriteFile(t, root, "spa/README.md", "not a bundle")
	return root
}

func TestList(t *testing.T) {
	t.Parallel()
	root := newProject(t)

	bundles, err := List(root)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %+v", bundles)
	}
	if bundles[0].Name != "Styles" || bundles[0].Type != TypeResourceBundle {
		t.Errorf("unexpected first bundle %+v", bundles[0])
	}
	if bundles[0].Root != filepath.Join(root, "resource-bundles", "Styles.resource") {
		t.Errorf("unexpected root %s", bundles[0].Root)
	}
	if bundles[1].Name != "Console" || bundles[1].Type != TypeSPA {
		t.Errorf("unexpected second bundle %+v", bundles[1])
	}
}

func TestList_EmptyProject(t *testing.T) {
	t.Parallel()
	bundles, err := List(t.TempDir())
	if err != nil || len(bundles) != 0 {
		t.Errorf("List() = %v, %v; want none", bundles, err)
	}
}

func TestFind_Missing(t *testing.T) {
	t.Parallel()
	if _, err := Find(newProject(t), "Nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFiles_Excludes(t *testing.T) {
	t.Parallel()
	root := newProject(t)
	b, err := Find(root, "Console")
	if err != nil {
		t.Fatal(err)
	}

	files, err := Files(b.Root, DefaultExcludes)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	expected := []string{"index.html", "js/app.js"}
	if !slices.Equal(files, expected) {
		t.Errorf("Files() = %v, want %v", files, expected)
	}
}

func TestFiles_InvalidPattern(t *testing.T) {
	t.Parallel()
	root := newProject(t)
	if _, err := Files(filepath.Join(root, "spa", "Console"), []string{"[unclosed"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestZip_RoundTrip(t *testing.T) {
	t.Parallel()
	root := newProject(t)
	dir := filepath.Join(root, "spa", "Console")

	data, err := Zip(dir, []string{"index.html", "js/app.js"})
	if err != nil {
		t.Fatalf("Zip() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Errorf("%s: expected deflate, got method %d", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(body)
	}
	if got["index.html"] != "<html></html>" || got["js/app.js"] != "console.log(1)" || len(got) != 2 {
		t.Errorf("unexpected archive contents %v", got)
	}
}

func TestBundler_Deploy(t *testing.T) {
	t.Parallel()
	root := newProject(t)
	gw := &fakeGateway{}
	sink := &recordingSink{}
	b, err := Find(root, "Styles")
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewBundler(gw, root, WithNotifier(sink)).Deploy(context.Background(), b)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if res.Files != 1 || !res.Created {
		t.Errorf("unexpected result %+v", res)
	}
	archive := filepath.Join(root, "src", "staticresources", "Styles.resource")
	if res.Archive != archive {
		t.Errorf("unexpected archive path %s", res.Archive)
	}
	written, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	if gw.kind != "StaticResource" || len(gw.items) != 1 {
		t.Fatalf("unexpected upsert %s %v", gw.kind, gw.items)
	}
	item := gw.items[0]
	if item["fullName"] != "Styles" || item["description"] != "spa data files" ||
		item["contentType"] != "application/zip" || item["cacheControl"] != "Private" {
		t.Errorf("unexpected metadata %v", item)
	}
	content, err := base64.StdEncoding.DecodeString(item.String("content"))
	if err != nil || !bytes.Equal(content, written) {
		t.Error("expected content to be the base64 of the written archive")
	}

	if len(sink.outcomes) != 1 || !sink.outcomes[0].Success || sink.outcomes[0].Strategy != "resource" {
		t.Errorf("unexpected outcomes %+v", sink.outcomes)
	}
	if sink.statuses[len(sink.statuses)-1] != "ForceCode: Deploying $(rocket)" {
		t.Errorf("unexpected statuses %v", sink.statuses)
	}
}

func TestBundler_DeployRejected(t *testing.T) {
	t.Parallel()
	root := newProject(t)
	gw := &fakeGateway{results: []gateway.UpsertResult{{Errors: []gateway.RemoteError{{Message: "Content too large"}}}}}
	sink := &recordingSink{}
	b, _ := Find(root, "Console")

	_, err := NewBundler(gw, root, WithNotifier(sink)).Deploy(context.Background(), b)
	if !errors.Is(err, apperrors.ErrRemoteRejection) || err.Error() != "Content too large" {
		t.Fatalf("expected verbatim rejection, got %v", err)
	}
	if len(sink.outcomes) != 1 || sink.outcomes[0].Success || sink.outcomes[0].Err == nil {
		t.Errorf("expected failed outcome, got %+v", sink.outcomes)
	}
}
