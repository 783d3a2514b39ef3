package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"rmlines/internal/blocks"
	"rmlines/internal/rmfile"
	"rmlines/internal/store"
	"rmlines/internal/watcher"
)

func newCLI(t *testing.T) (*cli, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RMLINES_DATA_DIR", dir)
	var stdout, stderr bytes.Buffer
	return &cli{
		configPath: filepath.Join(dir, "missing.toml"),
		stdout:     &stdout,
		stderr:     &stderr,
	}, &stdout, &stderr
}

func writePage(t *testing.T, body string) string {
	t.Helper()
	bs := rmfile.SimpleTextDocument(body, uuid.MustParse("495ba59f-c943-2b5c-b455-3682f6948906"))
	data, err := blocks.WriteBlocks(bs, blocks.Options{})
	if err != nil {
		t.Fatalf("encode page: %v", err)
	}
	path := filepath.Join(t.TempDir(), "page.rm")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunUnknownCommand(t *testing.T) {
	c, _, stderr := newCLI(t)
	if err := c.run([]string{"bogus"}); err == nil {
		t.Error("expected error for unknown command")
	}
	if !strings.Contains(stderr.String(), "Commands:") {
		t.Error("usage should be printed")
	}
}

func TestRunNoCommand(t *testing.T) {
	c, _, _ := newCLI(t)
	if err := c.run(nil); err == nil {
		t.Error("expected error without a command")
	}
}

func TestRunHelp(t *testing.T) {
	c, _, stderr := newCLI(t)
	if err := c.run([]string{"help"}); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, cmd := range commands {
		if !strings.Contains(stderr.String(), cmd.name) {
			t.Errorf("usage should list %s", cmd.name)
		}
	}
}

func TestBlocks(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hi")

	if err := c.run([]string{"blocks", path}); err != nil {
		t.Fatalf("blocks failed: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "9 blocks, 0 unreadable") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, `"Layer 1"`) {
		t.Errorf("expected layer label in listing:\n%s", out)
	}
}

func TestValues(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hi")

	if err := c.run([]string{"values", "--block", "0", path}); err != nil {
		t.Fatalf("values failed: %v", err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "block 0 @") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "block 1 @") {
		t.Error("only block 0 should be dumped")
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"plain", nil, "Title\nbody\n"},
		{"styles", []string{"--styles"}, "plain:     Title\nplain:     body\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, stdout, _ := newCLI(t)
			path := writePage(t, "Title\nbody")
			args := append([]string{"text"}, tt.args...)
			if err := c.run(append(args, path)); err != nil {
				t.Fatalf("text failed: %v", err)
			}
			if stdout.String() != tt.want {
				t.Errorf("got %q, want %q", stdout.String(), tt.want)
			}
		})
	}
}

func TestTreeCounts(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hi")

	if err := c.run([]string{"tree", "--counts", path}); err != nil {
		t.Fatalf("tree failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "group") {
		t.Errorf("expected group count, got %q", stdout.String())
	}
}

func TestRoundtrip(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hello")
	out := filepath.Join(t.TempDir(), "out.rm")

	if err := c.run([]string{"roundtrip", "-o", out, path}); err != nil {
		t.Fatalf("roundtrip failed: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "identical") {
		t.Errorf("unexpected output %q", stdout.String())
	}
	a, _ := os.ReadFile(path)
	b, _ := os.ReadFile(out)
	if !bytes.Equal(a, b) {
		t.Error("written file should equal the original")
	}
}

func TestRoundtripVersion(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hello")

	if err := c.run([]string{"roundtrip", "--version", "3.0", path}); err != nil {
		t.Fatalf("roundtrip failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "as version 3.0") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestFirstDifference(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"abc", "abd", 2},
		{"abc", "abcd", 3},
		{"", "x", 0},
	}
	for _, tt := range tests {
		if got := firstDifference([]byte(tt.a), []byte(tt.b)); got != tt.want {
			t.Errorf("firstDifference(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hi")

	if err := c.run([]string{"export", "--format", "yaml", path}); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "schema_version: 1") {
		t.Errorf("expected YAML snapshot, got:\n%s", stdout.String())
	}
}

func TestExportDefaultFormat(t *testing.T) {
	c, stdout, _ := newCLI(t)
	path := writePage(t, "Hi")

	if err := c.run([]string{"export", path}); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "{") {
		t.Errorf("default format should be JSON, got:\n%s", stdout.String())
	}
}

func TestSimpleText(t *testing.T) {
	c, _, _ := newCLI(t)
	out := filepath.Join(t.TempDir(), "new.rm")

	err := c.run([]string{"simple-text", "-o", out, "--author", "495ba59f-c943-2b5c-b455-3682f6948906", "Hello\nworld"})
	if err != nil {
		t.Fatalf("simple-text failed: %v", err)
	}

	doc, err := rmfile.ParseFile(out)
	if err != nil {
		t.Fatalf("parse written page: %v", err)
	}
	if len(doc.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics %v", doc.Diagnostics)
	}
	if doc.Text == nil || doc.Text.String() != "Hello\nworld" {
		t.Errorf("unexpected text")
	}
}

func TestSimpleTextRequiresOutput(t *testing.T) {
	c, _, _ := newCLI(t)
	if err := c.run([]string{"simple-text", "Hello"}); err == nil {
		t.Error("expected error without --output")
	}
	if err := c.run([]string{"simple-text", "-o", filepath.Join(t.TempDir(), "x.rm")}); err == nil {
		t.Error("expected error without text")
	}
}

func TestCatalog(t *testing.T) {
	c, stdout, _ := newCLI(t)
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	t.Setenv("RMLINES_CATALOG_PATH", dbPath)

	path := writePage(t, "Hello")
	doc, err := rmfile.ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	hash, size, err := watcher.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.RecordParse(store.NewParseRecord(path, hash, size, doc, time.Now())); err != nil {
		t.Fatal(err)
	}
	st.Close()

	if err := c.run([]string{"catalog", "list"}); err != nil {
		t.Fatalf("catalog list failed: %v", err)
	}
	if !strings.Contains(stdout.String(), path) {
		t.Errorf("list should include %s:\n%s", path, stdout.String())
	}

	stdout.Reset()
	if err := c.run([]string{"catalog", "show", path}); err != nil {
		t.Fatalf("catalog show failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Text:\nHello") {
		t.Errorf("show should include the text:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := c.run([]string{"catalog", "history", path}); err != nil {
		t.Fatalf("catalog history failed: %v", err)
	}
	if strings.Count(stdout.String(), "\n") != 3 {
		t.Errorf("expected header, rule and one parse:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := c.run([]string{"catalog", "stats"}); err != nil {
		t.Fatalf("catalog stats failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Files:       1 (1 with text)") {
		t.Errorf("unexpected stats:\n%s", stdout.String())
	}

	if err := c.run([]string{"catalog", "show", filepath.Join(t.TempDir(), "other.rm")}); err == nil {
		t.Error("expected error for unknown file")
	}
}

func TestCatalogMissing(t *testing.T) {
	c, _, _ := newCLI(t)
	t.Setenv("RMLINES_CATALOG_PATH", filepath.Join(t.TempDir(), "none.db"))
	if err := c.run([]string{"catalog"}); err == nil {
		t.Error("expected error without a catalog")
	}
}

func TestStatus(t *testing.T) {
	c, stdout, _ := newCLI(t)
	t.Setenv("RMLINES_CATALOG_PATH", filepath.Join(t.TempDir(), "none.db"))

	if err := c.run([]string{"status"}); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Daemon Status: NOT RUNNING") {
		t.Errorf("unexpected status:\n%s", out)
	}
	if !strings.Contains(out, "No catalog found") {
		t.Errorf("unexpected catalog status:\n%s", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
