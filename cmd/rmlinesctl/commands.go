package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rmlines/internal/blocks"
	"rmlines/internal/config"
	"rmlines/internal/export"
	"rmlines/internal/rmfile"
	"rmlines/internal/store"
	"rmlines/internal/tagged"
	"rmlines/internal/watcher"
)

// parse reads a scene file and prints its diagnostics unless --quiet.
func (c *cli) parse(path string) (*rmfile.Document, error) {
	doc, err := rmfile.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if !c.quiet {
		for _, d := range doc.Diagnostics {
			fmt.Fprintf(c.stderr, "warning: %s\n", d)
		}
	}
	return doc, nil
}

func cmdBlocks(c *cli, args []string) error {
	fs := c.flags("blocks")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}
	doc, err := c.parse(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "%-5s %-24s %-5s %-3s %-3s %-6s %s\n", "Index", "Type", "Flags", "Min", "Cur", "Size", "Details")
	fmt.Fprintln(c.stdout, strings.Repeat("-", 72))
	for i, b := range doc.Blocks {
		info := b.Frame()
		size := "?"
		if frame, err := blocks.EncodeBlock(b, blocks.Options{}); err == nil {
			size = strconv.Itoa(len(frame) - tagged.BlockHeaderSize)
		}
		fmt.Fprintf(c.stdout, "%-5d %-24s %-5d %-3d %-3d %-6s %s\n",
			i, blocks.TypeName(b.Type()), info.Flags, info.MinVersion, info.CurrentVersion, size, blockDetails(b))
	}
	fmt.Fprintf(c.stdout, "\n%d blocks, %d unreadable\n", len(doc.Blocks), doc.Unreadable())
	return nil
}

func blockDetails(b blocks.Block) string {
	var parts []string
	switch v := b.(type) {
	case *blocks.UnreadableBlock:
		parts = append(parts, "unreadable: "+v.Reason())
	case blocks.ItemBlock:
		h := v.Header()
		parts = append(parts, fmt.Sprintf("item %s in %s", h.ItemID, h.ParentID))
		if h.DeletedLength > 0 {
			parts = append(parts, fmt.Sprintf("deleted=%d", h.DeletedLength))
		}
	case *blocks.SceneTreeBlock:
		parts = append(parts, fmt.Sprintf("group %s in %s", v.TreeID, v.ParentID))
	case *blocks.TreeNodeBlock:
		parts = append(parts, fmt.Sprintf("node %s %q", v.NodeID, v.Label.Value))
	case *blocks.AuthorIDsBlock:
		parts = append(parts, fmt.Sprintf("%d authors", len(v.Authors)))
	}
	if extra := b.Frame().Extra; len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("+%d unread bytes", len(extra)))
	}
	for _, u := range b.Frame().Nested {
		parts = append(parts, fmt.Sprintf("+%d unread bytes in %s", u.Len, u.What))
	}
	return strings.Join(parts, " ")
}

func cmdValues(c *cli, args []string) error {
	fs := c.flags("values")
	only := fs.IntP("block", "b", -1, "only dump the block with this index")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	r := tagged.NewReader(data)
	if err := r.ReadHeader(); err != nil {
		return err
	}
	for index := 0; r.Remaining() > 0; index++ {
		start := r.Offset()
		h, err := r.ReadBlockHeader()
		if err != nil {
			return fmt.Errorf("block %d at offset %d: %w", index, start, err)
		}
		payload, err := r.Bytes(int(h.Length))
		if err != nil {
			return fmt.Errorf("block %d at offset %d: %w", index, start, err)
		}
		if *only >= 0 && index != *only {
			continue
		}
		fmt.Fprintf(c.stdout, "block %d @%d %s len=%d flags=%d min=%d cur=%d\n",
			index, start, blocks.TypeName(h.Type), h.Length, h.Flags, h.MinVersion, h.CurrentVersion)
		dump := tagged.DumpAt(payload, start+tagged.BlockHeaderSize)
		for _, line := range strings.Split(strings.TrimSuffix(dump, "\n"), "\n") {
			if line != "" {
				fmt.Fprintf(c.stdout, "  %s\n", line)
			}
		}
	}
	return nil
}

func cmdTree(c *cli, args []string) error {
	fs := c.flags("tree")
	counts := fs.Bool("counts", false, "print item counts by kind instead of the tree")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}
	doc, err := c.parse(path)
	if err != nil {
		return err
	}

	if *counts {
		byKind := doc.Tree.Count()
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(c.stdout, "%-8s %d\n", k, byKind[k])
		}
		return nil
	}
	fmt.Fprint(c.stdout, doc.Tree.String())
	return nil
}

func cmdText(c *cli, args []string) error {
	fs := c.flags("text")
	styles := fs.BoolP("styles", "s", false, "prefix each paragraph with its style")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}
	doc, err := c.parse(path)
	if err != nil {
		return err
	}
	if doc.Text == nil {
		fmt.Fprintln(c.stderr, "no text on this page")
		return nil
	}

	if !*styles {
		s := doc.Text.String()
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		fmt.Fprint(c.stdout, s)
		return nil
	}
	for _, line := range doc.Text.Lines() {
		fmt.Fprintf(c.stdout, "%-10s %s\n", line.Style.String()+":", line.Text)
	}
	return nil
}

func cmdRoundtrip(c *cli, args []string) error {
	fs := c.flags("roundtrip")
	version := fs.String("version", "", "emulate the output of this software version")
	output := fs.StringP("output", "o", "", "write the re-encoded file here")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := rmfile.Parse(original)
	if err != nil {
		return err
	}

	written, err := rmfile.Write(doc, rmfile.Options{Version: *version})
	if err != nil {
		return err
	}
	if *output != "" {
		if err := os.WriteFile(*output, written, 0644); err != nil {
			return err
		}
	}

	if *version != "" {
		reparsed, err := rmfile.Parse(written)
		if err != nil {
			return fmt.Errorf("re-encoded file does not parse: %w", err)
		}
		fmt.Fprintf(c.stdout, "%d bytes written as version %s (%d blocks, %d diagnostics)\n",
			len(written), *version, len(reparsed.Blocks), len(reparsed.Diagnostics))
		return nil
	}

	if bytes.Equal(original, written) {
		fmt.Fprintf(c.stdout, "identical (%d bytes, %d blocks)\n", len(written), len(doc.Blocks))
		return nil
	}
	at := firstDifference(original, written)
	fmt.Fprintf(c.stdout, "differs at offset %d (original %d bytes, written %d bytes)\n", at, len(original), len(written))
	return errors.New("round trip is not identical")
}

func firstDifference(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func cmdExport(c *cli, args []string) error {
	fs := c.flags("export")
	formatName := fs.StringP("format", "f", "", "json, yaml or cbor (default from config)")
	output := fs.StringP("output", "o", "", "output file (default stdout)")
	path, err := oneArg(fs, args, "file")
	if err != nil {
		return err
	}

	if *formatName == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		*formatName = cfg.Export.Format
	}
	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return err
	}

	doc, err := c.parse(path)
	if err != nil {
		return err
	}
	snap := export.Build(doc, path)

	if *output == "" {
		return export.Encode(c.stdout, snap, format)
	}
	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := export.Encode(f, snap, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cmdSimpleText(c *cli, args []string) error {
	fs := c.flags("simple-text")
	output := fs.StringP("output", "o", "", "output .rm file (required)")
	author := fs.String("author", "", "author UUID (default random)")
	version := fs.String("version", "", "emulate this software version (default from config)")
	fromFile := fs.String("from", "", "read the text from this file; - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("usage: rmlinesctl simple-text -o <file.rm> [--from <file>] [text]")
	}

	var body string
	switch {
	case *fromFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		body = string(data)
	case *fromFile != "":
		data, err := os.ReadFile(*fromFile)
		if err != nil {
			return err
		}
		body = string(data)
	case fs.NArg() == 1:
		body = fs.Arg(0)
	default:
		return errors.New("give the text as one argument or with --from")
	}

	authorID := uuid.New()
	if *author != "" {
		id, err := uuid.Parse(*author)
		if err != nil {
			return fmt.Errorf("author: %w", err)
		}
		authorID = id
	}

	if *version == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		*version = cfg.Writer.Version
	}

	data, err := blocks.WriteBlocks(rmfile.SimpleTextDocument(body, authorID), blocks.Options{Version: *version})
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "wrote %s (%d bytes, author %s)\n", *output, len(data), authorID)
	return nil
}

func (c *cli) openCatalog() (*store.Store, *config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.CatalogPath()
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("no catalog at %s (is rmlinesd configured?)", path)
	}
	st, err := store.OpenWithTimeout(path, cfg.Catalog.BusyTimeoutMs)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func cmdCatalog(c *cli, args []string) error {
	fs := c.flags("catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sub := "list"
	if fs.NArg() > 0 {
		sub = fs.Arg(0)
	}

	st, _, err := c.openCatalog()
	if err != nil {
		return err
	}
	defer st.Close()

	switch sub {
	case "list":
		return c.catalogList(st)
	case "show", "history":
		if fs.NArg() != 2 {
			return fmt.Errorf("usage: rmlinesctl catalog %s <file>", sub)
		}
		path, err := filepath.Abs(fs.Arg(1))
		if err != nil {
			return err
		}
		f, err := st.GetFile(path)
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("%s is not in the catalog", path)
		}
		if sub == "show" {
			return c.catalogShow(st, f)
		}
		return c.catalogHistory(st, f)
	case "stats":
		return c.catalogStats(st)
	default:
		return fmt.Errorf("unknown catalog command: %s", sub)
	}
}

func (c *cli) catalogList(st *store.Store) error {
	files, err := st.ListFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(c.stdout, "No files recorded.")
		return nil
	}
	fmt.Fprintf(c.stdout, "%-20s %-7s %-6s %-6s %s\n", "Parsed", "Blocks", "Paras", "Diags", "Path")
	fmt.Fprintln(c.stdout, strings.Repeat("-", 72))
	for _, f := range files {
		fmt.Fprintf(c.stdout, "%-20s %-7d %-6d %-6d %s\n",
			f.ParsedAt().Format("2006-01-02 15:04:05"), f.BlockCount, f.ParagraphCount, f.DiagnosticCount, f.Path)
	}
	return nil
}

func (c *cli) catalogShow(st *store.Store, f *store.File) error {
	fmt.Fprintf(c.stdout, "Path:        %s\n", f.Path)
	fmt.Fprintf(c.stdout, "Hash:        %s\n", hex.EncodeToString(f.ContentHash[:]))
	fmt.Fprintf(c.stdout, "Size:        %s\n", formatBytes(f.Size))
	fmt.Fprintf(c.stdout, "Parsed:      %s\n", f.ParsedAt().Format(time.RFC3339))
	fmt.Fprintf(c.stdout, "Blocks:      %d (%d unreadable)\n", f.BlockCount, f.UnreadableCount)
	if f.HasText {
		fmt.Fprintf(c.stdout, "Paragraphs:  %d\n", f.ParagraphCount)
	}

	diags, err := st.Diagnostics(f.ID)
	if err != nil {
		return err
	}
	if len(diags) > 0 {
		fmt.Fprintf(c.stdout, "\nDiagnostics (%d):\n", len(diags))
		for _, d := range diags {
			fmt.Fprintf(c.stdout, "  block %d (0x%02x) %s: %s\n", d.BlockIndex, d.BlockType, d.Kind, d.Reason)
		}
	}
	if f.Text != "" {
		fmt.Fprintf(c.stdout, "\nText:\n%s\n", f.Text)
	}
	return nil
}

func (c *cli) catalogHistory(st *store.Store, f *store.File) error {
	parses, err := st.History(f.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%-20s %-16s %-7s %-10s %s\n", "Parsed", "Hash", "Blocks", "Unreadable", "Diags")
	fmt.Fprintln(c.stdout, strings.Repeat("-", 66))
	for _, p := range parses {
		fmt.Fprintf(c.stdout, "%-20s %-16s %-7d %-10d %d\n",
			time.Unix(0, p.ParsedAtNs).Format("2006-01-02 15:04:05"),
			hex.EncodeToString(p.ContentHash[:8]), p.BlockCount, p.UnreadableCount, p.DiagnosticCount)
	}
	return nil
}

func (c *cli) catalogStats(st *store.Store) error {
	files, err := st.ListFiles()
	if err != nil {
		return err
	}
	var blocksTotal, unreadable, withText int
	for _, f := range files {
		blocksTotal += f.BlockCount
		unreadable += f.UnreadableCount
		if f.HasText {
			withText++
		}
	}
	fmt.Fprintf(c.stdout, "Files:       %d (%d with text)\n", len(files), withText)
	fmt.Fprintf(c.stdout, "Blocks:      %d (%d unreadable)\n", blocksTotal, unreadable)

	counts, err := st.DiagnosticCounts()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintln(c.stdout, "Diagnostics:")
	for _, k := range kinds {
		fmt.Fprintf(c.stdout, "  %-20s %d\n", k, counts[k])
	}
	return nil
}

func cmdStatus(c *cli, args []string) error {
	fs := c.flags("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.stdout, "=== rmlinesd Status ===")
	fmt.Fprintln(c.stdout)

	pidPath := filepath.Join(config.DataDir(), "rmlinesd.pid")
	if pidData, err := os.ReadFile(pidPath); err != nil {
		fmt.Fprintln(c.stdout, "Daemon Status: NOT RUNNING")
	} else {
		pid, _ := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if processExists(pid) {
			fmt.Fprintf(c.stdout, "Daemon Status: RUNNING (PID %d)\n", pid)
		} else {
			fmt.Fprintf(c.stdout, "Daemon Status: STALE PID FILE (PID %d not found)\n", pid)
		}
	}
	fmt.Fprintln(c.stdout)

	fmt.Fprintln(c.stdout, "Catalog:")
	path := cfg.CatalogPath()
	if info, err := os.Stat(path); err != nil {
		fmt.Fprintln(c.stdout, "  No catalog found")
	} else {
		fmt.Fprintf(c.stdout, "  Path: %s (%s)\n", path, formatBytes(info.Size()))
		if st, err := store.OpenWithTimeout(path, cfg.Catalog.BusyTimeoutMs); err == nil {
			files, err := st.ListFiles()
			if err == nil {
				fmt.Fprintf(c.stdout, "  Files recorded: %d\n", len(files))
				stale := 0
				for _, f := range files {
					hash, _, err := watcher.HashFile(f.Path)
					if err != nil || hash != f.ContentHash {
						stale++
					}
				}
				if stale > 0 {
					fmt.Fprintf(c.stdout, "  Changed or missing since last parse: %d\n", stale)
				}
			}
			st.Close()
		}
	}
	fmt.Fprintln(c.stdout)

	fmt.Fprintln(c.stdout, "Watch Paths:")
	paths := cfg.WatchPaths()
	if len(paths) == 0 {
		fmt.Fprintln(c.stdout, "  (none configured)")
	}
	for _, p := range paths {
		fmt.Fprintf(c.stdout, "  - %s\n", p)
	}
	return nil
}

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signalZero(process) == nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
