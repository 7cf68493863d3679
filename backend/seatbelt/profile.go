package seatbelt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/internal/pathutil"
)

// profileBuilder constructs an SBPL (Sandbox Profile Language) profile from a
// Policy. SBPL uses Scheme-like S-expression syntax.
//
// Statement order is load-bearing throughout: Seatbelt uses last-match-wins,
// and the required order per restricted subtree is (1) baseline allow,
// (2) deny-subpath for the restricted parent, (3) allow-subpath for each
// nested exception, emitted separately for the independent file-read* and
// file-write* statement families.
type profileBuilder struct {
	buf strings.Builder
}

// newProfileBuilder returns a new profileBuilder.
func newProfileBuilder() *profileBuilder {
	return &profileBuilder{}
}

// Build generates an SBPL profile string from the given Policy.
func (b *profileBuilder) Build(pol *backend.Policy) (string, error) {
	b.buf.Reset()

	b.writeBase()
	b.writeWriteContainment(pol)
	b.writeSafeMode(pol)
	b.writeReadOnly(pol)
	b.writeDenies(pol)
	b.writeMoveBlocking(pol)

	return b.buf.String(), nil
}

// writeBase emits the SBPL version header and the baseline allow. The host
// is allow-by-default for reads; write containment below narrows it.
func (b *profileBuilder) writeBase() {
	b.line("(version 1)")
	b.line("(allow default)")
	b.blank()
}

// writeWriteContainment denies all writes, then re-allows the temp
// directories and each read-write grant. Grants are emitted shallowest first
// so broader paths never shadow narrower later statements.
func (b *profileBuilder) writeWriteContainment(pol *backend.Policy) {
	b.comment("File write: deny all by default, allow specific subtrees")
	b.line("(deny file-write*)")

	for _, d := range tmpdirParents() {
		b.linef(`(allow file-write* (subpath "%s"))`, escapeForSBPL(d))
	}

	for _, root := range backend.SortByDepth(pol.ReadWrite) {
		b.linef(`(allow file-write* (subpath "%s"))`, escapeForSBPL(root))
	}
	if pol.Project != "" {
		b.linef(`(allow file-write* (subpath "%s"))`, escapeForSBPL(pol.Project))
	}
	b.blank()
}

// writeReadOnly re-denies writes on read-only grants. Emitted after both the
// read-write allows and the safe-mode re-allows so a read-only path nested
// inside a writable root, the project, or a grant under home stays unwritable
// under last-match-wins.
func (b *profileBuilder) writeReadOnly(pol *backend.Policy) {
	if len(pol.ReadOnly) == 0 {
		return
	}
	b.comment("Read-only grants: readable via baseline, writes re-denied")
	for _, p := range backend.SortByDepth(pol.ReadOnly) {
		b.linef(`(deny file-write* (subpath "%s"))`, escapeForSBPL(p))
	}
	b.blank()
}

// writeSafeMode hides the home directory behind a synthetic deny-then-allow
// sequence: deny the whole home subtree for both permission classes, then
// re-allow the project directory and every explicit grant nested under home.
func (b *profileBuilder) writeSafeMode(pol *backend.Policy) {
	if !pol.SafeMode || pol.Home == "" {
		return
	}
	home := escapeForSBPL(pol.Home)

	b.comment("Safe mode: hide home directory except project and explicit grants")
	b.linef(`(deny file-read* (subpath "%s"))`, home)
	b.linef(`(deny file-write* (subpath "%s"))`, home)

	if pol.Project != "" {
		proj := escapeForSBPL(pol.Project)
		b.linef(`(allow file-read* (subpath "%s"))`, proj)
		b.linef(`(allow file-write* (subpath "%s"))`, proj)
	}

	for _, g := range backend.GrantsUnder(pol, pol.Home) {
		p := escapeForSBPL(g.Path)
		b.linef(`(allow file-read* (subpath "%s"))`, p)
		if g.Write {
			b.linef(`(allow file-write* (subpath "%s"))`, p)
		}
	}
	b.blank()
}

// writeDenies emits, per denied subtree, the deny statements followed by the
// allow statements for each nested exception. Reversing the two silently
// re-denies the exception.
func (b *profileBuilder) writeDenies(pol *backend.Policy) {
	if len(pol.Deny) == 0 {
		return
	}
	b.comment("Denied subtrees with nested exceptions")
	for _, deny := range backend.SortByDepth(pol.Deny) {
		d := escapeForSBPL(deny)
		b.linef(`(deny file-read* (subpath "%s"))`, d)
		b.linef(`(deny file-write* (subpath "%s"))`, d)

		for _, exc := range backend.ExceptionsUnder(pol, deny) {
			p := escapeForSBPL(exc.Path)
			b.linef(`(allow file-read* (subpath "%s"))`, p)
			if exc.Write {
				b.linef(`(allow file-write* (subpath "%s"))`, p)
			}
		}
	}
	b.blank()
}

// writeMoveBlocking prevents bypass via mv/rename of protected paths by
// denying unlink within denied subtrees and on their ancestor directories.
// Renaming an ancestor would otherwise move a protected subtree out from
// under its path-based rules.
func (b *profileBuilder) writeMoveBlocking(pol *backend.Policy) {
	if len(pol.Deny) == 0 {
		return
	}
	b.comment("Prevent bypass via mv/rename of denied paths")
	seen := make(map[string]bool)
	for _, deny := range backend.SortByDepth(pol.Deny) {
		b.linef(`(deny file-write-unlink (subpath "%s"))`, escapeForSBPL(deny))
		for _, ancestor := range pathutil.Ancestors(deny) {
			if !seen[ancestor] {
				seen[ancestor] = true
				b.linef(`(deny file-write-unlink (literal "%s"))`, escapeForSBPL(ancestor))
			}
		}
	}
	b.blank()
}

// line writes a single SBPL line.
func (b *profileBuilder) line(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

// linef writes a formatted SBPL line.
func (b *profileBuilder) linef(format string, args ...any) {
	b.buf.WriteString(fmt.Sprintf(format, args...))
	b.buf.WriteByte('\n')
}

// comment writes an SBPL comment line.
func (b *profileBuilder) comment(s string) {
	b.buf.WriteString("; ")
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

// blank writes an empty line.
func (b *profileBuilder) blank() {
	b.buf.WriteByte('\n')
}

// escapeForSBPL escapes special characters for SBPL string literals. SBPL
// uses double-quoted strings with backslash escaping. Null bytes are stripped
// to prevent profile injection.
func escapeForSBPL(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

// tmpdirParents returns the temp directory subtrees that stay writable:
// the canonical macOS temp locations plus the user TMPDIR if set.
func tmpdirParents() []string {
	dirs := map[string]struct{}{
		"/private/tmp":         {},
		"/private/var/folders": {},
	}
	if tmpdir := os.Getenv("TMPDIR"); tmpdir != "" {
		cleaned := filepath.Clean(tmpdir)
		if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
			cleaned = resolved
		}
		dirs[cleaned] = struct{}{}
	}
	out := make([]string, 0, len(dirs))
	for d := range dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
