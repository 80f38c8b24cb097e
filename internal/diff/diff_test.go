package diff

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestCompute_SimpleAddition(t *testing.T) {
	oldContent := "line1\nline2\nline3\n"
	newContent := "line1\nline2\nline2.5\nline3\n"

	d := NewEngine(-1).Compute("old.toml", "new.toml", oldContent, newContent)

	if len(d.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(d.Hunks))
	}
	if d.IsNew || d.IsDelete {
		t.Error("Should not be marked as new or delete")
	}

	added, removed := d.Stats()
	if added != 1 || removed != 0 {
		t.Errorf("Expected +1 -0, got +%d -%d", added, removed)
	}

	var found *Line
	for i, l := range d.Hunks[0].Lines {
		if l.Type == LineAdded {
			found = &d.Hunks[0].Lines[i]
		}
	}
	if found == nil || found.Content != "line2.5" {
		t.Fatalf("Expected added line 'line2.5', got %+v", found)
	}
	if found.NewNum != 3 || found.OldNum != 0 {
		t.Errorf("Expected added line at new 3, got old=%d new=%d", found.OldNum, found.NewNum)
	}
}

func TestCompute_SimpleDeletion(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4\n"
	newContent := "line1\nline2\nline4\n"

	d := Compute("old.toml", "new.toml", oldContent, newContent)

	added, removed := d.Stats()
	if added != 0 || removed != 1 {
		t.Fatalf("Expected +0 -1, got +%d -%d", added, removed)
	}
	for _, l := range d.Hunks[0].Lines {
		if l.Type == LineRemoved && (l.Content != "line3" || l.OldNum != 3) {
			t.Errorf("Unexpected removed line %+v", l)
		}
	}
}

func TestCompute_NewAndDeletedFile(t *testing.T) {
	engine := NewEngine(DefaultContext)

	d := engine.Compute("", "new.toml", "", "a = 1\nb = 2\n")
	if !d.IsNew || d.IsDelete {
		t.Errorf("Expected new file, got IsNew=%v IsDelete=%v", d.IsNew, d.IsDelete)
	}
	if d.Hunks[0].OldStart != 0 || d.Hunks[0].OldCount != 0 {
		t.Errorf("Expected empty old range, got -%d,%d", d.Hunks[0].OldStart, d.Hunks[0].OldCount)
	}

	d = engine.Compute("old.toml", "", "a = 1\n", "")
	if !d.IsDelete || d.IsNew {
		t.Errorf("Expected deleted file, got IsNew=%v IsDelete=%v", d.IsNew, d.IsDelete)
	}
}

func TestCompute_NoChanges(t *testing.T) {
	content := "line1\nline2\nline3\n"

	d := NewEngine(-1).Compute("a", "b", content, content)

	if !d.Empty() {
		t.Error("Expected identical content to be empty")
	}
	if len(d.Hunks) != 0 {
		t.Errorf("Expected 0 hunks for identical content, got %d", len(d.Hunks))
	}
	if d.Unified() != "" {
		t.Errorf("Expected empty unified output, got %q", d.Unified())
	}
}

func numbered(n int, change map[int]string) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		if c, ok := change[i]; ok {
			sb.WriteString(c)
		} else {
			sb.WriteString("line" + strconv.Itoa(i))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestCompute_MultipleHunks(t *testing.T) {
	oldContent := numbered(20, nil)
	newContent := numbered(20, map[int]string{2: "CHANGED2", 18: "CHANGED18"})

	d := NewEngine(3).Compute("old", "new", oldContent, newContent)
	if len(d.Hunks) != 2 {
		t.Fatalf("Expected 2 hunks, got %d", len(d.Hunks))
	}

	first := d.Hunks[0]
	if first.OldStart != 1 || first.OldCount != 5 || first.NewStart != 1 || first.NewCount != 5 {
		t.Errorf("Unexpected first hunk range -%d,%d +%d,%d", first.OldStart, first.OldCount, first.NewStart, first.NewCount)
	}
	second := d.Hunks[1]
	if second.OldStart != 15 || second.OldCount != 6 {
		t.Errorf("Unexpected second hunk range -%d,%d", second.OldStart, second.OldCount)
	}
}

func TestCompute_NearbyChangesMerge(t *testing.T) {
	oldContent := numbered(20, nil)
	newContent := numbered(20, map[int]string{5: "A", 10: "B"})

	d := NewEngine(3).Compute("old", "new", oldContent, newContent)
	if len(d.Hunks) != 1 {
		t.Fatalf("Expected changes 4 lines apart to share a hunk, got %d hunks", len(d.Hunks))
	}
}

func TestCompute_ContextLines(t *testing.T) {
	oldContent := numbered(9, nil)
	newContent := numbered(9, map[int]string{5: "CHANGED"})

	for _, ctx := range []int{0, 1, 3} {
		d := NewEngine(ctx).Compute("old", "new", oldContent, newContent)
		if len(d.Hunks) != 1 {
			t.Fatalf("context %d: expected 1 hunk, got %d", ctx, len(d.Hunks))
		}
		contextLines := 0
		for _, l := range d.Hunks[0].Lines {
			if l.Type == LineContext {
				contextLines++
			}
		}
		if contextLines != 2*ctx {
			t.Errorf("context %d: expected %d context lines, got %d", ctx, 2*ctx, contextLines)
		}
	}
}

func TestCompute_EmptyLines(t *testing.T) {
	d := Compute("old", "new", "line1\n\nline3\n", "line1\n\n\nline3\n")

	added, _ := d.Stats()
	if added != 1 {
		t.Fatalf("Expected one added empty line, got %d", added)
	}
}

func TestCompute_Caching(t *testing.T) {
	oldContent := "line1\nline2\nline3\n"
	newContent := "line1\nline2\nline3\nline4\n"

	engine := NewEngine(-1)
	d1 := engine.Compute("old.txt", "new.txt", oldContent, newContent)
	d2 := engine.Compute("old2.txt", "new2.txt", oldContent, newContent)

	if len(d1.Hunks) != len(d2.Hunks) {
		t.Errorf("Cache should preserve hunk count: %d vs %d", len(d1.Hunks), len(d2.Hunks))
	}
	if d2.OldPath != "old2.txt" || d2.NewPath != "new2.txt" {
		t.Error("Cached diff should have updated paths")
	}
	if d1.OldPath != "old.txt" {
		t.Error("Cache hit must not rename the first result")
	}

	engine.ClearCache()
	d3 := engine.Compute("old.txt", "new.txt", oldContent, newContent)
	if len(d3.Hunks) != len(d1.Hunks) {
		t.Error("Cache clearing should not affect diff computation")
	}
}

func TestUnified(t *testing.T) {
	d := NewEngine(1).Compute("a/config.toml", "b/config.toml",
		"name = \"demo\"\nport = 80\nhost = \"x\"\n",
		"name = \"demo\"\nport = 8080\nhost = \"x\"\n")

	want := `--- a/config.toml
+++ b/config.toml
@@ -1,3 +1,3 @@
 name = "demo"
-port = 80
+port = 8080
 host = "x"
`
	if got := d.Unified(); got != want {
		t.Errorf("Unified mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestUnified_MissingFinalNewline(t *testing.T) {
	d := NewEngine(3).Compute("a", "b", "x\ny", "x\ny\n")

	want := "--- a\n+++ b\n@@ -1,2 +1,2 @@\n x\n-y\n" + NoNewline + "\n+y\n"
	if got := d.Unified(); got != want {
		t.Errorf("Unified mismatch:\n got: %q\nwant: %q", got, want)
	}
	added, removed := d.Stats()
	if added != 1 || removed != 1 {
		t.Errorf("Stats = +%d -%d, want +1 -1", added, removed)
	}
}

func TestUnified_SharedLastLineWithoutNewline(t *testing.T) {
	d := NewEngine(3).Compute("a", "b", "a\nz", "b\nz")

	want := "--- a\n+++ b\n@@ -1,2 +1,2 @@\n-a\n+b\n z\n" + NoNewline + "\n"
	if got := d.Unified(); got != want {
		t.Errorf("Unified mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "config.toml.1.bak")
	newPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(oldPath, []byte("a = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("a = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Files(oldPath, newPath)
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if added, removed := d.Stats(); added != 1 || removed != 1 {
		t.Errorf("Expected +1 -1, got +%d -%d", added, removed)
	}

	d, err = Files(filepath.Join(dir, "missing"), newPath)
	if err != nil {
		t.Fatalf("Files with missing old side returned error: %v", err)
	}
	if !d.IsNew {
		t.Error("Expected missing old side to count as a new file")
	}

	if _, err := Files(filepath.Join(dir, "x"), filepath.Join(dir, "y")); err == nil {
		t.Error("Expected error when both files are missing")
	}
}

func TestCompute_LargeFile(t *testing.T) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, "key"+strconv.Itoa(i)+" = "+strconv.Itoa(i))
	}
	oldContent := strings.Join(lines, "\n")
	lines[500] = "CHANGED LINE"
	newContent := strings.Join(lines, "\n")

	d := NewEngine(-1).Compute("old", "new", oldContent, newContent)
	if len(d.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(d.Hunks))
	}
	if d.Hunks[0].OldStart != 498 {
		t.Errorf("Expected hunk at line 498, got %d", d.Hunks[0].OldStart)
	}
}

func BenchmarkCompute_Large(b *testing.B) {
	var lines []string
	for i := 0; i < 5000; i++ {
		lines = append(lines, "key"+strconv.Itoa(i)+" = "+strconv.Itoa(i))
	}
	oldContent := strings.Join(lines, "\n")
	lines[2500] = "CHANGED"
	newContent := strings.Join(lines, "\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine := NewEngine(-1)
		engine.Compute("old", "new", oldContent, newContent)
	}
}
