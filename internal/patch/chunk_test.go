package patch

import (
	"strings"
	"testing"
)

const multiFilePatch = `diff --git a/src/a.ts b/src/a.ts
index 1111111..2222222 100644
--- a/src/a.ts
+++ b/src/a.ts
@@ -1,3 +1,3 @@
 context
-old
+new
diff --git a/src/b.ts b/src/b.ts
deleted file mode 100644
--- a/src/b.ts
+++ /dev/null
@@ -1,2 +0,0 @@
-line1
-line2
diff --git a/src/c.ts b/src/c.ts
new file mode 100644
--- /dev/null
+++ b/src/c.ts
@@ -0,0 +1,1 @@
+hello
`

func TestSplitChunkCount(t *testing.T) {
	chunks := Split(multiFilePatch)
	if len(chunks) != 3 {
		t.Fatalf("Split returned %d chunks, expected 3", len(chunks))
	}

	// Chunk count must match the number of file headers, and order
	// must follow the source text.
	wantTargets := []string{"src/a.ts", "src/b.ts", "src/c.ts"}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has Index %d", i, chunk.Index)
		}
		if chunk.Target() != wantTargets[i] {
			t.Errorf("chunk %d targets %q, expected %q", i, chunk.Target(), wantTargets[i])
		}
	}
}

func TestSplitClassifiesOperations(t *testing.T) {
	chunks := Split(multiFilePatch)
	if len(chunks) != 3 {
		t.Fatalf("Split returned %d chunks, expected 3", len(chunks))
	}

	wantOps := []Operation{OpModify, OpDelete, OpAdd}
	for i, chunk := range chunks {
		if chunk.Op != wantOps[i] {
			t.Errorf("chunk %d classified as %s, expected %s", i, chunk.Op, wantOps[i])
		}
	}
}

func TestSplitWithoutGitHeaders(t *testing.T) {
	patchText := "--- a/x.ts\n+++ b/x.ts\n@@ -1,1 +1,1 @@\n-a\n+b\n" +
		"--- a/y.ts\n+++ b/y.ts\n@@ -1,1 +1,1 @@\n-c\n+d\n"

	chunks := Split(patchText)
	if len(chunks) != 2 {
		t.Fatalf("Split returned %d chunks, expected 2", len(chunks))
	}
	if chunks[0].Target() != "x.ts" || chunks[1].Target() != "y.ts" {
		t.Errorf("unexpected targets %q and %q", chunks[0].Target(), chunks[1].Target())
	}
}

func TestSplitIgnoresDashedHunkContent(t *testing.T) {
	// Deleting a source line that begins "-- " renders as "--- …" in
	// the hunk body; it must not be mistaken for a file header.
	patchText := "--- a/doc.txt\n+++ b/doc.txt\n@@ -1,3 +1,2 @@\n alpha\n--- divider\n omega\n"

	chunks := Split(patchText)
	if len(chunks) != 1 {
		t.Fatalf("Split returned %d chunks, expected 1", len(chunks))
	}
	if chunks[0].Target() != "doc.txt" {
		t.Errorf("chunk targets %q, expected doc.txt", chunks[0].Target())
	}
	if !strings.Contains(chunks[0].Raw, "--- divider") {
		t.Errorf("chunk body lost the deleted line: %q", chunks[0].Raw)
	}
}

func TestSplitPreservesRawBody(t *testing.T) {
	chunks := Split(multiFilePatch)
	for _, chunk := range chunks {
		if !strings.HasSuffix(chunk.Raw, "\n") {
			t.Errorf("chunk %d raw body lacks trailing newline", chunk.Index)
		}
		if !strings.Contains(chunk.Raw, "@@") {
			t.Errorf("chunk %d raw body lost its hunk header", chunk.Index)
		}
	}
	if !strings.Contains(chunks[2].Raw, "+hello") {
		t.Errorf("chunk 2 raw body lost its added line: %q", chunks[2].Raw)
	}
}

func TestUnparsableHeaderYieldsSkippableChunk(t *testing.T) {
	patchText := "diff --git garbage\n@@ -1,1 +1,1 @@\n-a\n+b\n"

	chunks := Split(patchText)
	if len(chunks) != 1 {
		t.Fatalf("Split returned %d chunks, expected 1", len(chunks))
	}
	if chunks[0].Parsable() {
		t.Errorf("chunk with mangled header reported as parsable: %+v", chunks[0])
	}
}

func TestChunkTargetRename(t *testing.T) {
	chunk := Chunk{SourcePath: "old/name.ts", DestPath: "new/name.ts", Op: OpModify}
	if chunk.Target() != "new/name.ts" {
		t.Errorf("rename chunk targets %q, expected new/name.ts", chunk.Target())
	}

	del := Chunk{SourcePath: "gone.ts", Op: OpDelete}
	if del.Target() != "gone.ts" {
		t.Errorf("delete chunk targets %q, expected gone.ts", del.Target())
	}
}
