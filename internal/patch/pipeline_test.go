package patch

import (
	"testing"

	"patchloop/internal/worktree"
)

func snapFor(t *testing.T, tree worktree.Tree) *worktree.Snapshot {
	t.Helper()
	snap, err := worktree.NewSnapshot(tree)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	return snap
}

func TestPipelineSkipsMissingTarget(t *testing.T) {
	tree := treeWith(t, map[string]string{
		"src/a.ts": "old line\n",
	})
	snap := snapFor(t, tree)

	patchText := `diff --git a/src/a.ts b/src/a.ts
--- a/src/a.ts
+++ b/src/a.ts
@@ -1,1 +1,1 @@
-old line
+new line
diff --git a/src/ghost.ts b/src/ghost.ts
deleted file mode 100644
--- a/src/ghost.ts
+++ /dev/null
@@ -1,1 +0,0 @@
-never existed
`

	outcomes := NewPipeline(nil).Run(Split(patchText), tree, snap)
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, expected 2", len(outcomes))
	}

	if outcomes[0].Result != ResultApplied {
		t.Errorf("chunk 0 = %+v, expected applied", outcomes[0])
	}
	if outcomes[1].Result != ResultSkipped || outcomes[1].Reason != "target path does not exist" {
		t.Errorf("chunk 1 = %+v, expected missing-target skip", outcomes[1])
	}

	// The attempt as a whole still counts: one chunk landed.
	report, err := Aggregate(outcomes)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if report.AppliedCount != 1 {
		t.Errorf("AppliedCount = %d, expected 1", report.AppliedCount)
	}

	got, _ := tree.Read("src/a.ts")
	if got != "new line\n" {
		t.Errorf("surviving chunk not applied: %q", got)
	}
}

func TestPipelineAddThenModifySameFile(t *testing.T) {
	tree := treeWith(t, map[string]string{})
	snap := snapFor(t, tree)

	// The second chunk modifies a file the first chunk creates, so the
	// snapshot must be updated between chunks.
	patchText := `diff --git a/src/fresh.ts b/src/fresh.ts
new file mode 100644
--- /dev/null
+++ b/src/fresh.ts
@@ -0,0 +1,2 @@
+const a = 1;
+const b = 2;
diff --git a/src/fresh.ts b/src/fresh.ts
--- a/src/fresh.ts
+++ b/src/fresh.ts
@@ -1,2 +1,2 @@
 const a = 1;
-const b = 2;
+const b = 3;
`

	outcomes := NewPipeline(nil).Run(Split(patchText), tree, snap)
	for _, o := range outcomes {
		if o.Result != ResultApplied {
			t.Fatalf("chunk %d = %+v, expected applied", o.ChunkIndex, o)
		}
	}

	got, _ := tree.Read("src/fresh.ts")
	if got != "const a = 1;\nconst b = 3;\n" {
		t.Errorf("final content = %q", got)
	}
	if !snap.Has("src/fresh.ts") {
		t.Error("snapshot does not know about the created file")
	}
}

func TestPipelineAllowList(t *testing.T) {
	tree := treeWith(t, map[string]string{
		"src/ok.ts":       "a\n",
		"secrets/key.pem": "b\n",
	})
	snap := snapFor(t, tree)

	patchText := `--- a/src/ok.ts
+++ b/src/ok.ts
@@ -1,1 +1,1 @@
-a
+A
--- a/secrets/key.pem
+++ b/secrets/key.pem
@@ -1,1 +1,1 @@
-b
+B
`

	outcomes := NewPipeline([]string{"src"}).Run(Split(patchText), tree, snap)
	if outcomes[0].Result != ResultApplied {
		t.Errorf("allowed chunk = %+v", outcomes[0])
	}
	if outcomes[1].Result != ResultSkipped || outcomes[1].Reason != "path outside allow-list" {
		t.Errorf("disallowed chunk = %+v", outcomes[1])
	}

	got, _ := tree.Read("secrets/key.pem")
	if got != "b\n" {
		t.Errorf("disallowed path was modified: %q", got)
	}
}

func TestPipelineUnparsableChunkSkipped(t *testing.T) {
	tree := treeWith(t, map[string]string{"a.ts": "x\n"})
	snap := snapFor(t, tree)

	chunks := []Chunk{{Index: 0, Raw: "@@ -1,1 +1,1 @@\n-x\n+y\n"}}
	outcomes := NewPipeline(nil).Run(chunks, tree, snap)

	if outcomes[0].Result != ResultSkipped || outcomes[0].Reason != "unparsable chunk header" {
		t.Errorf("outcome = %+v, expected unparsable skip", outcomes[0])
	}
	if got, _ := tree.Read("a.ts"); got != "x\n" {
		t.Errorf("unparsable chunk mutated the tree: %q", got)
	}
}

func TestPipelineDeleteUpdatesSnapshot(t *testing.T) {
	tree := treeWith(t, map[string]string{"src/gone.ts": "bye\n"})
	snap := snapFor(t, tree)

	patchText := `diff --git a/src/gone.ts b/src/gone.ts
deleted file mode 100644
--- a/src/gone.ts
+++ /dev/null
@@ -1,1 +0,0 @@
-bye
`

	outcomes := NewPipeline(nil).Run(Split(patchText), tree, snap)
	if outcomes[0].Result != ResultApplied {
		t.Fatalf("delete chunk = %+v", outcomes[0])
	}
	if snap.Has("src/gone.ts") {
		t.Error("snapshot still lists the deleted file")
	}
}

func TestPipelineHeuristicOutcome(t *testing.T) {
	tree := treeWith(t, map[string]string{"src/drift.ts": "content the patch never saw\n"})
	snap := snapFor(t, tree)

	patchText := `diff --git a/src/drift.ts b/src/drift.ts
deleted file mode 100644
--- a/src/drift.ts
+++ /dev/null
@@ -1,1 +0,0 @@
-what the generator believed was here
`

	outcomes := NewPipeline(nil).Run(Split(patchText), tree, snap)
	if outcomes[0].Result != ResultHeuristic || outcomes[0].Reason != "force-delete" {
		t.Fatalf("outcome = %+v, expected force-delete heuristic", outcomes[0])
	}
	if _, exists := tree.Read("src/drift.ts"); exists {
		t.Error("file survived the force-delete heuristic")
	}
	if snap.Has("src/drift.ts") {
		t.Error("snapshot still lists the heuristically deleted file")
	}
}
