package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"patchloop/internal/change"
)

func TestParseFileEntriesJSON(t *testing.T) {
	content := `{"files":[{"path":"src/a.ts","content":"const a = 1;\n"},{"path":"src/b.ts","content":"const b = 2;\n"}]}`

	entries, err := ParseFileEntries(content)
	if err != nil {
		t.Fatalf("ParseFileEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, expected 2", len(entries))
	}
	if entries[0].Path != "src/a.ts" || entries[0].Content != "const a = 1;\n" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
}

func TestParseFileEntriesBareArray(t *testing.T) {
	content := `[{"path":"x.ts","content":"hi\n"}]`

	entries, err := ParseFileEntries(content)
	if err != nil {
		t.Fatalf("ParseFileEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "x.ts" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestParseFileEntriesFencedBlocks(t *testing.T) {
	content := "Here are the files.\n\n" +
		"FILE: src/app.ts\n" +
		"```typescript\n" +
		"export const app = true;\n" +
		"```\n\n" +
		"FILE: src/index.ts\n" +
		"```\n" +
		"import { app } from './app';\n" +
		"console.log(app);\n" +
		"```\n"

	entries, err := ParseFileEntries(content)
	if err != nil {
		t.Fatalf("ParseFileEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, expected 2", len(entries))
	}
	if entries[0].Path != "src/app.ts" || entries[0].Content != "export const app = true;\n" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Path != "src/index.ts" || !strings.Contains(entries[1].Content, "console.log(app);") {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestParseFileEntriesSkipsPathlessJSON(t *testing.T) {
	content := `{"files":[{"path":"","content":"orphan"},{"path":"ok.ts","content":"fine\n"}]}`

	entries, err := ParseFileEntries(content)
	if err != nil {
		t.Fatalf("ParseFileEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "ok.ts" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestParseFileEntriesRejectsProse(t *testing.T) {
	if _, err := ParseFileEntries("I would suggest refactoring the module instead."); err == nil {
		t.Error("ParseFileEntries accepted prose with no file entries")
	}
}

func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		resp := ChatResponse{
			Model:   "test-model",
			Choices: []Choice{{Message: Message{Role: "assistant", Content: reply}}},
			Usage:   Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestProposePatchRepresentation(t *testing.T) {
	patchText := "--- a/f.ts\n+++ b/f.ts\n@@ -1,1 +1,1 @@\n-a\n+b\n"
	server := chatServer(t, patchText)
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	cand, err := client.Propose(context.Background(), ProposeRequest{
		Mode:           change.ModeFix,
		Representation: change.RepPatch,
		Task:           "fix the build",
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if cand.Kind != change.KindPatch {
		t.Errorf("Kind = %v, expected patch", cand.Kind)
	}
	if cand.Patch != patchText {
		t.Errorf("Patch = %q", cand.Patch)
	}
}

func TestProposeFilesRepresentation(t *testing.T) {
	reply := `{"files":[{"path":"src/a.ts","content":"done\n"}]}`
	server := chatServer(t, reply)
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	cand, err := client.Propose(context.Background(), ProposeRequest{
		Mode:           change.ModeFeature,
		Representation: change.RepFiles,
		Task:           "add the file",
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if cand.Kind != change.KindFiles {
		t.Errorf("Kind = %v, expected files", cand.Kind)
	}
	if len(cand.Entries) != 1 || cand.Entries[0].Path != "src/a.ts" {
		t.Errorf("Entries = %+v", cand.Entries)
	}
}

func TestProposeEmptyResponse(t *testing.T) {
	server := chatServer(t, "")
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	if _, err := client.Propose(context.Background(), ProposeRequest{
		Mode:           change.ModeFix,
		Representation: change.RepPatch,
		Task:           "anything",
	}); err == nil {
		t.Error("Propose accepted an empty generator response")
	}
}

func TestProposeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	if _, err := client.Propose(context.Background(), ProposeRequest{
		Mode:           change.ModeFix,
		Representation: change.RepPatch,
		Task:           "anything",
	}); err == nil {
		t.Error("Propose swallowed an API error")
	}
}

func TestBuildUserPromptIncludesLog(t *testing.T) {
	prompt := buildUserPrompt(ProposeRequest{
		Task:          "make it work",
		RepoContext:   "src/app.ts exists",
		ValidationLog: "error TS2304: cannot find name",
	})

	for _, want := range []string{"make it work", "src/app.ts exists", "error TS2304"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
