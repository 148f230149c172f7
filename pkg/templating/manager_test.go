package templating

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/smartscript/pkg/engine"
	"github.com/CTAG07/smartscript/pkg/smartscript"
)

func writeScript(tb testing.TB, dir, name, content string) {
	tb.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		tb.Fatalf("failed to create dir for %s: %v", name, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		tb.Fatalf("failed to write script %s: %v", name, err)
	}
}

// setupTestManager creates a TemplateManager over a fresh directory holding
// a couple of scripts.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()

	dir := tb.TempDir()
	writeScript(tb, dir, "hello.smscr", `Hello {$= "name" "world" @paramGet $}`)
	writeScript(tb, dir, "sub/loop.smscr", `{$FOR i 1 3$}{$=i$}{$END$}`)
	writeScript(tb, dir, "readme.txt", `{$ not a script`)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := NewTemplateManager(logger, DefaultConfig(), dir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)
	names := tm.GetScriptNames()
	if len(names) != 2 || names[0] != "hello.smscr" || names[1] != "sub/loop.smscr" {
		t.Errorf("unexpected script names %v", names)
	}
}

func TestNewTemplateManager_MissingDir(t *testing.T) {
	tm, err := NewTemplateManager(nil, DefaultConfig(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("a missing directory should not be fatal: %v", err)
	}
	if len(tm.GetScriptNames()) != 0 {
		t.Error("expected no scripts")
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t)

	var buf bytes.Buffer
	if err := tm.Execute(engine.NewContext(&buf, map[string]string{"name": "Ana"}), "/hello.smscr"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if buf.String() != "Hello Ana" {
		t.Errorf("expected 'Hello Ana', got '%s'", buf.String())
	}

	buf.Reset()
	if err := tm.Execute(engine.NewContext(&buf, nil), "sub/../sub/loop.smscr"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if buf.String() != "123" {
		t.Errorf("expected '123', got '%s'", buf.String())
	}

	err := tm.Execute(engine.NewContext(&buf, nil), "nonexistent.smscr")
	if !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("expected ErrScriptNotFound, got %v", err)
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	dir := tm.GetScriptDir()

	writeScript(t, dir, "new.smscr", `new`)
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !tm.Has("new.smscr") {
		t.Error("expected new.smscr after refresh")
	}

	writeScript(t, dir, "broken.smscr", `{$FOR i 1$}`)
	err := tm.Refresh()
	if !errors.Is(err, smartscript.ErrWrongArgumentCount) {
		t.Fatalf("expected refresh to fail with the parse error, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken.smscr") {
		t.Errorf("error should name the script: %v", err)
	}
	if !tm.Has("new.smscr") || len(tm.GetScriptNames()) != 3 {
		t.Error("a failed refresh must keep the previous scripts")
	}
}

func TestManager_ScriptInfo(t *testing.T) {
	tm := setupTestManager(t)
	info, ok := tm.GetScriptInfo("hello.smscr")
	if !ok {
		t.Fatal("expected info for hello.smscr")
	}
	if len(info.Digest) != 64 {
		t.Errorf("expected a 32-byte hex digest, got %q", info.Digest)
	}
	if len(info.Functions) != 1 || info.Functions[0] != "paramGet" {
		t.Errorf("unexpected functions %v", info.Functions)
	}
	if info.Size != int64(len(`Hello {$= "name" "world" @paramGet $}`)) {
		t.Errorf("unexpected size %d", info.Size)
	}
}

func TestManager_SetConfig(t *testing.T) {
	tm := setupTestManager(t)
	config := DefaultConfig()
	config.MaxLoopIterations = 2
	config.Locale = "de"
	if err := tm.SetConfig(config); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if tm.GetConfig().MaxLoopIterations != 2 {
		t.Errorf("SetConfig failed to update MaxLoopIterations")
	}
	var buf bytes.Buffer
	err := tm.Execute(engine.NewContext(&buf, nil), "sub/loop.smscr")
	if !errors.Is(err, engine.ErrIterationLimit) {
		t.Errorf("expected the new iteration limit to apply, got %v", err)
	}

	bad := DefaultConfig()
	bad.Locale = "not a locale!"
	if err := tm.SetConfig(bad); err == nil {
		t.Error("expected an invalid locale to be rejected")
	}
	if tm.GetConfig().Locale != "de" {
		t.Error("a rejected config must not be applied")
	}
}

func TestManager_ExecuteString(t *testing.T) {
	tm := setupTestManager(t)
	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		if err := tm.ExecuteString(engine.NewContext(&buf, nil), `{$= 2 3 * $}`); err != nil {
			t.Fatalf("ExecuteString failed: %v", err)
		}
		if buf.String() != "6" {
			t.Errorf("expected 6, got %q", buf.String())
		}
	}
	if tm.previewCount() != 1 {
		t.Errorf("expected one cached preview, got %d", tm.previewCount())
	}

	if err := tm.ExecuteString(engine.NewContext(io.Discard, nil), `{$END$}`); !errors.Is(err, smartscript.ErrUnmatchedEnd) {
		t.Errorf("expected ErrUnmatchedEnd, got %v", err)
	}

	config := DefaultConfig()
	config.PreviewCacheSize = 2
	if err := tm.SetConfig(config); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	for _, src := range []string{"a", "b", "c"} {
		_ = tm.ExecuteString(engine.NewContext(io.Discard, nil), src)
	}
	if tm.previewCount() != 2 {
		t.Errorf("expected the preview cache to hold 2 entries, got %d", tm.previewCount())
	}
}

func BenchmarkExecute(b *testing.B) {
	tm := setupTestManager(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(engine.NewContext(io.Discard, nil), "sub/loop.smscr")
	}
}

func BenchmarkExecuteString(b *testing.B) {
	tm := setupTestManager(b)
	src := `{$FOR i 0 90 10$}{$= i @sin "0.00" @decfmt $} {$END$}`
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.ExecuteString(engine.NewContext(io.Discard, nil), src)
	}
}
