package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func runCLI(stdin string, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"smscript"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []string
		want string
	}{
		{"text", "plain", nil, "plain"},
		{"loop", `{$ FOR i 1 3 $}{$= i $}{$END$}`, nil, "123"},
		{"param", `{$= "a" "x" @paramGet $}`, []string{"-p", "a=7"}, "7"},
		{"two params", `{$= "a" 0 @paramGet "b" 0 @paramGet + $}`, []string{"-p", "a=1", "-p", "b=2"}, "3"},
		{"locale", `{$= 1234.5 "#,##0.00" @decfmt $}`, []string{"-l", "de"}, "1.234,50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeScript(t, "s.smscr", tt.src)
			code, out, errOut := runCLI("", append(tt.args, p)...)
			if code != 0 {
				t.Fatalf("exit %d: %s", code, errOut)
			}
			if out != tt.want {
				t.Errorf("expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestRenderStdin(t *testing.T) {
	code, out, _ := runCLI(`{$= 2 3 ^ $}`)
	if code != 0 || out != "8" {
		t.Errorf("expected 8, got %d %q", code, out)
	}
}

func TestModes(t *testing.T) {
	src := `a{$FOR i 1 2$}{$=i "x"$}{$END$}`
	code, out, _ := runCLI(src, "-f")
	if code != 0 || out != `a{$ FOR i 1 2 $}{$= i "x" $}{$END$}`+"\n" {
		t.Errorf("unexpected canonical form %q", out)
	}

	code, out, _ = runCLI(src, "-a")
	if code != 0 || !strings.Contains(out, "For(i 1 2)") || !strings.Contains(out, `Text("a")`) {
		t.Errorf("unexpected tree %q", out)
	}

	code, out, _ = runCLI(src, "-t")
	if code != 0 || !strings.HasPrefix(out, `Text("a")`) || !strings.HasSuffix(out, "EOF\n") {
		t.Errorf("unexpected tokens %q", out)
	}
}

func TestErrors(t *testing.T) {
	code, _, errOut := runCLI("ok\n{$ FOR $}")
	if code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut, "-:2:") || !strings.Contains(errOut, "^") {
		t.Errorf("expected a positioned snippet, got %q", errOut)
	}

	code, out, errOut := runCLI("ok{$= 1 0 / $}")
	if code != 1 || out != "ok" || errOut == "" {
		t.Errorf("expected partial output and an error, got %d %q %q", code, out, errOut)
	}

	if code, _, _ = runCLI("", filepath.Join(t.TempDir(), "missing.smscr")); code != 1 {
		t.Errorf("expected exit 1 for a missing file, got %d", code)
	}
	if code, _, _ = runCLI("", "-p", "novalue"); code != 2 {
		t.Errorf("expected exit 2 for a bad parameter, got %d", code)
	}
	if code, _, _ = runCLI("", "-x"); code != 2 {
		t.Errorf("expected exit 2 for an unknown option, got %d", code)
	}
	if code, out, _ = runCLI("", "-h"); code != 0 || !strings.Contains(out, "usage") {
		t.Errorf("expected usage, got %d %q", code, out)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "part.smscr")
	if err := os.WriteFile(part, []byte(`<{$= "v" "?" @paramGet $}>`), 0644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(`[{$= "`+filepath.ToSlash(part)+`" @include $}]`, "-p", "v=1")
	if code != 0 || out != "[<1>]" {
		t.Errorf("expected [<1>], got %d %q %q", code, out, errOut)
	}

	self := filepath.Join(dir, "self.smscr")
	if err := os.WriteFile(self, []byte(`{$= "`+filepath.ToSlash(self)+`" @include $}`), 0644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ = runCLI("", self); code != 1 {
		t.Errorf("expected recursive include to fail, got %d", code)
	}
}
