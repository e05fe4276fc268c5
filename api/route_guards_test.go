package api

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Every API route must resolve the session, and every mutation other than
// logout must also require an administrator.
func TestAPIRoutesHaveSessionGuards(t *testing.T) {
	path := filepath.Join(packageDir(t), "routes.go")
	lines := readLines(t, path)
	found := 0
	for i, line := range lines {
		if !strings.Contains(line, ".MethodFunc(") || strings.Contains(line, "/healthz") {
			continue
		}
		found++
		if !strings.Contains(line, "s.withSession(") {
			t.Fatalf("unguarded route in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
		}
		mutating := strings.Contains(line, `"POST"`) || strings.Contains(line, `"PUT"`) || strings.Contains(line, `"DELETE"`)
		if mutating && !strings.Contains(line, "s.requireAdmin(") && !strings.Contains(line, "/auth/logout") {
			t.Fatalf("mutation without admin guard in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
		}
	}
	if found == 0 {
		t.Fatalf("no routes found in %s", path)
	}
}

func packageDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("resolve caller")
	}
	return filepath.Dir(file)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}
