package api

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Every route except login and the health endpoint must run behind the session
// middleware. This scans the route table so a new endpoint cannot land
// unguarded by accident.
func TestRoutesRequireSessionGuards(t *testing.T) {
	path := filepath.Join(projectRoot(t), "api", "server.go")
	lines := readLines(t, path)
	found := 0
	for i, line := range lines {
		if !strings.Contains(line, ".MethodFunc(") {
			continue
		}
		found++
		if strings.Contains(line, "s.withSession(") {
			continue
		}
		if strings.Contains(line, "s.rateLimitMiddleware(") {
			// Login is anonymous but throttled.
			continue
		}
		if strings.Contains(line, `"/health"`) {
			continue
		}
		t.Fatalf("unguarded route in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
	}
	if found == 0 {
		t.Fatal("no routes found, scan is broken")
	}
}

// Permission-gated route families must name a permission on the same line;
// session alone is not enough for incident mutation or admin surfaces.
func TestMutatingIncidentRoutesNamePermissions(t *testing.T) {
	path := filepath.Join(projectRoot(t), "api", "server.go")
	lines := readLines(t, path)
	for i, line := range lines {
		if !strings.Contains(line, ".MethodFunc(") {
			continue
		}
		if !strings.Contains(line, "h.incidents.") && !strings.Contains(line, "h.master.") && !strings.Contains(line, "h.logs.") {
			continue
		}
		if strings.Contains(line, "s.requirePermission(") || strings.Contains(line, "s.requireAnyPermission(") {
			continue
		}
		t.Fatalf("route without permission guard in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("caller info unavailable")
	}
	return filepath.Dir(filepath.Dir(file))
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
