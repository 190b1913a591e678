package extractor

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DependenciesExtractor reads the project's manifest files (go.mod,
// package.json, requirements.txt) and records dependency names and
// versions. It only touches the manifests, so it needs no scan bounds.
type DependenciesExtractor struct {
	Logger *zap.Logger
}

// Extract implements factstore.Extractor.
func (e *DependenciesExtractor) Extract(ctx context.Context, root string) (map[string]any, string, error) {
	fields := map[string]any{}
	hash := sha256.New()

	if deps, mod, ok := parseGoMod(filepath.Join(root, "go.mod")); ok {
		fields["go_module"] = mod
		fields["go_requires"] = deps
		for _, d := range deps {
			hash.Write([]byte(d))
		}
	}

	if deps, ok := parsePackageJSON(filepath.Join(root, "package.json")); ok {
		fields["npm_dependencies"] = deps
		for _, d := range deps {
			hash.Write([]byte(d))
		}
	}

	if deps, ok := parseRequirements(filepath.Join(root, "requirements.txt")); ok {
		fields["python_requirements"] = deps
		for _, d := range deps {
			hash.Write([]byte(d))
		}
	}

	signature := hex.EncodeToString(hash.Sum(nil))
	return fields, signature, nil
}

// parseGoMod extracts the module path and direct requires.
func parseGoMod(path string) (deps []string, module string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false
	}
	defer f.Close()

	inRequire := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			module = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "require ("):
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire && line != "" && !strings.HasPrefix(line, "//"):
			if strings.Contains(line, "// indirect") {
				continue
			}
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				deps = append(deps, parts[0]+" "+parts[1])
			}
		case strings.HasPrefix(line, "require ") && !strings.Contains(line, "("):
			parts := strings.Fields(strings.TrimPrefix(line, "require "))
			if len(parts) >= 2 && !strings.Contains(line, "// indirect") {
				deps = append(deps, parts[0]+" "+parts[1])
			}
		}
	}
	return deps, module, true
}

// parsePackageJSON extracts dependency name@version pairs.
func parsePackageJSON(path string) ([]string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, false
	}

	var deps []string
	for name, version := range manifest.Dependencies {
		deps = append(deps, name+"@"+version)
	}
	for name, version := range manifest.DevDependencies {
		deps = append(deps, name+"@"+version)
	}
	sort.Strings(deps)
	return deps, true
}

// parseRequirements extracts non-comment requirement lines.
func parseRequirements(path string) ([]string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var deps []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		deps = append(deps, line)
	}
	return deps, true
}
