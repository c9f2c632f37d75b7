package toolchain

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/contractforge/forge/internal/corelog"
)

// importRe matches Solidity import statements naming an npm-style package,
// e.g. `import "@openzeppelin/contracts/token/ERC20/ERC20.sol";`.
var importRe = regexp.MustCompile(`import\s+(?:\{[^}]*\}\s+from\s+)?"([^".][^"]*)"`)

// FoundryResolver discovers a source file's package-style imports and
// installs them with `forge install`, then rewrites the workspace's
// remappings.txt so solc can find them. It shells out rather than parsing
// foundry.toml itself, matching the rest of the bridge layer's "let the
// real tool own its own format" stance.
type FoundryResolver struct {
	WorkspaceDir string
	Logger       corelog.Logger
}

// NewFoundryResolver builds a FoundryResolver rooted at workspaceDir.
func NewFoundryResolver(workspaceDir string, logger corelog.Logger) *FoundryResolver {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &FoundryResolver{WorkspaceDir: workspaceDir, Logger: logger}
}

// Resolve extracts package imports from source, installs any not already
// vendored under lib/, and appends missing remappings. Resolving the same
// source twice only installs what's missing, so repeat calls are cheap.
func (r *FoundryResolver) Resolve(ctx context.Context, source string) ([]Dependency, error) {
	packages := extractPackageImports(source)
	deps := make([]Dependency, 0, len(packages))

	for _, pkg := range packages {
		libDir := filepath.Join(r.WorkspaceDir, "lib", libDirName(pkg))
		if _, err := os.Stat(libDir); err == nil {
			deps = append(deps, Dependency{Name: pkg, VersionConstraint: "vendored"})
			continue
		}

		cmd := exec.CommandContext(ctx, "forge", "install", pkg, "--no-commit")
		cmd.Dir = r.WorkspaceDir
		output, err := cmd.CombinedOutput()
		if err != nil {
			return deps, fmt.Errorf("toolchain: forge install %s: %w: %s", pkg, err, string(output))
		}
		r.Logger.Info("resolved dependency", map[string]interface{}{"package": pkg})
		deps = append(deps, Dependency{Name: pkg, VersionConstraint: "latest"})
	}

	if err := r.ensureRemappings(packages); err != nil {
		return deps, err
	}
	return deps, nil
}

func (r *FoundryResolver) ensureRemappings(packages []string) error {
	path := filepath.Join(r.WorkspaceDir, "remappings.txt")
	existing := map[string]bool{}
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				existing[strings.SplitN(line, "=", 2)[0]] = true
			}
		}
		f.Close()
	}

	var toAppend []string
	for _, pkg := range packages {
		prefix := libDirName(pkg) + "/"
		if existing[prefix] {
			continue
		}
		toAppend = append(toAppend, fmt.Sprintf("%s=lib/%s/", prefix, libDirName(pkg)))
	}
	if len(toAppend) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("toolchain: open remappings.txt: %w", err)
	}
	defer f.Close()
	for _, line := range toAppend {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("toolchain: write remappings.txt: %w", err)
		}
	}
	return nil
}

func extractPackageImports(source string) []string {
	seen := map[string]bool{}
	var packages []string
	for _, match := range importRe.FindAllStringSubmatch(source, -1) {
		path := match[1]
		if strings.HasPrefix(path, ".") || strings.HasPrefix(path, "/") {
			continue
		}
		pkg := packageRoot(path)
		if pkg == "" || seen[pkg] {
			continue
		}
		seen[pkg] = true
		packages = append(packages, pkg)
	}
	return packages
}

// packageRoot collapses an import path like "@openzeppelin/contracts/token/ERC20/ERC20.sol"
// down to the installable package name "openzeppelin/openzeppelin-contracts"-style alias;
// here we keep the npm-style scope/name pair since that's what forge install accepts.
func packageRoot(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return ""
	}
	if strings.HasPrefix(parts[0], "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func libDirName(pkg string) string {
	if idx := strings.LastIndex(pkg, "/"); idx >= 0 {
		return pkg[idx+1:]
	}
	return pkg
}
