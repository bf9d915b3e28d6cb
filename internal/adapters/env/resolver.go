// Package env resolves a task's final environment from the layered merge
// of process environment, env files, inline env maps and upstream pipe
// exports, expanding ${VAR} references across the merged result.
package env

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/whizrun/whiz/internal/core/domain"
	"go.trai.ch/zerr"
)

// Resolver computes a task's final "KEY=VALUE" environment slice.
type Resolver struct {
	// ProcessEnv is the base layer; nil means an empty base layer
	// (NewResolver seeds it from os.Environ()).
	ProcessEnv []string
}

// NewResolver creates a Resolver seeded from the current process environment.
func NewResolver() *Resolver {
	return &Resolver{ProcessEnv: os.Environ()}
}

var varRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve merges, in increasing priority: the process environment, every
// file in task.EnvFile in order, the task.Env map, and the upstream map.
// The config loader fills EnvFile with the root env files followed by the
// task's own, and Env with the root map overlaid by the task's map, so the
// effective order is: process env, root env files, task env files, root
// env map, task env map, upstream exports. A root env map entry therefore
// overrides a task env file entry of the same key.
// Every value in the merged map may reference ${VAR} against any other key
// of the merged map; references are expanded recursively with cycle
// detection.
func (r *Resolver) Resolve(task *domain.Task, upstream map[string]string) ([]string, error) {
	merged := make(map[string]string)

	for _, kv := range r.ProcessEnv {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			merged[k] = v
		}
	}

	for _, path := range task.EnvFile {
		fileVars, err := readEnvFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fileVars {
			merged[k] = v
		}
	}

	for k, v := range task.Env {
		merged[k] = v
	}

	for k, v := range upstream {
		merged[k] = v
	}

	expanded, err := expandAll(merged)
	if err != nil {
		return nil, zerr.With(err, "task_name", task.Name.String())
	}

	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		out = append(out, k+"="+v)
	}
	return out, nil
}

func readEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the task's own config
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMissingEnvFile.Error()), "path", path)
	}
	defer func() { _ = f.Close() }()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMissingEnvFile.Error()), "path", path)
	}
	return vars, nil
}

// expandAll resolves every ${VAR} reference in merged against the rest of
// merged, iterating until no more substitutions happen. A variable that
// depends (transitively) on itself is reported as ErrEnvExpansionCycle.
func expandAll(merged map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(merged))
	for k := range merged {
		v, err := expandOne(k, merged, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func expandOne(key string, merged map[string]string, visiting map[string]bool) (string, error) {
	if visiting[key] {
		return "", zerr.With(domain.ErrEnvExpansionCycle, "var", key)
	}
	visiting[key] = true
	defer delete(visiting, key)

	value, ok := merged[key]
	if !ok {
		return "", zerr.With(domain.ErrUndefinedEnvVar, "var", key)
	}

	var expandErr error
	result := varRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
		if expandErr != nil {
			return ref
		}
		name := varRefPattern.FindStringSubmatch(ref)[1]
		resolved, err := expandOne(name, merged, visiting)
		if err != nil {
			expandErr = err
			return ref
		}
		return resolved
	})
	if expandErr != nil {
		return "", expandErr
	}
	return result, nil
}
