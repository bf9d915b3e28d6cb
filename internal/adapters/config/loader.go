// Package config loads whiz.yaml into a domain.Graph.
package config

import (
	"path/filepath"
	"reflect"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/whizrun/whiz/internal/core/domain"
	"github.com/whizrun/whiz/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config file whiz looks for in the working
// directory and each of its ancestors.
const ConfigFileName = "whiz.yaml"

var validTaskNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Loader implements ports.ConfigLoader by reading a single whiz.yaml.
type Loader struct {
	Logger ports.Logger
	FS     FileSystem
}

// NewLoader creates a Loader backed by the real filesystem.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, FS: NewOSFS()}
}

// NewLoaderWithFS creates a Loader backed by a custom FileSystem, for tests.
func NewLoaderWithFS(logger ports.Logger, fsys FileSystem) *Loader {
	return &Loader{Logger: logger, FS: fsys}
}

// DiscoverRoot walks up from cwd looking for whiz.yaml.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	dir := cwd
	for {
		if _, err := l.FS.Stat(filepath.Join(dir, ConfigFileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

// DiscoverConfigPaths returns the single config file path and its mtime,
// used by the caller to decide whether a config-file edit requires a
// full reload versus an in-place task restart.
func (l *Loader) DiscoverConfigPaths(cwd string) (map[string]int64, error) {
	root, err := l.DiscoverRoot(cwd)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(root, ConfigFileName)
	info, err := l.FS.Stat(path)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}
	return map[string]int64{path: info.ModTime().UnixNano()}, nil
}

// Load reads whiz.yaml from cwd (or an ancestor) and builds a domain.Graph.
func (l *Loader) Load(cwd string) (*domain.Graph, error) {
	root, err := l.DiscoverRoot(cwd)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(filepath.Join(root, ConfigFileName))
}

// LoadFile reads the config file at path directly, without discovery, for
// --file overrides. The task graph's root is the file's containing directory.
func (l *Loader) LoadFile(path string) (*domain.Graph, error) {
	root := filepath.Dir(path)

	// #nosec G304 -- path comes from a CLI flag the user explicitly chose
	raw, err := l.FS.ReadFile(path)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	var node map[string]any
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	var doc Whizfile
	if err := decodeWhizfile(node, &doc); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	g := domain.NewGraph()
	g.SetRoot(root)

	taskNames := make(map[string]bool, len(doc.Tasks))
	for name := range doc.Tasks {
		taskNames[name] = true
	}

	for name, dto := range doc.Tasks {
		if err := validateTaskName(name); err != nil {
			return nil, err
		}
		if dto == nil {
			continue
		}
		for _, dep := range dto.DependsOn {
			if !taskNames[dep] {
				return nil, zerr.With(domain.ErrMissingDependency, "task_name", name, "dependency", dep)
			}
		}

		workingDir := resolveTaskWorkingDir(root, dto.WorkingDir)
		task, err := l.buildTask(name, dto, root, workingDir, doc.Env, doc.EnvFile)
		if err != nil {
			return nil, err
		}
		if err := g.AddTask(task); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// decodeWhizfile normalizes a raw YAML map into a Whizfile, converting any
// scalar value destined for a stringOrList field into a single-element
// slice before the strict mapstructure decode runs.
func decodeWhizfile(raw map[string]any, out *Whizfile) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		func(from reflect.Kind, to reflect.Kind, data any) (any, error) {
			if to == reflect.Slice && from == reflect.String {
				return []string{data.(string)}, nil
			}
			return data, nil
		},
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: hook,
		Result:     out,
		TagName:    "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// validateTaskName rejects the reserved name "all" and names containing ':'.
func validateTaskName(name string) error {
	if name == "all" {
		return zerr.With(domain.ErrReservedTaskName, "task_name", name)
	}
	if !validTaskNameRegex.MatchString(name) {
		return zerr.With(domain.ErrInvalidTaskName, "task_name", name)
	}
	return nil
}

// buildTask converts a TaskDTO plus inherited root env into a domain.Task.
// Root-level env_file paths are resolved relative to root (the config
// file's directory); task-level ones relative to the task's own workdir.
// Every resolved path is required to exist at load time: a dangling
// env_file is a startup config error, not a runtime surprise.
func (l *Loader) buildTask(name string, dto *TaskDTO, root string, workingDir domain.InternedString,
	rootEnv map[string]string, rootEnvFile []string) (*domain.Task, error) {

	env := make(map[string]string, len(rootEnv)+len(dto.Env))
	for k, v := range rootEnv {
		env[k] = v
	}
	for k, v := range dto.Env {
		env[k] = v
	}

	envFiles := make([]string, 0, len(rootEnvFile)+len(dto.EnvFile))
	for _, p := range rootEnvFile {
		resolved, err := l.resolveEnvFile(name, root, p)
		if err != nil {
			return nil, err
		}
		envFiles = append(envFiles, resolved)
	}
	for _, p := range dto.EnvFile {
		resolved, err := l.resolveEnvFile(name, workingDir.String(), p)
		if err != nil {
			return nil, err
		}
		envFiles = append(envFiles, resolved)
	}

	pipes := make([]domain.Pipe, 0, len(dto.Pipes))
	for _, p := range dto.Pipes {
		if p.Var == "" {
			return nil, zerr.With(domain.ErrUnknownPipeVar, "task_name", name, "pattern", p.Pattern)
		}
		if p.To == "" {
			return nil, zerr.With(domain.ErrUnknownPipeTarget, "task_name", name, "target", p.To)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return nil, zerr.With(domain.ErrBadPipeRegex, "task_name", name, "pattern", p.Pattern)
		}
		pipes = append(pipes, domain.Pipe{Pattern: p.Pattern, Var: p.Var, Target: domain.NewInternedString(p.To)})
	}

	return &domain.Task{
		Name:         domain.NewInternedString(name),
		Command:      dto.Command,
		WorkingDir:   workingDir,
		Dependencies: domain.NewInternedStrings(dedupeSorted(dto.DependsOn)),
		Watch:        dto.Watch,
		Ignore:       dto.Ignore,
		Env:          env,
		EnvFile:      envFiles,
		Pipes:        pipes,
	}, nil
}

// resolveEnvFile resolves p against base (unless already absolute) and
// confirms the file exists, attributing failures to taskName so the
// config-error report points at the offending task.
func (l *Loader) resolveEnvFile(taskName, base, p string) (string, error) {
	resolved := p
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	resolved = filepath.Clean(resolved)
	if _, err := l.FS.Stat(resolved); err != nil {
		return "", zerr.With(domain.ErrMissingEnvFile, "task_name", taskName, "path", resolved)
	}
	return resolved, nil
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// resolveTaskWorkingDir resolves a task's working directory relative to
// root unless it is already absolute.
func resolveTaskWorkingDir(root, configured string) domain.InternedString {
	if configured == "" {
		return domain.NewInternedString(root)
	}
	if filepath.IsAbs(configured) {
		return domain.NewInternedString(filepath.Clean(configured))
	}
	return domain.NewInternedString(filepath.Clean(filepath.Join(root, configured)))
}
