package config

// stringOrList decodes a YAML scalar or sequence into a []string. Whiz's
// config allows `watch: foo/**` and `watch: [foo/**, bar/**]` for every
// tagged-variant field (watch, ignore, env_file, depends_on), so this is
// the decode target for all of them via mapstructure's decode hook rather
// than a custom yaml.Unmarshaler per field.
type stringOrList []string

// PipeDTO is one entry of a task's `pipes` list: a regex pattern matched
// against that task's output, publishing the named variable to the named
// downstream task on match. `pipes` is a YAML sequence of these entries,
// each naming the pattern, the variable (`var`) and the target task (`to`)
// explicitly, because env injection needs a variable name alongside the
// pattern and target. A map of pattern → target does not decode.
type PipeDTO struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Var     string `yaml:"var" mapstructure:"var"`
	To      string `yaml:"to" mapstructure:"to"`
}

// TaskDTO is a single task entry in whiz.yaml.
type TaskDTO struct {
	Command    string            `yaml:"command" mapstructure:"command"`
	WorkingDir string            `yaml:"workdir" mapstructure:"workdir"`
	Watch      stringOrList      `yaml:"watch" mapstructure:"watch"`
	Ignore     stringOrList      `yaml:"ignore" mapstructure:"ignore"`
	Env        map[string]string `yaml:"env" mapstructure:"env"`
	EnvFile    stringOrList      `yaml:"env_file" mapstructure:"env_file"`
	DependsOn  stringOrList      `yaml:"depends_on" mapstructure:"depends_on"`
	Pipes      []PipeDTO         `yaml:"pipes" mapstructure:"pipes"`
}

// Whizfile is the root document of whiz.yaml.
type Whizfile struct {
	Env     map[string]string   `yaml:"env" mapstructure:"env"`
	EnvFile stringOrList        `yaml:"env_file" mapstructure:"env_file"`
	Tasks   map[string]*TaskDTO `yaml:"tasks" mapstructure:"tasks"`
}
