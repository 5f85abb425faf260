// Package sreconfig loads the YAML configuration layers (commands,
// routing, rules, policy, runtime) and applies the SRE_ENV
// environment-overlay merge, following the same deep-merge convention the
// original Python config loader used.
package sreconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"srediag/internal/sre/classify"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/registry"
)

// Config is the fully merged runtime configuration.
type Config struct {
	Commands     []registry.CommandMeta       `yaml:"commands"`
	Routing      orchestrator.RoutingTable    `yaml:"routing"`
	Baseline     BaselineConfig               `yaml:"baseline"`
	Rules        []classify.Rule              `yaml:"rules"`
	Policy       PolicyConfig                 `yaml:"policy"`
	Environments map[string]map[string]any    `yaml:"environments"`
}

// BaselineConfig lists the commands run unconditionally at the start of a
// session, per platform, plus an "any" bucket run regardless of platform.
type BaselineConfig struct {
	Cmds map[string][]string `yaml:"cmds"`
}

// Resolve returns the baseline command list for platform: the "any"
// bucket plus the platform-specific bucket, falling back to
// {"uname","uptime","df"} if neither is configured.
func (b BaselineConfig) Resolve(platform string) []string {
	var out []string
	out = append(out, b.Cmds["any"]...)
	out = append(out, b.Cmds[platform]...)
	if len(out) == 0 {
		return []string{"uname", "uptime", "df"}
	}
	return out
}

// PolicyConfig is the allowed-risk and deny-keyword policy applied by the
// guard.
type PolicyConfig struct {
	AllowedRisks []string `yaml:"allowed_risks"`
	DenyKeywords []string `yaml:"deny_keywords"`
}

// LoadFiles loads and deep-merges config layers in order: later files
// override earlier ones at the leaf level.
func LoadFiles(paths []string) (*Config, error) {
	merged := map[string]any{}
	for _, path := range paths {
		layer, err := loadYAMLFile(path)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, layer)
	}

	env := os.Getenv("SRE_ENV")
	if env != "" {
		if envs, ok := merged["environments"].(map[string]any); ok {
			if overlay, ok := envs[env].(map[string]any); ok {
				merged = deepMerge(merged, overlay)
			}
		}
	}

	return decodeConfig(merged)
}

func loadYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sreconfig: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("sreconfig: parse %s: %w", path, err)
	}
	return raw, nil
}

// deepMerge merges b into a, recursing into nested maps and letting b's
// scalar and slice values override a's.
func deepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			valueMap, valueIsMap := v.(map[string]any)
			if existingIsMap && valueIsMap {
				out[k] = deepMerge(existingMap, valueMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func decodeConfig(merged map[string]any) (*Config, error) {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("sreconfig: re-marshal merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sreconfig: decode merged config: %w", err)
	}
	return &cfg, nil
}

// Registry builds a command Registry from the loaded config.
func (c *Config) BuildRegistry() (*registry.Registry, error) {
	return registry.New(c.Commands)
}

// RuleEngine builds a classify Engine from the loaded config, falling back
// to classify.DefaultRules when no rules layer was supplied.
func (c *Config) RuleEngine() *classify.Engine {
	return classify.NewEngine(c.Rules)
}
