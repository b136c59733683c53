package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
)

// SubAgentSpec declares a named sub-agent, loaded from a YAML file.
type SubAgentSpec struct {
	ID           string `yaml:"id"`
	Description  string `yaml:"description"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTurns     int    `yaml:"max_turns"`
}

// DefaultLibraryTTL is how long a Library serves its cached listing before
// re-reading the spec directories.
const DefaultLibraryTTL = 5 * time.Minute

// Library discovers sub-agent specs from a global directory and a project
// directory. Project specs win on ID collision. The listing is cached and
// refreshed after the TTL expires.
type Library struct {
	globalDir  string
	projectDir string
	ttl        time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	specs    []SubAgentSpec
	loadedAt time.Time
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithLibraryTTL overrides the cache TTL.
func WithLibraryTTL(ttl time.Duration) LibraryOption {
	return func(l *Library) { l.ttl = ttl }
}

// WithLibraryLogger overrides the logger.
func WithLibraryLogger(logger *slog.Logger) LibraryOption {
	return func(l *Library) { l.logger = logger }
}

// NewLibrary creates a Library over the two spec directories. Either may be
// empty or missing.
func NewLibrary(globalDir, projectDir string, opts ...LibraryOption) *Library {
	l := &Library{
		globalDir:  globalDir,
		projectDir: projectDir,
		ttl:        DefaultLibraryTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Specs returns the current listing, re-reading the directories when the
// cached one has expired.
func (l *Library) Specs() []SubAgentSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadedAt.IsZero() || time.Since(l.loadedAt) >= l.ttl {
		l.specs = l.load()
		l.loadedAt = time.Now()
	}
	return append([]SubAgentSpec(nil), l.specs...)
}

func (l *Library) load() []SubAgentSpec {
	byID := make(map[string]int)
	var specs []SubAgentSpec
	for _, dir := range []string{l.globalDir, l.projectDir} {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				l.logger.Warn("sub-agent spec unreadable", "path", path, "error", err)
				continue
			}
			var spec SubAgentSpec
			if err := yaml.Unmarshal(raw, &spec); err != nil {
				l.logger.Warn("sub-agent spec invalid, skipping", "path", path, "error", err)
				continue
			}
			if spec.ID == "" {
				spec.ID = strings.TrimSuffix(entry.Name(), ext)
			}
			if i, ok := byID[spec.ID]; ok {
				specs[i] = spec
				continue
			}
			byID[spec.ID] = len(specs)
			specs = append(specs, spec)
		}
	}
	return specs
}

func toolNameFor(id string) string {
	return "agent_" + strings.ReplaceAll(id, "-", "_")
}

// AgentToolInput is the argument payload for agent_* tools.
type AgentToolInput struct {
	Prompt  string `json:"prompt" jsonschema:"description=Task for the agent to carry out"`
	Cwd     string `json:"cwd,omitempty" jsonschema:"description=Working directory named in the task context"`
	Model   string `json:"model,omitempty" jsonschema:"description=Model override for this invocation"`
	Verbose bool   `json:"verbose,omitempty" jsonschema:"description=Append turn and token counts to the result"`
}

// RegisterAgentTools surfaces every spec in lib as an agent_* tool on reg.
// Nested runs inherit base but their registry excludes agent-capability
// tools, so a sub-agent can never spawn another.
func RegisterAgentTools(reg *Registry, lib *Library, base Config) {
	for _, spec := range lib.Specs() {
		spec := spec
		reg.Register(Tool{
			Name:        toolNameFor(spec.ID),
			Description: spec.Description,
			InputSchema: SchemaFor(&AgentToolInput{}),
			Capability:  CapAgent,
			Run: func(ctx context.Context, input json.RawMessage) (string, error) {
				return runAgentTool(ctx, spec, base, input)
			},
		})
	}
}

func runAgentTool(ctx context.Context, spec SubAgentSpec, base Config, input json.RawMessage) (string, error) {
	var args AgentToolInput
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid agent arguments: %w", err)
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	cfg := base
	if base.Registry != nil {
		cfg.Registry = base.Registry.WithoutCapability(CapAgent)
	}
	if spec.SystemPrompt != "" {
		cfg.SystemPrompt = spec.SystemPrompt
	}
	if spec.Model != "" {
		cfg.Model = spec.Model
	}
	if spec.MaxTurns > 0 {
		cfg.MaxTurns = spec.MaxTurns
	}
	if args.Model != "" {
		cfg.Model = args.Model
	}

	prompt := args.Prompt
	if args.Cwd != "" {
		prompt = fmt.Sprintf("Working directory: %s\n\n%s", args.Cwd, prompt)
	}

	loop := NewLoop(cfg)
	defer loop.Close()
	res, err := loop.Run(ctx, nil, prompt)
	if err != nil {
		return "", fmt.Errorf("agent %s failed: %w", spec.ID, err)
	}
	if res.Outcome == OutcomeCancelled {
		return "", fmt.Errorf("agent %s cancelled: %v", spec.ID, res.Err)
	}

	output := finalAssistantText(res.History)
	if output == "" {
		output = "(no output)"
	}
	if args.Verbose {
		output = fmt.Sprintf("%s\n\n[%d turns, %d input tokens, %d output tokens]",
			output, res.Turns, res.Usage.InputTokens, res.Usage.OutputTokens)
	}
	return output, nil
}

func finalAssistantText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == message.RoleAssistant {
			if text := history[i].Text(); text != "" {
				return text
			}
		}
	}
	return ""
}
