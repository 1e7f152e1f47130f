// Package aicommands publishes the graph's AI command descriptors into the
// rule files of the assistants a project uses.
package aicommands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"projectgraph/internal/cas"
	"projectgraph/internal/graph"
)

// Gemini is the platform key that gets alias-style lines instead of one
// section per command.
const Gemini = "gemini"

// SyncMarker opens every generated block.
const SyncMarker = "<!-- Synced by pgraph sync-ai-commands -->"

// Title turns a kebab-case command name into a heading: "graph-audit"
// becomes "Graph Audit".
func Title(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func planned(c graph.AICommand) string {
	if c.Planned() {
		return " (planned)"
	}
	return ""
}

func firstPhrase(c graph.AICommand) string {
	if len(c.TriggerPhrases) == 0 {
		return ""
	}
	return c.TriggerPhrases[0]
}

func quoted(phrases []string) string {
	q := make([]string, len(phrases))
	for i, p := range phrases {
		q[i] = `"` + p + `"`
	}
	return strings.Join(q, " or ")
}

// Lines renders commands for one platform.
func Lines(platformKey string, commands []graph.AICommand) []string {
	var lines []string
	for _, c := range commands {
		if platformKey == Gemini {
			lines = append(lines, fmt.Sprintf("- Command Aliases: When the user requests %s, execute `%s`%s.",
				quoted(c.TriggerPhrases), c.NpmCommand, planned(c)))
			continue
		}
		lines = append(lines,
			"## "+Title(c.Name),
			fmt.Sprintf(`- Trigger Phrase: "%s"`, firstPhrase(c)),
			fmt.Sprintf("- Action: Run `%s`%s", c.NpmCommand, planned(c)),
			"- Description: "+c.Description,
			"",
		)
	}
	return lines
}

// Block is the text appended to a platform's rule file.
func Block(platformKey string, commands []graph.AICommand, now time.Time) string {
	lines := []string{"", SyncMarker, "<!-- " + cas.ISO(now) + " -->", ""}
	lines = append(lines, Lines(platformKey, commands)...)
	return strings.Join(lines, "\n")
}

// Synced records one rule file that received a block.
type Synced struct {
	Platform string
	Path     string
}

// PlatformKeys returns the platform keys in sorted order.
func PlatformKeys(ai *graph.AICommands) []string {
	if ai == nil {
		return nil
	}
	keys := make([]string, 0, len(ai.Platforms))
	for k := range ai.Platforms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sync appends a generated block to every platform config file that exists
// under root. Missing files are skipped with a warning. The first write
// failure stops the run.
func Sync(root string, ai *graph.AICommands, now time.Time, logger *slog.Logger) ([]Synced, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Synced
	for _, key := range PlatformKeys(ai) {
		p := ai.Platforms[key]
		target := filepath.Join(root, filepath.FromSlash(p.ConfigPath))
		if _, err := os.Stat(target); err != nil {
			logger.Warn("skipping platform", "platform", p.Name, "config", p.ConfigPath, "reason", "not found")
			continue
		}
		f, err := os.OpenFile(target, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return out, fmt.Errorf("opening %s: %w", p.ConfigPath, err)
		}
		_, werr := f.WriteString(Block(key, ai.Commands, now))
		cerr := f.Close()
		if werr != nil {
			return out, fmt.Errorf("appending to %s: %w", p.ConfigPath, werr)
		}
		if cerr != nil {
			return out, fmt.Errorf("closing %s: %w", p.ConfigPath, cerr)
		}
		logger.Info("synced commands", "platform", p.Name, "config", p.ConfigPath)
		out = append(out, Synced{Platform: key, Path: p.ConfigPath})
	}
	return out, nil
}

// ReadmeSection is the README "AI Assistant Command Mapping" section: one
// fenced example per platform whose config file exists under root.
func ReadmeSection(root string, ai *graph.AICommands, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	var b strings.Builder
	b.WriteString("\n## AI Assistant Command Mapping\n\n")
	b.WriteString("Assistants can trigger graph commands from conversational phrases. " +
		"The mappings below are generated from the `aiCommands` section of the graph.\n\n")
	for _, key := range PlatformKeys(ai) {
		p := ai.Platforms[key]
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p.ConfigPath))); err != nil {
			logger.Warn("skipping command mapping", "platform", p.Name, "config", p.ConfigPath)
			continue
		}
		fmt.Fprintf(&b, "### For %s (`%s`)\n\n```markdown\n", p.Name, p.ConfigPath)
		for _, l := range Lines(key, ai.Commands) {
			b.WriteString(l + "\n")
		}
		b.WriteString("```\n\n")
	}
	return b.String()
}
