package capability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header each agent markdown file carries, e.g.:
//
//	---
//	name: backend-reviewer
//	domains: [coding, review]
//	keywords: [go, api, concurrency]
//	---
//	<free-form description text used for embedding>
type frontmatter struct {
	Name     string   `yaml:"name"`
	Domains  []Domain `yaml:"domains"`
	Keywords []string `yaml:"keywords"`
}

// EmbedFunc produces an embedding for arbitrary text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// LoadAgentDescriptions scans dir for "*.md" agent description files,
// parses their YAML frontmatter, embeds the remaining body text, and
// returns one Entry per file keyed by its base filename (spec.md §4.4
// "Agent description loader").
func LoadAgentDescriptions(ctx context.Context, dir string, embed EmbedFunc) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fm, body := splitFrontmatter(raw)
		var parsed frontmatter
		if fm != "" {
			if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
				return err
			}
		}
		agentKey := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if parsed.Name == "" {
			parsed.Name = agentKey
		}
		if len(parsed.Domains) == 0 {
			parsed.Domains = []Domain{DomainGeneral}
		}
		vec, err := embed(ctx, body)
		if err != nil {
			return err
		}
		entries[agentKey] = Entry{
			AgentKey:    agentKey,
			Name:        parsed.Name,
			Description: body,
			Domains:     parsed.Domains,
			Keywords:    parsed.Keywords,
			Embedding:   vec,
			IndexedAt:   time.Now().UnixMilli(),
		}
		return nil
	})
	return entries, err
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from the
// remaining markdown body. Files without a frontmatter block return an
// empty header and the full contents as body.
func splitFrontmatter(raw []byte) (header, body string) {
	const delim = "---"
	text := string(raw)
	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), delim) {
		return "", strings.TrimSpace(text)
	}
	text = strings.TrimLeft(text, "\r\n")
	rest := text[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return "", strings.TrimSpace(text)
	}
	header = rest[:end]
	body = rest[end+len("\n"+delim):]
	return strings.TrimSpace(header), strings.TrimSpace(body)
}
