package render

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"projectgraph/internal/cas"
	"projectgraph/internal/graph"
)

// DefaultDomain groups plans that declare no domain.
const DefaultDomain = "general"

// PlanEntry is a plan with its id, as listed in the digest.
type PlanEntry struct {
	ID string
	graph.Plan
}

// ByDomain groups plans by domain. Domains and plan ids are sorted.
func ByDomain(plans *graph.Plans) ([]string, map[string][]PlanEntry) {
	groups := make(map[string][]PlanEntry)
	if plans == nil {
		return nil, groups
	}
	ids := make([]string, 0, len(plans.Plans))
	for id := range plans.Plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := plans.Plans[id]
		d := p.Domain
		if d == "" {
			d = DefaultDomain
		}
		groups[d] = append(groups[d], PlanEntry{ID: id, Plan: p})
	}
	domains := make([]string, 0, len(groups))
	for d := range groups {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, groups
}

// WritePlans writes the plans digest README.md into dir and one
// <domain>/<id>.md file per plan. It returns the paths written. Nothing is
// written when plans is empty.
func WritePlans(dir string, plans *graph.Plans, now time.Time) ([]string, error) {
	domains, groups := ByDomain(plans)
	if len(domains) == 0 {
		return nil, nil
	}

	digest := []string{"# Plans Digest", "", "Generated: " + cas.ISO(now), ""}
	for _, d := range domains {
		digest = append(digest, "## "+d)
		for _, p := range groups[d] {
			digest = append(digest, fmt.Sprintf("- %s: %s [%s]", p.ID, p.Title, p.Status))
		}
		digest = append(digest, "")
	}
	readme := filepath.Join(dir, "README.md")
	if err := writeLines(readme, digest); err != nil {
		return nil, err
	}
	written := []string{readme}

	for _, d := range domains {
		for _, p := range groups[d] {
			path := filepath.Join(dir, d, p.ID+".md")
			if err := writeLines(path, planLines(p)); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func planLines(p PlanEntry) []string {
	lines := []string{"# " + p.Title, "", "- id: " + p.ID, "- status: " + p.Status}
	if len(p.Owners) > 0 {
		lines = append(lines, "- owners: "+strings.Join(p.Owners, ", "))
	}
	if p.Rationale != "" {
		lines = append(lines, "- rationale: "+p.Rationale)
	}
	if len(p.RelatedEntities) > 0 {
		lines = append(lines, "- relatedEntities: "+strings.Join(p.RelatedEntities, ", "))
	}
	if len(p.Links) > 0 {
		lines = append(lines, "- links:")
		for _, l := range p.Links {
			lines = append(lines, "  - "+l)
		}
	}
	if len(p.Milestones) > 0 {
		lines = append(lines, "", "## Milestones")
		for _, m := range p.Milestones {
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", m.Status, m.ID, m.Title))
		}
	}
	return lines
}

func writeLines(path string, lines []string) error {
	return WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(lines, "\n"))
		return err
	})
}
