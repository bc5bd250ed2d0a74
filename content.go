package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed content/*.yaml
var builtinContentFS embed.FS

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Fragment is one piece of narrative text. In YAML it is either a bare
// string or a mapping with text, hooks and tags.
type Fragment struct {
	Text  string   `yaml:"text" json:"text"`
	Hooks []string `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Tags  []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

func (f *Fragment) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		f.Text = node.Value
		f.Hooks, f.Tags = nil, nil
		return nil
	case yaml.MappingNode:
		type plain Fragment
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*f = Fragment(p)
		return nil
	default:
		return fmt.Errorf("line %d: fragment must be a string or a mapping", node.Line)
	}
}

type Ad struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Headline string   `yaml:"headline" json:"headline"`
	Body     string   `yaml:"body" json:"body"`
	Tagline  string   `yaml:"tagline" json:"tagline"`
	Tags     []string `yaml:"tags" json:"tags"`
}

type Classified struct {
	ID      string   `yaml:"id" json:"id"`
	Heading string   `yaml:"heading" json:"heading"`
	Body    string   `yaml:"body" json:"body"`
	Tags    []string `yaml:"tags" json:"tags"`
}

type DispatchTemplate struct {
	Category Category `yaml:"category"`
	Helpful  bool     `yaml:"helpful"`
	Title    string   `yaml:"title"`
	Text     string   `yaml:"text"`
	Effect   string   `yaml:"effect"`
}

type CrisisTemplate struct {
	Title             string `yaml:"title"`
	Description       string `yaml:"description"`
	Instructions      string `yaml:"instructions"`
	TimeBudgetSeconds int    `yaml:"seconds"`
	Reward            string `yaml:"reward"`
	Penalty           string `yaml:"penalty"`
}

// ContentPools holds every tagged collection the report and scheduler draw
// from. Keyed sections use outcome keys, bands, categories or voices.
type ContentPools struct {
	Mastheads     []Fragment              `yaml:"mastheads"`
	Kickers       map[string][]Fragment   `yaml:"kickers"`
	Headlines     map[string][]Fragment   `yaml:"headlines"`
	Subheads      map[string][]Fragment   `yaml:"subheads"`
	Openings      map[string][]Fragment   `yaml:"openings"`
	Focus         map[Category][]Fragment `yaml:"focus"`
	Setbacks      map[Category][]Fragment `yaml:"setbacks"`
	Pressure      map[string][]Fragment   `yaml:"pressure"`
	Closings      map[string][]Fragment   `yaml:"closings"`
	Asides        map[string][]Fragment   `yaml:"asides"`
	Blotter       map[string][]Fragment   `yaml:"blotter"`
	Ads           []Ad                    `yaml:"ads"`
	Classifieds   []Classified            `yaml:"classifieds"`
	Dispatches    []DispatchTemplate      `yaml:"dispatches"`
	Commendations map[Category][]string   `yaml:"commendations"`
	Crises        []CrisisTemplate        `yaml:"crises"`
}

var builtinPools = sync.OnceValue(func() *ContentPools {
	sub, err := fs.Sub(builtinContentFS, "content")
	if err != nil {
		panic(fmt.Sprintf("builtin content: %v", err))
	}
	p, err := loadContentPools(context.Background(), sub)
	if err != nil {
		panic(fmt.Sprintf("builtin content: %v", err))
	}
	return p
})

func mergeKeyed[K comparable, V any](dst map[K][]V, src map[K][]V) map[K][]V {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = map[K][]V{}
	}
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
	return dst
}

// fillKeyed copies fallback entries for every key that is missing or empty.
func fillKeyed[K comparable, V any](dst map[K][]V, fallback map[K][]V) map[K][]V {
	if dst == nil {
		dst = map[K][]V{}
	}
	for k, v := range fallback {
		if len(dst[k]) == 0 {
			dst[k] = v
		}
	}
	return dst
}

// merge appends src into p. Packs are merged in file-name order.
func (p *ContentPools) merge(src *ContentPools) {
	p.Mastheads = append(p.Mastheads, src.Mastheads...)
	p.Kickers = mergeKeyed(p.Kickers, src.Kickers)
	p.Headlines = mergeKeyed(p.Headlines, src.Headlines)
	p.Subheads = mergeKeyed(p.Subheads, src.Subheads)
	p.Openings = mergeKeyed(p.Openings, src.Openings)
	p.Focus = mergeKeyed(p.Focus, src.Focus)
	p.Setbacks = mergeKeyed(p.Setbacks, src.Setbacks)
	p.Pressure = mergeKeyed(p.Pressure, src.Pressure)
	p.Closings = mergeKeyed(p.Closings, src.Closings)
	p.Asides = mergeKeyed(p.Asides, src.Asides)
	p.Blotter = mergeKeyed(p.Blotter, src.Blotter)
	p.Ads = append(p.Ads, src.Ads...)
	p.Classifieds = append(p.Classifieds, src.Classifieds...)
	p.Dispatches = append(p.Dispatches, src.Dispatches...)
	p.Commendations = mergeKeyed(p.Commendations, src.Commendations)
	p.Crises = append(p.Crises, src.Crises...)
}

// withFallback fills every empty section and key from fallback so a partial
// pack still yields a complete article.
func (p *ContentPools) withFallback(fallback *ContentPools) *ContentPools {
	out := *p
	if len(out.Mastheads) == 0 {
		out.Mastheads = fallback.Mastheads
	}
	out.Kickers = fillKeyed(cloneKeyed(out.Kickers), fallback.Kickers)
	out.Headlines = fillKeyed(cloneKeyed(out.Headlines), fallback.Headlines)
	out.Subheads = fillKeyed(cloneKeyed(out.Subheads), fallback.Subheads)
	out.Openings = fillKeyed(cloneKeyed(out.Openings), fallback.Openings)
	out.Focus = fillKeyed(cloneKeyed(out.Focus), fallback.Focus)
	out.Setbacks = fillKeyed(cloneKeyed(out.Setbacks), fallback.Setbacks)
	out.Pressure = fillKeyed(cloneKeyed(out.Pressure), fallback.Pressure)
	out.Closings = fillKeyed(cloneKeyed(out.Closings), fallback.Closings)
	out.Asides = fillKeyed(cloneKeyed(out.Asides), fallback.Asides)
	out.Blotter = fillKeyed(cloneKeyed(out.Blotter), fallback.Blotter)
	out.Commendations = fillKeyed(cloneKeyed(out.Commendations), fallback.Commendations)
	if len(out.Ads) == 0 {
		out.Ads = fallback.Ads
	}
	if len(out.Classifieds) == 0 {
		out.Classifieds = fallback.Classifieds
	}
	if len(out.Dispatches) == 0 {
		out.Dispatches = fallback.Dispatches
	}
	if len(out.Crises) == 0 {
		out.Crises = fallback.Crises
	}
	return &out
}

func cloneKeyed[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fillTemplate replaces {key} placeholders from ctx. Unknown keys render
// empty and the leftover whitespace is collapsed.
func fillTemplate(text string, ctx map[string]string) string {
	out := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		return ctx[m[1:len(m)-1]]
	})
	return strings.Join(strings.Fields(out), " ")
}

// knownPlaceholders lists every key summarizeSession puts in the context,
// plus the per-line district blotter entries receive.
var knownPlaceholders = map[string]bool{
	"caseFile": true, "players": true, "district": true, "district1": true, "district2": true, "district3": true,
	"focus": true, "secondary": true, "best": true, "worst": true, "totalActions": true,
	"successShare": true, "commendations": true, "clues": true, "thugs": true,
	"performance": true, "intensity": true, "reason": true,
}

// lintPlaceholders reports every placeholder in the pools that no summary
// context will ever fill, as "section: {key}" strings.
func lintPlaceholders(p *ContentPools) []string {
	seen := map[string]bool{}
	check := func(section, text string) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			if !knownPlaceholders[m[1]] {
				seen[section+": {"+m[1]+"}"] = true
			}
		}
	}
	checkList := func(section string, list []Fragment) {
		for _, f := range list {
			check(section, f.Text)
		}
	}
	checkList("mastheads", p.Mastheads)
	for name, section := range map[string]map[string][]Fragment{
		"kickers": p.Kickers, "headlines": p.Headlines, "subheads": p.Subheads,
		"openings": p.Openings, "pressure": p.Pressure, "closings": p.Closings,
		"asides": p.Asides, "blotter": p.Blotter,
	} {
		for _, list := range section {
			checkList(name, list)
		}
	}
	for _, list := range p.Focus {
		checkList("focus", list)
	}
	for _, list := range p.Setbacks {
		checkList("setbacks", list)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
