package llm

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptFormat tells the parser what kind of answer a prompt asks for.
type PromptFormat string

const (
	FormatNarrative PromptFormat = "narrative"
	FormatJSON      PromptFormat = "json"
)

// PromptTemplate is one versioned instruction text.
type PromptTemplate struct {
	Version     string       `yaml:"version"`
	Format      PromptFormat `yaml:"format"`
	Description string       `yaml:"description"`
	Template    string       `yaml:"template"`

	tmpl *template.Template
}

type catalogFile struct {
	Default string           `yaml:"default"`
	Prompts []PromptTemplate `yaml:"prompts"`
}

// Catalog holds the prompt versions known to the process.
type Catalog struct {
	defaultVersion string
	byVersion      map[string]*PromptTemplate
	order          []string
	schema         string
}

// PromptRequest is the per-submission input of the builder.
type PromptRequest struct {
	Text     string
	Category string // optional; canonicalised by Build
}

// Prompt is the single string sent to the model plus what it asked for.
type Prompt struct {
	Version string
	Format  PromptFormat
	Text    string
}

// DefaultCatalog parses the embedded prompts.yaml.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultPromptsYAML)
}

// LoadCatalog parses a YAML catalog and compiles every template.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode prompt catalog: %w", err)
	}
	if len(f.Prompts) == 0 {
		return nil, fmt.Errorf("prompt catalog is empty")
	}

	schemaJSON, err := json.MarshalIndent(BuildAnalysisJSONSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	c := &Catalog{
		defaultVersion: f.Default,
		byVersion:      make(map[string]*PromptTemplate, len(f.Prompts)),
		schema:         string(schemaJSON),
	}
	for i := range f.Prompts {
		p := f.Prompts[i]
		if p.Version == "" {
			return nil, fmt.Errorf("prompt %d has no version", i)
		}
		if _, dup := c.byVersion[p.Version]; dup {
			return nil, fmt.Errorf("duplicate prompt version %q", p.Version)
		}
		if p.Format != FormatNarrative && p.Format != FormatJSON {
			return nil, fmt.Errorf("prompt %q: unknown format %q", p.Version, p.Format)
		}
		t, err := template.New(p.Version).Option("missingkey=error").Parse(p.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", p.Version, err)
		}
		p.tmpl = t
		c.byVersion[p.Version] = &p
		c.order = append(c.order, p.Version)
	}
	if c.defaultVersion == "" {
		c.defaultVersion = c.order[0]
	}
	if _, ok := c.byVersion[c.defaultVersion]; !ok {
		return nil, fmt.Errorf("default prompt version %q is not in the catalog", c.defaultVersion)
	}
	return c, nil
}

// DefaultVersion is used when a request names no version.
func (c *Catalog) DefaultVersion() string { return c.defaultVersion }

// WithDefault returns a copy of the catalog whose default is version. Unknown
// versions leave the default unchanged.
func (c *Catalog) WithDefault(version string) *Catalog {
	if !c.Has(version) {
		return c
	}
	cp := *c
	cp.defaultVersion = version
	return &cp
}

// Versions lists the catalog in file order.
func (c *Catalog) Versions() []PromptTemplate {
	out := make([]PromptTemplate, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, *c.byVersion[v])
	}
	return out
}

// Has reports whether version exists.
func (c *Catalog) Has(version string) bool {
	_, ok := c.byVersion[version]
	return ok
}

// Build renders one prompt. An empty version selects the default. Unknown
// versions and unknown categories are invalid input.
func (c *Catalog) Build(version string, req PromptRequest) (Prompt, error) {
	if version == "" {
		version = c.defaultVersion
	}
	p, ok := c.byVersion[version]
	if !ok {
		return Prompt{}, common.NewInvalidInputError(fmt.Sprintf("unknown prompt version %q (known: %s)", version, strings.Join(c.order, ", ")))
	}

	var category string
	if strings.TrimSpace(req.Category) != "" {
		cat, ok := constants.Canonicalize(req.Category)
		if !ok {
			return Prompt{}, common.NewInvalidInputError(fmt.Sprintf("unknown category %q (allowed: %s)", req.Category, strings.Join(constants.AsStringSlice(), ", ")))
		}
		category = string(cat)
	}

	data := map[string]string{
		"Category": category,
		"Document": FenceDocument(req.Text),
		"Schema":   c.schema,
	}
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %q: %w", version, err)
	}
	return Prompt{Version: p.Version, Format: p.Format, Text: b.String()}, nil
}

var backtickRun = regexp.MustCompile("`{3,}")

// FenceDocument wraps text in triple backticks. Runs of three or more backticks
// inside the text are replaced by the same number of single quotes so the
// document cannot close the fence. This delimits the document; it does not
// make prompt injection impossible.
func FenceDocument(text string) string {
	safe := backtickRun.ReplaceAllStringFunc(text, func(run string) string {
		return strings.Repeat("'", len(run))
	})
	return "```\n" + safe + "\n```"
}
