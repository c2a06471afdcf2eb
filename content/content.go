// Package content is the collaborator that supplies page content to the
// pipeline. The pipeline reads fields and metadata through GetContent and
// never writes back here; results are stored separately.
package content

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teranos/ldschema/errors"
)

// Content is one page as the pipeline sees it. Fields hold the values a
// generated schema should reflect (title, url, telephone, ...); Metadata
// carries everything else (post type, modified time, current schema).
type Content struct {
	ID       string         `json:"id" yaml:"id"`
	Fields   map[string]any `json:"fields" yaml:"fields"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

// Text returns a field as a string, "" when absent or not a string
func (c *Content) Text(field string) string {
	s, _ := c.Fields[field].(string)
	return s
}

// Source looks up content by id
type Source interface {
	GetContent(ctx context.Context, id string) (*Content, error)
	List(ctx context.Context) ([]string, error)
}

// DirSource reads <dir>/<id>.json, .yaml or .yml files
type DirSource struct {
	dir string
}

var extensions = []string{".json", ".yaml", ".yml"}

// NewDirSource serves content from dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// ValidID rejects ids that could escape the content directory
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}

func (d *DirSource) GetContent(_ context.Context, id string) (*Content, error) {
	if !ValidID(id) {
		return nil, errors.NewInvalidRequestError("invalid content id %q", id)
	}

	for _, ext := range extensions {
		path := filepath.Join(d.dir, id+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read content %s", path)
		}

		var c Content
		if ext == ".json" {
			err = json.Unmarshal(data, &c)
		} else {
			err = yaml.Unmarshal(data, &c)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode content %s", path)
		}
		c.ID = id
		if c.Fields == nil {
			c.Fields = map[string]any{}
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		return &c, nil
	}

	return nil, errors.NewNotFoundError("content %s", id)
}

func (d *DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list content dir %s", d.dir)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, ext := range extensions {
			if strings.HasSuffix(name, ext) {
				id := strings.TrimSuffix(name, ext)
				if ValidID(id) && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MemorySource holds content in process
type MemorySource struct {
	mu    sync.RWMutex
	items map[string]*Content
}

// NewMemorySource creates a source holding items
func NewMemorySource(items ...*Content) *MemorySource {
	m := &MemorySource{items: make(map[string]*Content, len(items))}
	for _, c := range items {
		m.items[c.ID] = c
	}
	return m
}

// Put adds or replaces content
func (m *MemorySource) Put(c *Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = c
}

func (m *MemorySource) GetContent(_ context.Context, id string) (*Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("content %s", id)
	}
	return c, nil
}

func (m *MemorySource) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
