package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/validate"
)

// Inspection is the validation result for one live page
type Inspection struct {
	URL       string        `json:"url"`
	Blocks    int           `json:"blocks"`
	Types     []string      `json:"types"`
	Report    jsonld.Report `json:"report"`
	Nodes     []any         `json:"nodes"`
	FetchedAt time.Time     `json:"fetched_at"`
	Cached    bool          `json:"cached"`
}

// Inspector fetches pages, extracts their JSON-LD and validates it as one graph
type Inspector struct {
	client    *Client
	validator *validate.Validator
	cache     *cache.Cache
	limiter   *rate.Limiter
	logger    *zap.SugaredLogger
	timeNow   func() time.Time
}

// InspectorOption configures an Inspector
type InspectorOption func(*Inspector)

// WithCache caches inspections by URL for the cache TTL
func WithCache(c *cache.Cache) InspectorOption {
	return func(i *Inspector) { i.cache = c }
}

// WithRateLimit spaces out fetches; perSecond <= 0 disables the limit
func WithRateLimit(perSecond float64) InspectorOption {
	return func(i *Inspector) {
		if perSecond > 0 {
			i.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) InspectorOption {
	return func(i *Inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInspector creates an inspector over client and v
func NewInspector(client *Client, v *validate.Validator, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		client:    client,
		validator: v,
		logger:    zap.NewNop().Sugar(),
		timeNow:   time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect fetches rawURL and validates its structured data. Blocks that are
// not JSON become report errors; a page without blocks gets a warning.
// Repeated singleton types across blocks are errors, as on render.
func (i *Inspector) Inspect(ctx context.Context, rawURL string) (*Inspection, error) {
	u, err := i.client.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	key := cache.Hash("inspect", u.String())

	if i.cache != nil {
		var cached Inspection
		hit, err := i.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			i.logger.Warnw("Inspection cache lookup failed", "url", u.String(), "error", err)
		} else if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for fetch slot")
		}
	}

	page, err := i.client.Get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	result := i.inspectPage(u.String(), page.Body)

	if i.cache != nil {
		if err := i.cache.SetJSON(ctx, key, result); err != nil {
			i.logger.Warnw("Failed to cache inspection", "url", u.String(), "error", err)
		}
	}

	i.logger.Infow("Inspected page",
		"url", u.String(),
		"blocks", result.Blocks,
		"valid", result.Report.Valid,
		"errors", len(result.Report.Errors))
	return result, nil
}

// InspectHTML validates the structured data in an already fetched page
func (i *Inspector) InspectHTML(pageURL string, body []byte) *Inspection {
	return i.inspectPage(pageURL, body)
}

func (i *Inspector) inspectPage(pageURL string, body []byte) *Inspection {
	blocks := ExtractBlocks(body)
	report := jsonld.NewReport()
	nodes := []any{}

	for n, block := range blocks {
		doc, err := jsonld.Parse([]byte(block))
		if err != nil {
			report.AddError(fmt.Sprintf("block[%d]", n), "Invalid JSON: %v", errors.UnwrapAll(err))
			continue
		}
		items, ok := jsonld.GraphItems(doc)
		if !ok {
			report.AddError(fmt.Sprintf("block[%d]", n), "Block must be a JSON object or array")
			continue
		}
		nodes = append(nodes, items...)
	}

	if len(blocks) == 0 {
		report.AddWarning("", "No JSON-LD blocks found on page")
	} else if len(nodes) > 0 {
		i.validator.ValidateGraph(nodes, report)
		validate.CheckSingletons(jsonld.FlattenGraph(nodes), report, validate.SingletonTypes...)
	}

	return &Inspection{
		URL:       pageURL,
		Blocks:    len(blocks),
		Types:     nodeTypes(nodes),
		Report:    *report,
		Nodes:     nodes,
		FetchedAt: i.timeNow().UTC(),
	}
}

func nodeTypes(nodes []any) []string {
	seen := map[string]bool{}
	types := []string{}
	for _, item := range nodes {
		n, ok := jsonld.AsNode(item)
		if !ok {
			continue
		}
		for _, t := range n.Types() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	return types
}
