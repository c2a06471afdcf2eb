package commands

import (
	"context"
	"database/sql"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/ai/ratelimit"
	"github.com/teranos/ldschema/ai/tracker"
	"github.com/teranos/ldschema/am"
	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/fetch"
	"github.com/teranos/ldschema/jsonld/catalog"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/metrics"
	"github.com/teranos/ldschema/policy"
	"github.com/teranos/ldschema/render"
	"github.com/teranos/ldschema/storage"
	"github.com/teranos/ldschema/workflow"
)

// app is the fully wired pipeline behind every command that touches state
type app struct {
	cfg    *am.Config
	db     *sql.DB
	logger *zap.SugaredLogger

	cache       *cache.Cache
	cacheCloser io.Closer
	metrics     *metrics.Metrics
	tracker     *tracker.UsageTracker
	completer   *completion.Client
	validator   *validate.Validator
	repairer    *repair.Repairer

	content   content.Source
	schemas   *storage.SchemaStore
	history   *storage.HistoryStore
	events    *storage.EventLog
	review    *quality.ReviewQueue
	blocklist *policy.Blocklist
	watcher   io.Closer

	workflow  *workflow.Service
	renderer  *render.Renderer
	inspector *fetch.Inspector
}

type appOptions struct {
	// watchPolicy reloads the blocklist file on change; long-running commands only
	watchPolicy bool
}

// loadConfig honours --config, falling back to the discovered config cascade
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return am.LoadFromFile(path)
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// openApp wires config, database, cache, completion client, validator,
// repairer, storage, review queue, workflow, renderer and inspector
func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger.Logger}
	a.db, err = openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New()
	a.cache, a.cacheCloser, err = cache.Open(ctx, cfg, a.db, logger.ComponentLogger("cache"), cache.WithObserver(a.metrics))
	if err != nil {
		a.db.Close()
		return nil, errors.Wrap(err, "failed to open cache")
	}

	var limiter *ratelimit.Limiter
	if cfg.Completion.CallsPerMinute > 0 {
		limiter = ratelimit.NewLimiter(cfg.Completion.CallsPerMinute)
	}
	a.tracker = tracker.NewUsageTracker(a.db, verbosity)
	a.completer = completion.NewClient(completion.Config{
		BaseURL:     cfg.Completion.BaseURL,
		APIKey:      cfg.Completion.APIKey,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		Timeout:     cfg.CompletionTimeout(),
		MaxAttempts: cfg.Completion.MaxAttempts,
		Limiter:     limiter,
		Cache:       a.cache,
		Tracker:     a.tracker,
		Observer:    a.metrics,
		Logger:      logger.ComponentLogger("completion"),
	})

	a.validator = validate.New(catalog.Default(), validate.WithLogger(logger.ComponentLogger("validate")))
	a.repairer = repair.New(a.completer, a.validator,
		repair.WithMaxRetries(cfg.Repair.MaxRetries),
		repair.WithObserver(a.metrics),
		repair.WithLogger(logger.ComponentLogger("repair")))

	a.content = content.NewDirSource(cfg.Content.Dir)
	a.schemas = storage.NewSchemaStore(a.db)
	a.history = storage.NewHistoryStore(a.db, cfg.History.Limit)
	a.events = storage.NewEventLog(a.db)
	a.review = quality.NewReviewQueue(storage.NewReviewStore(a.db), logger.ComponentLogger("review"))

	a.workflow, err = workflow.New(workflow.Config{
		Content:         a.content,
		Validator:       a.validator,
		Repairer:        a.repairer,
		Completer:       a.completer,
		Schemas:         a.schemas,
		History:         a.history,
		Events:          a.events,
		Review:          a.review,
		ReviewThreshold: cfg.Review.Threshold,
		Concurrency:     cfg.Bulk.Concurrency,
		SiteName:        cfg.Site.Name,
		SiteURL:         cfg.Site.URL,
		Observer:        a.metrics,
		Logger:          logger.ComponentLogger("workflow"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.blocklist = policy.Default()
	if path := cfg.Policy.BlocklistPath; path != "" {
		if opts.watchPolicy {
			fw, err := policy.Watch(a.blocklist, path)
			if err != nil {
				a.Close()
				return nil, errors.Wrapf(err, "failed to watch blocklist %s", path)
			}
			a.watcher = watcherCloser{fw}
		} else if err := a.blocklist.Reload(path); err != nil {
			a.Close()
			return nil, errors.Wrapf(err, "failed to load blocklist %s", path)
		}
	}

	a.renderer = render.New(a.content, a.schemas, a.validator,
		render.WithBuilders(
			render.OrganizationBuilder{Name: cfg.Site.Name, URL: cfg.Site.URL},
			render.WebPageBuilder{},
			render.BreadcrumbBuilder{},
		),
		render.WithPolicy(a.blocklist),
		render.WithRecorder(a.metrics),
		render.WithLogger(logger.ComponentLogger("render")))

	a.inspector = fetch.NewInspector(
		fetch.NewClient(cfg.FetchTimeout(), fetch.ClientOptions{AllowPrivateIPs: cfg.Fetch.AllowPrivateIPs}),
		a.validator,
		fetch.WithCache(a.cache),
		fetch.WithRateLimit(cfg.Fetch.RequestsPerSecond),
		fetch.WithLogger(logger.ComponentLogger("fetch")))

	return a, nil
}

// Close releases the watcher, cache backend and database
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Warnw("Failed to stop blocklist watcher", logger.FieldError, err)
		}
	}
	if a.cacheCloser != nil {
		if err := a.cacheCloser.Close(); err != nil {
			a.logger.Warnw("Failed to close cache", logger.FieldError, err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// actorFrom reads --actor
func actorFrom(cmd *cobra.Command) storage.Actor {
	id, _ := cmd.Flags().GetString("actor")
	if id == "" {
		return storage.SystemActor
	}
	return storage.Actor{ID: id, Name: id}
}

type watcherCloser struct {
	fw *am.FileWatcher
}

func (w watcherCloser) Close() error { return w.fw.Stop() }
