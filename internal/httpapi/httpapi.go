// Package httpapi binds the job control-plane operations (C6/C7) and the
// cache-backed read operations (C3/C4) to HTTP routes (C9). Huma-registered
// routes report errors via huma's own error helpers (huma.ErrorXXX); the one
// raw (non-huma) handler, the SSE stream, and the panic recoverer use a
// custom JSON error envelope matching this service's documented error
// schema, since overriding huma's own error rendering globally is out of
// reach without pinning an exact huma internal signature this repo does not
// vendor source for.
package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/btorch/internal/cache"
	"github.com/jmylchreest/btorch/internal/config"
	"github.com/jmylchreest/btorch/internal/correlation"
	"github.com/jmylchreest/btorch/internal/datasets"
	"github.com/jmylchreest/btorch/internal/httpmw"
	"github.com/jmylchreest/btorch/internal/jobkinds"
	"github.com/jmylchreest/btorch/internal/jobruntime"
	"github.com/jmylchreest/btorch/internal/version"
)

// Deps bundles every collaborator the HTTP surface needs. It is built once
// in cmd/btorchd.
type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   *jobkinds.Registry
	Pool       *jobkinds.Pool
	Runtime    *jobruntime.Deps
	Datasets   *datasets.Router
	MarketDB   *sql.DB
	OHLCVCache *cache.Cache[[]datasets.Bar]
	TopixCache *cache.Cache[[]datasets.Bar]
	// AdminKey, when non-empty, gates DELETE /api/datasets/{name} behind the
	// X-Admin-Token header. Derived once at startup via crypto.DeriveAdminKey.
	AdminKey []byte
}

// api holds the handler methods registered against Deps.
type api struct {
	deps *Deps
}

// NewRouter assembles the chi router, middleware chain, and huma API
// surface described by C9.
func NewRouter(deps *Deps) http.Handler {
	a := &api{deps: deps}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(correlation.Middleware)
	router.Use(correlation.RequestLogger(deps.Logger))
	router.Use(recoverer(deps.Logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-Id", "X-Admin-Token"},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(httprate.LimitByIP(rateLimitOrDefault(deps.Config.HTTPRateLimitPerMinute), time.Minute))

	humaConfig := huma.DefaultConfig("btorch", version.Get().Short())
	humaConfig.Info.Description = "Market-data ingestion and backtest job orchestration API."
	humaConfig.Servers = []*huma.Server{{URL: deps.Config.BaseURL, Description: "API Server"}}
	humaAPI := humachi.New(router, humaConfig)

	httpmw.Get(humaAPI, "/api/health", a.HealthCheck, httpmw.WithTags("system"), httpmw.WithSummary("Liveness check"))

	httpmw.Post(humaAPI, "/api/backtest", a.createStrategyJob(jobkinds.KindBacktest),
		httpmw.WithTags("jobs"), httpmw.WithSummary("Create a backtest job"), httpmw.WithDefaultStatus(http.StatusAccepted))
	httpmw.Post(humaAPI, "/api/optimize", a.createStrategyJob(jobkinds.KindOptimization),
		httpmw.WithTags("jobs"), httpmw.WithSummary("Create an optimization job"), httpmw.WithDefaultStatus(http.StatusAccepted))
	httpmw.Post(humaAPI, "/api/screening/jobs", a.createStrategyJob(jobkinds.KindScreening),
		httpmw.WithTags("jobs"), httpmw.WithSummary("Create a screening job"), httpmw.WithDefaultStatus(http.StatusAccepted))
	httpmw.Get(humaAPI, "/api/presets", a.ListPresets, httpmw.WithTags("jobs"), httpmw.WithSummary("List named market-code presets"))
	httpmw.Post(humaAPI, "/api/lab/jobs", a.createStrategyJob(jobkinds.KindLab),
		httpmw.WithTags("jobs"), httpmw.WithSummary("Create a lab job"), httpmw.WithDefaultStatus(http.StatusAccepted))
	httpmw.Post(humaAPI, "/api/db/sync", a.CreateSyncJob,
		httpmw.WithTags("jobs"), httpmw.WithSummary("Create a sync job"), httpmw.WithDefaultStatus(http.StatusAccepted))
	httpmw.Post(humaAPI, "/api/datasets/{name}/build", a.CreateDatasetBuildJob,
		httpmw.WithTags("jobs", "datasets"), httpmw.WithSummary("Create a dataset-build job"), httpmw.WithDefaultStatus(http.StatusAccepted))

	httpmw.Get(humaAPI, "/api/jobs", a.ListJobs, httpmw.WithTags("jobs"), httpmw.WithSummary("List tracked jobs"))
	httpmw.Get(humaAPI, "/api/jobs/{id}", a.GetJob, httpmw.WithTags("jobs"), httpmw.WithSummary("Get a job's current snapshot"))
	httpmw.Post(humaAPI, "/api/jobs/{id}/cancel", a.CancelJob, httpmw.WithTags("jobs"), httpmw.WithSummary("Request job cancellation"))

	httpmw.Get(humaAPI, "/api/datasets", a.ListDatasets, httpmw.WithTags("datasets"), httpmw.WithSummary("List dataset names"))
	httpmw.Get(humaAPI, "/api/datasets/{name}/stats", a.DatasetStats, httpmw.WithTags("datasets"), httpmw.WithSummary("Dataset summary statistics"))
	httpmw.Get(humaAPI, "/api/datasets/{name}/stocks/{code}/ohlcv", a.OHLCV, httpmw.WithTags("datasets"), httpmw.WithSummary("Per-dataset OHLCV bars"))
	httpmw.Get(humaAPI, "/api/market/topix", a.Topix, httpmw.WithTags("market"), httpmw.WithSummary("Shared TOPIX OHLC bars"))

	// Raw SSE stream: huma's typed-output model cannot hold the connection
	// open and stream frames, so this bypasses huma entirely, same as the
	// teacher's job-results stream handler.
	router.Get("/api/jobs/{id}/events", a.streamJobEvents)

	// Admin-gated dataset control routes get their own huma instance so the
	// gate applies before huma's routing, not after.
	router.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return requireAdmin(deps.AdminKey, next) })
		adminConfig := huma.DefaultConfig("btorch", version.Get().Short())
		adminConfig.DocsPath = ""
		adminConfig.OpenAPIPath = ""
		adminConfig.SchemasPath = ""
		adminAPI := humachi.New(r, adminConfig)
		httpmw.Delete(adminAPI, "/api/datasets/{name}", a.DeleteDataset, httpmw.WithTags("datasets"), httpmw.WithHidden())
	})

	return router
}

func rateLimitOrDefault(n int) int {
	if n <= 0 {
		return 120
	}
	return n
}
