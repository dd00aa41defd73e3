package service

import (
	"appideas.app/engine/core/config"
	"appideas.app/engine/internal/pipeline"
	"appideas.app/engine/internal/queue"
	"appideas.app/engine/internal/store"
	"github.com/redis/go-redis/v9"
)

// Observer receives run and cache measurements.
type Observer interface {
	RunObserver
	CacheObserver
}

type ServicesDeps struct {
	Stores   *store.Stores
	TxRunner TxRunner
	Redis    *redis.Client
	Producer queue.Producer
	Events   RunEvents
	Fetcher  SourceFetcher
	Pipeline PipelineRunner
	Observer Observer
	Config   config.Config
}

type Services struct {
	deps  ServicesDeps
	cache ResultCache
}

func NewServices(deps ServicesDeps) *Services {
	return &Services{
		deps:  deps,
		cache: NewResultCache(deps.Stores.Analyses(), deps.Config.Cache.LRUSize, deps.Config.Cache.TTL, deps.Observer),
	}
}

func (s *Services) Entitlements() EntitlementService {
	return NewEntitlementService(s.deps.Stores.Users(), s.deps.Config.Plans)
}

func (s *Services) Results() ResultStore {
	return NewResultStore(s.deps.TxRunner)
}

func (s *Services) Analyzer() *Analyzer {
	return NewAnalyzer(AnalyzerDeps{
		Fetcher:      s.deps.Fetcher,
		Pipeline:     s.deps.Pipeline,
		Rates:        pipeline.RatesPerMillion(s.deps.Config.LLM.InputRatePerMillion, s.deps.Config.LLM.OutputRatePerMillion),
		Cache:        s.cache,
		Entitlements: s.Entitlements(),
		Results:      s.Results(),
	})
}

func (s *Services) Analyses() AnalysisService {
	return NewAnalysisService(AnalysisServiceDeps{
		Runs:         s.deps.Stores.Runs(),
		Analyses:     s.deps.Stores.Analyses(),
		TokenUsage:   s.deps.Stores.TokenUsage(),
		Entitlements: s.Entitlements(),
		Lock:         NewRedisRunLock(s.deps.Redis, s.deps.Config.Redis.LockTTL),
		Producer:     s.deps.Producer,
		Events:       s.deps.Events,
		Analyzer:     s.Analyzer(),
		Observer:     s.deps.Observer,
		Country:      s.deps.Config.AppStore.Country,
	})
}

func (s *Services) Maintenance() MaintenanceService {
	return NewMaintenanceService(s.deps.Stores.Analyses(), s.Entitlements(), s.deps.Config.Cache.TTL)
}
