package services

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/domain/repositories"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
)

const (
	changeTolerance        = 0.01
	defaultReconcileBatch  = 100
	defaultProviderLockTTL = 30 * time.Minute
	providerLockPrefix     = "lock:insurance:"
)

// ReconciliationConfig tunes the write path. Zero values use defaults.
type ReconciliationConfig struct {
	BatchSize int
	LockTTL   time.Duration
	Now       func() time.Time
}

// ReconciliationService classifies scraped plans as new, updated or unchanged
// against the active rows of their provider and writes the difference.
type ReconciliationService struct {
	repo      repositories.InsurancePlanRepository
	locks     providers.LockProvider
	indexer   providers.PlanSearchIndexer
	batchSize int
	lockTTL   time.Duration
	now       func() time.Time
}

// NewReconciliationService creates the service. locks and indexer may be nil.
func NewReconciliationService(
	repo repositories.InsurancePlanRepository,
	locks providers.LockProvider,
	indexer providers.PlanSearchIndexer,
	cfg ReconciliationConfig,
) *ReconciliationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReconcileBatch
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultProviderLockTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ReconciliationService{
		repo:      repo,
		locks:     locks,
		indexer:   indexer,
		batchSize: cfg.BatchSize,
		lockTTL:   cfg.LockTTL,
		now:       cfg.Now,
	}
}

// StatsKey is the registry key a result is counted under in SyncStats, or the
// display name when the result carries no key.
func StatsKey(result entities.ProviderScrapeResult) string {
	if result.ProviderKey != "" {
		return result.ProviderKey
	}
	return result.ProviderName
}

// Reconcile writes every provider result and returns aggregate counts.
// Per-batch and per-provider failures are counted, never returned.
func (s *ReconciliationService) Reconcile(ctx context.Context, results []entities.ProviderScrapeResult) (*entities.SyncStats, error) {
	logger := observability.LoggerFromContext(ctx)
	stats := entities.NewSyncStats()

	var all []entities.InsurancePlan
	deactivatable := make(map[string]bool)
	statsKeys := make(map[string]string, len(results))
	for _, result := range results {
		statsKeys[result.ProviderName] = StatsKey(result)
		if result.Failed {
			reason := result.FailureReason
			if reason == "" {
				reason = entities.ProviderFailureUnknown
			}
			stats.ProviderFailures[StatsKey(result)] = reason
		}
		if !result.Failed && len(result.Plans) > 0 {
			deactivatable[result.ProviderName] = true
		}
		all = append(all, result.Plans...)
	}
	stats.TotalScraped = len(all)

	unique, skipped := DedupPlans(all)
	stats.SkippedDuplicates = skipped

	order, grouped := groupByProvider(unique)
	for _, providerName := range order {
		key, ok := statsKeys[providerName]
		if !ok {
			key = providerName
		}
		s.reconcileProvider(ctx, providerName, key, grouped[providerName], deactivatable[providerName], stats)
	}

	logger.Info().
		Int("total_scraped", stats.TotalScraped).
		Int("new", stats.New).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("skipped_duplicates", stats.SkippedDuplicates).
		Int("deactivated", stats.Deactivated).
		Int("errors", stats.Errors).
		Msg("insurance plan reconciliation finished")
	return stats, nil
}

func (s *ReconciliationService) reconcileProvider(ctx context.Context, providerName, statsKey string, plans []*entities.InsurancePlan, deactivate bool, stats *entities.SyncStats) {
	logger := observability.LoggerFromContext(ctx).With().Str("provider", providerName).Logger()

	if s.locks != nil {
		lock, err := s.locks.Acquire(ctx, ProviderLockKey(providerName), s.lockTTL)
		if err != nil {
			if errors.Is(err, providers.ErrLockNotAcquired) {
				logger.Warn().Msg("another run holds the provider lock, skipping")
				stats.ProviderFailures[statsKey] = entities.ProviderFailureLocked
			} else {
				logger.Error().Err(err).Msg("failed to acquire provider lock")
			}
			stats.Errors += len(plans)
			return
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("failed to release provider lock")
			}
		}()
	}

	existing, err := s.repo.GetActiveByProvider(ctx, providerName)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read active plans")
		stats.Errors += len(plans)
		return
	}

	now := s.now()
	var toInsert, toUpdate []*entities.InsurancePlan
	seen := make(map[string]struct{}, len(plans))
	for _, plan := range plans {
		seen[plan.ID] = struct{}{}
		current, ok := existing[plan.ID]
		switch {
		case !ok:
			plan.CreatedAt = now
			plan.UpdatedAt = now
			plan.IsActive = true
			toInsert = append(toInsert, plan)
		case HasChanged(current, plan):
			merged := MergePlan(current, plan)
			merged.CreatedAt = current.CreatedAt
			merged.UpdatedAt = now
			merged.IsActive = true
			toUpdate = append(toUpdate, merged)
		default:
			stats.Unchanged++
		}
	}
	stats.ProviderStats[statsKey] = len(plans)

	written := make([]*entities.InsurancePlan, 0, len(toInsert)+len(toUpdate))
	for _, chunk := range chunkPlans(toInsert, s.batchSize) {
		if err := s.repo.InsertBatch(ctx, chunk); err != nil {
			logger.Error().Err(err).Int("batch", len(chunk)).Msg("insert batch failed")
			stats.Errors += len(chunk)
			continue
		}
		stats.New += len(chunk)
		written = append(written, chunk...)
	}
	for _, chunk := range chunkPlans(toUpdate, s.batchSize) {
		if err := s.repo.UpsertBatch(ctx, chunk); err != nil {
			logger.Error().Err(err).Int("batch", len(chunk)).Msg("update batch failed")
			stats.Errors += len(chunk)
			continue
		}
		stats.Updated += len(chunk)
		written = append(written, chunk...)
	}

	var stale []string
	if deactivate {
		stale = StaleIDs(existing, seen)
		if len(stale) > 0 {
			n, err := s.repo.SetInactive(ctx, stale)
			if err != nil {
				logger.Error().Err(err).Int("stale", len(stale)).Msg("failed to deactivate stale plans")
				stale = nil
			} else {
				stats.Deactivated += n
				logger.Info().Int("deactivated", n).Msg("deactivated plans no longer listed")
			}
		}
	}

	if s.indexer != nil {
		if len(written) > 0 {
			if err := s.indexer.IndexPlans(ctx, written); err != nil {
				logger.Warn().Err(err).Msg("failed to index plans")
			}
		}
		if len(stale) > 0 {
			if err := s.indexer.RemovePlans(ctx, stale); err != nil {
				logger.Warn().Err(err).Msg("failed to remove plans from index")
			}
		}
	}
}

// ProviderLockKey is the lock guarding one provider's read-then-write cycle.
func ProviderLockKey(providerName string) string {
	return providerLockPrefix + strings.ToLower(strings.Join(strings.Fields(providerName), "-"))
}

// DedupPlans keeps the first plan for each id and counts the rest.
func DedupPlans(plans []entities.InsurancePlan) ([]*entities.InsurancePlan, int) {
	seen := make(map[string]struct{}, len(plans))
	unique := make([]*entities.InsurancePlan, 0, len(plans))
	skipped := 0
	for i := range plans {
		plan := plans[i]
		if _, dup := seen[plan.ID]; dup {
			skipped++
			continue
		}
		seen[plan.ID] = struct{}{}
		unique = append(unique, &plan)
	}
	return unique, skipped
}

// StaleIDs returns the active ids that the current run did not produce, sorted.
func StaleIDs(active map[string]*entities.InsurancePlan, current map[string]struct{}) []string {
	var stale []string
	for id := range active {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func groupByProvider(plans []*entities.InsurancePlan) ([]string, map[string][]*entities.InsurancePlan) {
	var order []string
	grouped := make(map[string][]*entities.InsurancePlan)
	for _, plan := range plans {
		if _, ok := grouped[plan.ProviderName]; !ok {
			order = append(order, plan.ProviderName)
		}
		grouped[plan.ProviderName] = append(grouped[plan.ProviderName], plan)
	}
	return order, grouped
}

func chunkPlans(plans []*entities.InsurancePlan, size int) [][]*entities.InsurancePlan {
	var chunks [][]*entities.InsurancePlan
	for start := 0; start < len(plans); start += size {
		end := min(start+size, len(plans))
		chunks = append(chunks, plans[start:end])
	}
	return chunks
}

// HasChanged reports whether incoming differs from existing in any comparable field.
// A nil incoming value never counts as a change and numbers within 0.01 are equal.
func HasChanged(existing, incoming *entities.InsurancePlan) bool {
	if existing == nil {
		return true
	}
	if incoming == nil {
		return false
	}
	return (incoming.PlanName != "" && incoming.PlanName != existing.PlanName) ||
		changedString(existing.PlanType, incoming.PlanType) ||
		changedString(existing.CoverageType, incoming.CoverageType) ||
		changedFloat(existing.AnnualLimit, incoming.AnnualLimit) ||
		changedFloat(existing.LifetimeLimit, incoming.LifetimeLimit) ||
		changedFloat(existing.RoomBoardLimit, incoming.RoomBoardLimit) ||
		changedBool(existing.OutpatientCovered, incoming.OutpatientCovered) ||
		changedBool(existing.MaternityCovered, incoming.MaternityCovered) ||
		changedBool(existing.DentalCovered, incoming.DentalCovered) ||
		changedBool(existing.OpticalCovered, incoming.OpticalCovered) ||
		changedBool(existing.MentalHealthCovered, incoming.MentalHealthCovered) ||
		changedList(existing.CoveredConditions, incoming.CoveredConditions) ||
		changedList(existing.ExcludedConditions, incoming.ExcludedConditions) ||
		changedList(existing.PanelHospitals, incoming.PanelHospitals) ||
		changedFloat(existing.MonthlyPremiumMin, incoming.MonthlyPremiumMin) ||
		changedFloat(existing.MonthlyPremiumMax, incoming.MonthlyPremiumMax) ||
		changedFloat(existing.Deductible, incoming.Deductible) ||
		changedFloat(existing.CoPaymentPercentage, incoming.CoPaymentPercentage) ||
		changedInt(existing.MinAge, incoming.MinAge) ||
		changedInt(existing.MaxAge, incoming.MaxAge) ||
		changedString(existing.ClaimProcess, incoming.ClaimProcess) ||
		changedString(existing.ContactPhone, incoming.ContactPhone) ||
		changedString(existing.Website, incoming.Website)
}

// MergePlan overlays the non-nil fields of incoming onto a copy of existing.
func MergePlan(existing, incoming *entities.InsurancePlan) *entities.InsurancePlan {
	merged := *existing
	if incoming.PlanName != "" {
		merged.PlanName = incoming.PlanName
	}
	merged.PlanType = overlay(existing.PlanType, incoming.PlanType)
	merged.CoverageType = overlay(existing.CoverageType, incoming.CoverageType)
	merged.AnnualLimit = overlay(existing.AnnualLimit, incoming.AnnualLimit)
	merged.LifetimeLimit = overlay(existing.LifetimeLimit, incoming.LifetimeLimit)
	merged.RoomBoardLimit = overlay(existing.RoomBoardLimit, incoming.RoomBoardLimit)
	merged.OutpatientCovered = overlay(existing.OutpatientCovered, incoming.OutpatientCovered)
	merged.MaternityCovered = overlay(existing.MaternityCovered, incoming.MaternityCovered)
	merged.DentalCovered = overlay(existing.DentalCovered, incoming.DentalCovered)
	merged.OpticalCovered = overlay(existing.OpticalCovered, incoming.OpticalCovered)
	merged.MentalHealthCovered = overlay(existing.MentalHealthCovered, incoming.MentalHealthCovered)
	merged.CoveredConditions = overlayList(existing.CoveredConditions, incoming.CoveredConditions)
	merged.ExcludedConditions = overlayList(existing.ExcludedConditions, incoming.ExcludedConditions)
	merged.PanelHospitals = overlayList(existing.PanelHospitals, incoming.PanelHospitals)
	merged.MonthlyPremiumMin = overlay(existing.MonthlyPremiumMin, incoming.MonthlyPremiumMin)
	merged.MonthlyPremiumMax = overlay(existing.MonthlyPremiumMax, incoming.MonthlyPremiumMax)
	merged.Deductible = overlay(existing.Deductible, incoming.Deductible)
	merged.CoPaymentPercentage = overlay(existing.CoPaymentPercentage, incoming.CoPaymentPercentage)
	merged.MinAge = overlay(existing.MinAge, incoming.MinAge)
	merged.MaxAge = overlay(existing.MaxAge, incoming.MaxAge)
	merged.ClaimProcess = overlay(existing.ClaimProcess, incoming.ClaimProcess)
	merged.ContactPhone = overlay(existing.ContactPhone, incoming.ContactPhone)
	merged.Website = overlay(existing.Website, incoming.Website)
	return &merged
}

func overlay[T any](existing, incoming *T) *T {
	if incoming != nil {
		return incoming
	}
	return existing
}

func overlayList(existing, incoming []string) []string {
	if incoming != nil {
		return incoming
	}
	return existing
}

func changedString(existing, incoming *string) bool {
	if incoming == nil {
		return false
	}
	return existing == nil || *existing != *incoming
}

func changedBool(existing, incoming *bool) bool {
	if incoming == nil {
		return false
	}
	return existing == nil || *existing != *incoming
}

func changedFloat(existing, incoming *float64) bool {
	if incoming == nil {
		return false
	}
	return existing == nil || math.Abs(*incoming-*existing) > changeTolerance
}

func changedInt(existing, incoming *int) bool {
	if incoming == nil {
		return false
	}
	return existing == nil || *existing != *incoming
}

func changedList(existing, incoming []string) bool {
	if incoming == nil {
		return false
	}
	return !slices.Equal(existing, incoming)
}
