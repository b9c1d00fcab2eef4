package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
)

type profileReader interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

type mediaLibrary interface {
	ListAll(ctx context.Context) ([]models.MediaItem, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.MediaItem, error)
	MarkPlayed(ctx context.Context, ids []string, playedAt time.Time) error
}

type lineupWriter interface {
	Create(ctx context.Context, lineup *models.Lineup) error
}

type analysisCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ProgrammerService turns profiles and the media library into lineups. Sync
// generation parks results in a TTL-bound proposal cache; committing a
// proposal persists it and optionally stamps air history.
type ProgrammerService struct {
	profiles  profileReader
	media     mediaLibrary
	lineups   lineupWriter
	optimizer *engine.Optimizer
	analyzer  *engine.Analyzer
	cache     analysisCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	store     *proposalCache
	cfg       ProgrammerConfig
}

// ProgrammerConfig governs generation behaviour.
type ProgrammerConfig struct {
	ProposalTTL       time.Duration
	DefaultIterations int
	MaxSyncIterations int
	Parallelism       int
	AnalysisCacheTTL  time.Duration
}

// NewProgrammerService wires generation dependencies.
func NewProgrammerService(
	profiles profileReader,
	media mediaLibrary,
	lineups lineupWriter,
	tuning engine.Tuning,
	cache analysisCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ProgrammerConfig,
) *ProgrammerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.DefaultIterations <= 0 {
		cfg.DefaultIterations = 10
	}
	if cfg.MaxSyncIterations <= 0 {
		cfg.MaxSyncIterations = 25
	}
	if cfg.AnalysisCacheTTL <= 0 {
		cfg.AnalysisCacheTTL = 10 * time.Minute
	}
	return &ProgrammerService{
		profiles:  profiles,
		media:     media,
		lineups:   lineups,
		optimizer: engine.NewOptimizer(tuning, logger),
		analyzer:  engine.NewAnalyzer(tuning),
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		store:     newProposalCache(cfg.ProposalTTL),
		cfg:       cfg,
	}
}

// Generate runs the optimizer synchronously and parks the winning lineup as
// a proposal. Requests above the synchronous iteration cap are rejected;
// profile defaults beyond the cap are clamped.
func (s *ProgrammerService) Generate(ctx context.Context, req dto.GenerateLineupRequest) (*dto.GenerateLineupResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lineup generation payload")
	}
	if req.Iterations > s.cfg.MaxSyncIterations {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("iterations exceeds synchronous cap (%d); submit an async job instead", s.cfg.MaxSyncIterations))
	}

	profile, err := s.loadProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, err
	}
	pool, err := s.buildPool(ctx, req.ItemIDs)
	if err != nil {
		return nil, err
	}

	iterations := s.resolveIterations(req.Iterations, profile)
	if iterations > s.cfg.MaxSyncIterations {
		iterations = s.cfg.MaxSyncIterations
	}

	opts := engine.Options{
		Iterations:        iterations,
		Seed:              resolveSeed(req.Seed),
		Parallelism:       s.resolveParallelism(req.Parallelism),
		IncludeBreakdowns: req.IncludeBreakdown,
	}

	start := time.Now()
	lineup, err := s.optimizer.Run(ctx, *profile, pool, opts)
	if err != nil {
		return nil, configToValidation(err, "lineup generation failed")
	}
	s.metrics.ObserveGeneration(lineup.Status, iterations, time.Since(start), lineup.Score)

	proposal := lineupProposal{
		ProposalID:  uuid.NewString(),
		ProfileName: profile.Name,
		Lineup:      lineup,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	return &dto.GenerateLineupResponse{
		ProposalID: proposal.ProposalID,
		ExpiresAt:  proposal.RequestedAt.Add(s.cfg.ProposalTTL),
		Iterations: iterations,
		Lineup:     lineup,
	}, nil
}

// SaveProposal commits a cached proposal as a persisted lineup.
func (s *ProgrammerService) SaveProposal(ctx context.Context, req dto.SaveLineupRequest) (*models.Lineup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save lineup payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrProposalExpired, "proposal not found or expired")
	}
	if proposal.Lineup.ItemCount == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "proposal placed no items and cannot be saved")
	}

	lineup := proposal.Lineup
	lineup.Name = req.Name
	if lineup.Name == "" {
		lineup.Name = defaultLineupName(proposal.ProfileName, time.Now().UTC())
	}
	if err := s.lineups.Create(ctx, &lineup); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist lineup")
	}

	if req.MarkPlayed {
		ids := placedItemIDs(lineup)
		if err := s.media.MarkPlayed(ctx, ids, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to stamp air history", zap.String("lineup_id", lineup.ID), zap.Error(err))
		}
	}

	s.store.Delete(req.ProposalID)
	return &lineup, nil
}

// RunGeneration executes a queued generation job and persists the result.
// Progress flows through the sink so the caller can surface it on job rows.
func (s *ProgrammerService) RunGeneration(ctx context.Context, job *models.LineupJob, progress engine.ProgressSink) (*models.Lineup, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	profile, err := s.loadProfile(ctx, job.Params.ProfileID)
	if err != nil {
		return nil, err
	}
	pool, err := s.buildPool(ctx, job.Params.ItemIDs)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Iterations:        s.resolveIterations(job.Params.Iterations, profile),
		Seed:              resolveSeed(job.Params.Seed),
		Parallelism:       s.resolveParallelism(job.Params.Parallelism),
		IncludeBreakdowns: job.Params.IncludeBreakdown,
		Progress:          progress,
	}

	start := time.Now()
	lineup, err := s.optimizer.Run(ctx, *profile, pool, opts)
	if err != nil {
		return nil, configToValidation(err, "lineup generation failed")
	}
	s.metrics.ObserveGeneration(lineup.Status, opts.Iterations, time.Since(start), lineup.Score)

	lineup.Name = defaultLineupName(profile.Name, time.Now().UTC())
	if err := s.lineups.Create(ctx, &lineup); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist lineup")
	}
	return &lineup, nil
}

// Analyze scores an existing set of placements under a profile without
// building anything. Results are cached briefly; profile mutations
// invalidate the prefix. The boolean reports whether the result came
// from cache.
func (s *ProgrammerService) Analyze(ctx context.Context, req dto.AnalyzeLineupRequest) (*models.AnalysisReport, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid analysis payload")
	}

	key := analysisCacheKey(req)
	if s.cache != nil {
		var cached models.AnalysisReport
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	}

	profile, err := s.loadProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, false, err
	}
	placements, err := s.resolvePlacements(ctx, req.Placements)
	if err != nil {
		return nil, false, err
	}

	report, err := s.analyzer.Analyze(*profile, placements, time.Now().UTC())
	if err != nil {
		return nil, false, configToValidation(err, "analysis failed")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, report, s.cfg.AnalysisCacheTTL)
	}
	return &report, false, nil
}

func (s *ProgrammerService) loadProfile(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

func (s *ProgrammerService) resolveIterations(requested int, profile *models.Profile) int {
	if requested > 0 {
		return requested
	}
	if profile.Iterations > 0 {
		return profile.Iterations
	}
	return s.cfg.DefaultIterations
}

func (s *ProgrammerService) resolveParallelism(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.cfg.Parallelism
}

// --- Pool assembly ---

func (s *ProgrammerService) buildPool(ctx context.Context, itemIDs []string) (*engine.Pool, error) {
	var items []models.MediaItem
	var err error
	if len(itemIDs) > 0 {
		unique := dedupe(itemIDs)
		items, err = s.media.ListByIDs(ctx, unique)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidate items")
		}
		if missing := missingIDs(unique, items); len(missing) > 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown media items: %s", strings.Join(missing, ", ")))
		}
	} else {
		items, err = s.media.ListAll(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media library")
		}
	}
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "media library has no candidate items")
	}
	pool, err := engine.NewPool(items)
	if err != nil {
		return nil, configToValidation(err, "invalid candidate pool")
	}
	return pool, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(wanted []string, items []models.MediaItem) []string {
	found := make(map[string]bool, len(items))
	for _, item := range items {
		found[item.ID] = true
	}
	var missing []string
	for _, id := range wanted {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *ProgrammerService) resolvePlacements(ctx context.Context, reqs []dto.PlacementRequest) ([]engine.Placement, error) {
	ids := make([]string, 0, len(reqs))
	for _, p := range reqs {
		ids = append(ids, p.ItemID)
	}
	items, err := s.media.ListByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load placed items")
	}
	byID := make(map[string]models.MediaItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	placements := make([]engine.Placement, 0, len(reqs))
	for _, p := range reqs {
		item, ok := byID[p.ItemID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown media item %s", p.ItemID))
		}
		placements = append(placements, engine.Placement{BlockName: p.BlockName, Item: item})
	}
	return placements, nil
}

// --- Helpers ---

func resolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return time.Now().UnixNano()
}

func defaultLineupName(profileName string, t time.Time) string {
	name := strings.TrimSpace(profileName)
	if name == "" {
		name = "lineup"
	}
	return fmt.Sprintf("%s %s", name, t.Format("2006-01-02 15:04"))
}

func placedItemIDs(lineup models.Lineup) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, block := range lineup.Blocks {
		for _, placed := range block.Items {
			if seen[placed.Item.ID] {
				continue
			}
			seen[placed.Item.ID] = true
			ids = append(ids, placed.Item.ID)
		}
	}
	return ids
}

func configToValidation(err error, message string) error {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, cfgErr.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func analysisCacheKey(req dto.AnalyzeLineupRequest) string {
	payload, err := json.Marshal(req.Placements)
	if err != nil {
		return fmt.Sprintf("analysis:%s:invalid", req.ProfileID)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("analysis:%s:%x", req.ProfileID, sum[:8])
}

// --- Proposal cache ---

type lineupProposal struct {
	ProposalID  string
	ProfileName string
	Lineup      models.Lineup
	RequestedAt time.Time
}

type proposalCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]lineupProposal
}

func newProposalCache(ttl time.Duration) *proposalCache {
	return &proposalCache{
		ttl:   ttl,
		items: make(map[string]lineupProposal),
	}
}

func (s *proposalCache) Save(proposal lineupProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalCache) Get(id string) (lineupProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return lineupProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return lineupProposal{}, false
	}
	return proposal, true
}

func (s *proposalCache) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
