package services

import (
	"context"
	"fmt"
	"time"

	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
	"github.com/redis/go-redis/v9"
)

// LocalizationService resolves canonical participant names to localized display
// text. A missing translation is not an error: the caller decides whether to
// skip the fixture or fall back.
type LocalizationService interface {
	Resolve(ctx context.Context, canonicalName string) (string, bool, error)
	Persist(ctx context.Context, sourceName, localizedText, provenance string) error
}

type localizationService struct {
	translationRepo repository.TranslationRepository
	redisClient     *redis.Client
	cacheCfg        *config.CacheConfig
}

func NewLocalizationService(
	translationRepo repository.TranslationRepository,
	redisClient *redis.Client,
	cacheCfg *config.CacheConfig,
) LocalizationService {
	return &localizationService{
		translationRepo: translationRepo,
		redisClient:     redisClient,
		cacheCfg:        cacheCfg,
	}
}

func (s *localizationService) cacheKey(name string) string {
	return fmt.Sprintf("%s:%s:%s", s.cacheCfg.RedisPrefix, utils.TranslationCacheKey, name)
}

// Resolve returns the localized text for a canonical name. The second return
// value is false when no translation exists yet.
func (s *localizationService) Resolve(ctx context.Context, canonicalName string) (string, bool, error) {
	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, s.cacheKey(canonicalName)).Result()
		if err == nil && cached != "" {
			return cached, true, nil
		}
	}

	row, err := s.translationRepo.BySourceName(ctx, canonicalName)
	if err != nil {
		return "", false, fmt.Errorf("failed to load translation for %q: %w", canonicalName, err)
	}
	if row == nil {
		return "", false, nil
	}

	if s.redisClient != nil {
		ttl := s.cacheCfg.DefaultTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		_ = s.redisClient.Set(ctx, s.cacheKey(canonicalName), row.LocalizedText, ttl).Err()
	}

	return row.LocalizedText, true, nil
}

// Persist stores a translation and invalidates any cached copy
func (s *localizationService) Persist(ctx context.Context, sourceName, localizedText, provenance string) error {
	row, err := s.translationRepo.BySourceName(ctx, sourceName)
	if err != nil {
		return fmt.Errorf("failed to load existing translation for %q: %w", sourceName, err)
	}
	if row == nil {
		row = &models.Translation{SourceName: sourceName}
	}
	row.LocalizedText = localizedText
	row.Provenance = provenance

	if err := s.translationRepo.Save(ctx, row); err != nil {
		return fmt.Errorf("failed to save translation for %q: %w", sourceName, err)
	}

	if s.redisClient != nil {
		_ = s.redisClient.Del(ctx, s.cacheKey(sourceName)).Err()
	}
	return nil
}
