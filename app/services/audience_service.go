// Package services provides supporting services for the scheduler and API layer
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matchops/fixturecast/config"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/repository"
	"github.com/matchops/fixturecast/utils"
	"github.com/redis/go-redis/v9"
)

// AudienceService resolves which participants are notable and how fixture
// participants map onto platform audience attributes
type AudienceService interface {
	// NotableAttributes returns canonical participant name -> audience attribute
	// for every active notable participant
	NotableAttributes(ctx context.Context) (map[string]string, error)
	// Aliases returns the full canonicalization table, longest pattern first
	Aliases(ctx context.Context) ([]*models.ParticipantAlias, error)
	// InvalidateCache drops the cached notable set after admin edits
	InvalidateCache(ctx context.Context) error
}

type audienceService struct {
	notableRepo repository.NotableParticipantRepository
	aliasRepo   repository.ParticipantAliasRepository
	redisClient *redis.Client
	cacheCfg    *config.CacheConfig
}

// NewAudienceService creates a new audience service. redisClient may be nil
// when caching is disabled; every lookup then goes to the database.
func NewAudienceService(
	notableRepo repository.NotableParticipantRepository,
	aliasRepo repository.ParticipantAliasRepository,
	redisClient *redis.Client,
	cacheCfg *config.CacheConfig,
) AudienceService {
	return &audienceService{
		notableRepo: notableRepo,
		aliasRepo:   aliasRepo,
		redisClient: redisClient,
		cacheCfg:    cacheCfg,
	}
}

func (s *audienceService) cacheKey() string {
	return fmt.Sprintf("%s:%s:%s", s.cacheCfg.RedisPrefix, utils.NotableSetCacheKey, utils.NotableSetCacheVersion)
}

func (s *audienceService) NotableAttributes(ctx context.Context) (map[string]string, error) {
	// Cache miss, corrupt entry or redis outage all fall through to the database
	if s.redisClient != nil {
		if raw, err := s.redisClient.Get(ctx, s.cacheKey()).Result(); err == nil {
			var cached map[string]string
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
		}
	}

	participants, err := s.notableRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notable participants: %w", err)
	}

	attrs := make(map[string]string, len(participants))
	for _, p := range participants {
		attrs[p.CanonicalName] = p.AudienceAttribute
	}

	if s.redisClient != nil {
		if payload, jsonErr := json.Marshal(attrs); jsonErr == nil {
			ttl := s.cacheCfg.DefaultTTL
			if ttl <= 0 {
				ttl = 10 * time.Minute
			}
			_ = s.redisClient.Set(ctx, s.cacheKey(), payload, ttl).Err()
		}
	}

	return attrs, nil
}

func (s *audienceService) Aliases(ctx context.Context) ([]*models.ParticipantAlias, error) {
	aliases, err := s.aliasRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant aliases: %w", err)
	}
	return aliases, nil
}

func (s *audienceService) InvalidateCache(ctx context.Context) error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Del(ctx, s.cacheKey()).Err()
}
