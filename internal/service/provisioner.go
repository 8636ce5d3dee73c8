package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"scansync/internal/model"
	"scansync/pkg/buzzheavier"
	"scansync/pkg/log"

	"go.uber.org/zap"
)

// ProvisionerService guarantees the remote directory chain for a record
// exists and returns the container id of its deepest level. Ids are cached
// for the life of a run; the cache never holds a level that failed to
// provision.
type ProvisionerService interface {
	EnsureDirectory(ctx context.Context, record *model.HierarchicalRecord) (string, error)
	// ResetCache starts a fresh run: drops every cached id and seeds the
	// aggregator root.
	ResetCache(aggregator, rootID string)
}

func NewProvisionerService(
	service *Service,
	client *buzzheavier.Client,
	holder *ConfigHolder,
	logger *log.Logger,
) ProvisionerService {
	return &provisionerService{
		Service: service,
		client:  client,
		holder:  holder,
		logger:  logger,
		cache:   map[string]string{},
	}
}

type provisionerService struct {
	*Service
	client *buzzheavier.Client
	holder *ConfigHolder
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]string
}

// cacheKey addresses one level by the concatenation of the level names
// leading to and including it.
func cacheKey(levels []string) string {
	return strings.Join(levels, "/")
}

func (s *provisionerService) ResetCache(aggregator, rootID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string]string{}
	if aggregator != "" && rootID != "" {
		s.cache[aggregator] = rootID
	}
}

func (s *provisionerService) cached(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cache[key]
	return id, ok
}

func (s *provisionerService) store(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = id
}

// EnsureDirectory walks the record's levels top-down, listing before
// creating and recovering from create conflicts by re-listing. The network
// calls run outside the cache lock; racing workers converge on one id via
// the conflict path.
func (s *provisionerService) EnsureDirectory(ctx context.Context, record *model.HierarchicalRecord) (string, error) {
	conf := s.holder.Get()
	levels := record.Levels()

	rootKey := cacheKey(levels[:1])
	parentID, ok := s.cached(rootKey)
	if !ok {
		return "", fmt.Errorf("aggregator root %q not provisioned", levels[0])
	}

	for i := 1; i < len(levels); i++ {
		key := cacheKey(levels[:i+1])
		if id, ok := s.cached(key); ok {
			parentID = id
			continue
		}

		id, err := s.resolveLevel(ctx, parentID, levels[i], conf.CreateDelay)
		if err != nil {
			// The level stays uncached; the file this call serves fails.
			return "", fmt.Errorf("provision %s: %w", key, err)
		}
		s.store(key, id)
		parentID = id
	}
	return parentID, nil
}

func (s *provisionerService) resolveLevel(ctx context.Context, parentID, name string, createDelay time.Duration) (string, error) {
	id, err := s.findChild(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id, err = s.client.CreateDirectory(ctx, parentID, name)
	if err == nil {
		// Pause between creates to respect provider rate limits.
		time.Sleep(createDelay)
		return id, nil
	}
	if buzzheavier.IsConflict(err) {
		// A concurrent creator won; recover its id from the parent.
		id, listErr := s.findChild(ctx, parentID, name)
		if listErr != nil {
			return "", listErr
		}
		if id != "" {
			return id, nil
		}
		return "", fmt.Errorf("conflict on %q but directory not listed", name)
	}
	return "", err
}

func (s *provisionerService) findChild(ctx context.Context, parentID, name string) (string, error) {
	children, err := s.client.ListChildren(ctx, parentID)
	if err != nil {
		s.logger.Warn("list children failed", zap.String("parent", parentID), zap.Error(err))
		return "", err
	}
	for _, child := range children {
		if child.IsDirectory && child.Name == name {
			return child.ID, nil
		}
	}
	return "", nil
}
