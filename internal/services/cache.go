package services

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"whatsapp-helpdesk/internal/models"
)

// TenantCache keeps each tenant's active assignment rules and workflows in memory.
// Writers invalidate the tenant's entry; a zero TTL disables caching.
//
// Every key carries a generation bumped on invalidation. A fill is only stored when the
// generation still matches the one its lookup miss returned.
type TenantCache struct {
	store *cache.Cache
	gens  map[string]uint64
	mu    sync.Mutex
}

func NewTenantCache(ttl time.Duration) *TenantCache {
	if ttl <= 0 {
		return &TenantCache{}
	}
	return &TenantCache{store: cache.New(ttl, 2*ttl), gens: make(map[string]uint64)}
}

func rulesKey(tenantID string) string     { return "rules:" + tenantID }
func workflowsKey(tenantID string) string { return "workflows:" + tenantID }

func (c *TenantCache) enabled() bool { return c != nil && c.store != nil }

func (c *TenantCache) get(key string) (interface{}, uint64, bool) {
	if !c.enabled() {
		return nil, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.store.Get(key); ok {
		return v, c.gens[key], true
	}
	return nil, c.gens[key], false
}

func (c *TenantCache) set(key string, gen uint64, v interface{}) bool {
	if !c.enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.store.SetDefault(key, v)
	return true
}

func (c *TenantCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.store.Delete(key)
}

// rules returns the cached rules, or on a miss the generation to pass to setRules.
func (c *TenantCache) rules(tenantID string) ([]models.AssignmentRule, uint64, bool) {
	v, gen, ok := c.get(rulesKey(tenantID))
	if !ok {
		return nil, gen, false
	}
	return v.([]models.AssignmentRule), gen, true
}

func (c *TenantCache) setRules(tenantID string, gen uint64, rules []models.AssignmentRule) {
	if !c.set(rulesKey(tenantID), gen, rules) && c.enabled() {
		log.Debug().Str("tenantID", tenantID).Msg("Discarded assignment rules loaded before an invalidation")
	}
}

func (c *TenantCache) workflows(tenantID string) ([]models.ChatbotWorkflow, uint64, bool) {
	v, gen, ok := c.get(workflowsKey(tenantID))
	if !ok {
		return nil, gen, false
	}
	return v.([]models.ChatbotWorkflow), gen, true
}

func (c *TenantCache) setWorkflows(tenantID string, gen uint64, workflows []models.ChatbotWorkflow) {
	if !c.set(workflowsKey(tenantID), gen, workflows) && c.enabled() {
		log.Debug().Str("tenantID", tenantID).Msg("Discarded workflows loaded before an invalidation")
	}
}

func (c *TenantCache) InvalidateRules(tenantID string) {
	if !c.enabled() {
		return
	}
	c.invalidate(rulesKey(tenantID))
	log.Debug().Str("tenantID", tenantID).Msg("Assignment rule cache invalidated")
}

func (c *TenantCache) InvalidateWorkflows(tenantID string) {
	if !c.enabled() {
		return
	}
	c.invalidate(workflowsKey(tenantID))
	log.Debug().Str("tenantID", tenantID).Msg("Workflow cache invalidated")
}
