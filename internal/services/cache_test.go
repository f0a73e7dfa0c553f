package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whatsapp-helpdesk/internal/models"
)

func TestTenantCacheDropsFillAfterInvalidation(t *testing.T) {
	c := NewTenantCache(time.Minute)
	stale := []models.AssignmentRule{{Name: "deleted"}}

	_, gen, ok := c.rules(testTenant)
	assert.False(t, ok)

	// a writer commits and invalidates while the load is in flight
	c.InvalidateRules(testTenant)
	c.setRules(testTenant, gen, stale)

	_, next, ok := c.rules(testTenant)
	assert.False(t, ok)
	assert.Greater(t, next, gen)

	fresh := []models.AssignmentRule{{Name: "current"}}
	c.setRules(testTenant, next, fresh)
	got, _, ok := c.rules(testTenant)
	assert.True(t, ok)
	assert.Equal(t, fresh, got)
}

func TestTenantCacheWorkflowGenerations(t *testing.T) {
	c := NewTenantCache(time.Minute)

	_, gen, _ := c.workflows(testTenant)
	c.InvalidateWorkflows(testTenant)
	c.setWorkflows(testTenant, gen, []models.ChatbotWorkflow{{Name: "stale"}})
	_, _, ok := c.workflows(testTenant)
	assert.False(t, ok)

	// generations are per key and per tenant
	_, rulesGen, _ := c.rules(testTenant)
	assert.Zero(t, rulesGen)
	_, otherGen, _ := c.workflows("tenant-2")
	assert.Zero(t, otherGen)
}

func TestTenantCacheDisabled(t *testing.T) {
	for name, c := range map[string]*TenantCache{"zero ttl": NewTenantCache(0), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			c.setRules(testTenant, 0, []models.AssignmentRule{{Name: "r"}})
			c.InvalidateRules(testTenant)
			c.InvalidateWorkflows(testTenant)
			_, _, ok := c.rules(testTenant)
			assert.False(t, ok)
			_, _, ok = c.workflows(testTenant)
			assert.False(t, ok)
		})
	}
}
