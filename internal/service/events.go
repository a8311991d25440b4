package service

// Change events published after a successful commit
const (
	EventTaxCreated     = "tax.created"
	EventTaxUpdated     = "tax.updated"
	EventTaxDeleted     = "tax.deleted"
	EventTaxRuleCreated = "tax_rule.created"
	EventTaxRuleUpdated = "tax_rule.updated"
	EventTaxRuleDeleted = "tax_rule.deleted"
)

// EventPublisher fans change events out to live subscribers
type EventPublisher interface {
	Publish(companyID, event string, data map[string]interface{})
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, map[string]interface{}) {}
