package sbissync

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FallbackServiceCode is assigned when no mapping rule matches.
const FallbackServiceCode = "other"

// MappingRule maps a provider service whose (lowercased) code contains
// Substring to the local catalog code Code. Rules are evaluated in slice
// order; the first match wins.
type MappingRule struct {
	Substring string
	Code      string
}

// DefaultMappingRules is the built-in provider-to-catalog table.
func DefaultMappingRules() []MappingRule {
	return []MappingRule{
		{Substring: "sbis_online", Code: "sbis"},
		{Substring: "sbis_cloud", Code: "sbis"},
		{Substring: "sbis", Code: "sbis"},
		{Substring: "evotor", Code: "evotor"},
		{Substring: "atol", Code: "atol"},
	}
}

// MapServiceCode resolves a provider service code to a local catalog code.
func MapServiceCode(rules []MappingRule, providerCode string) string {
	code := strings.ToLower(strings.TrimSpace(providerCode))
	for _, rule := range rules {
		if strings.Contains(code, rule.Substring) {
			return rule.Code
		}
	}
	return FallbackServiceCode
}

// resolveService maps a provider descriptor to a catalog entry id, creating
// the entry on first sight. Concurrent first-sight creates race on the unique
// code index; the loser re-reads the winner's row.
func resolveService(tx *gorm.DB, rules []MappingRule, descriptor SbisService) (int, error) {
	code := MapServiceCode(rules, descriptor.Code)

	var existing models.Service
	err := tx.Where("code = ?", code).Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	service := models.Service{
		Name:          strings.TrimSpace(descriptor.Name),
		Code:          code,
		Description:   strings.TrimSpace(descriptor.Description),
		Price:         decimalFromNumber(descriptor.Price),
		BillingPeriod: models.BillingPeriod(strings.TrimSpace(descriptor.BillingPeriod)),
	}
	if service.Name == "" {
		service.Name = "Unknown service"
	}
	if service.BillingPeriod == "" {
		service.BillingPeriod = models.BillingPeriodMonthly
	}

	if err := tx.Create(&service).Error; err != nil {
		if isDuplicateKeyErr(err) {
			var winner models.Service
			if err := tx.Where("code = ?", code).Take(&winner).Error; err != nil {
				return 0, err
			}
			return winner.ID, nil
		}
		return 0, err
	}
	return service.ID, nil
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}
