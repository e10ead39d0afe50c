package services

import (
	"fmt"

	"github.com/Dhoini/checkout-service/internal/config"
)

// Catalog - прайс-лист тарифов.
type Catalog struct {
	plans  []config.Plan
	prices map[string]string // price id -> имя плана
}

// NewCatalog строит каталог из конфигурации.
func NewCatalog(plans []config.Plan) *Catalog {
	c := &Catalog{
		plans:  plans,
		prices: make(map[string]string, len(plans)*2),
	}
	for _, p := range plans {
		if p.PriceIDMonthly != "" {
			c.prices[p.PriceIDMonthly] = p.Name
		}
		if p.PriceIDAnnual != "" {
			c.prices[p.PriceIDAnnual] = p.Name
		}
	}
	return c
}

// Plans возвращает копию списка тарифов.
func (c *Catalog) Plans() []config.Plan {
	out := make([]config.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// PlanName возвращает имя плана по price id или "".
func (c *Catalog) PlanName(priceID string) string {
	return c.prices[priceID]
}

// ValidatePrice проверяет price id. Пустой каталог разрешает любые цены.
func (c *Catalog) ValidatePrice(priceID string) error {
	if priceID == "" {
		return fmt.Errorf("%w: priceId is required", ErrInvalidInput)
	}
	if len(c.prices) == 0 {
		return nil
	}
	if _, ok := c.prices[priceID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrice, priceID)
	}
	return nil
}
