package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/pitopup/pitopup/internal/models"
)

var ErrPlanNotFound = errors.New("plan not found")

// Catalog is the immutable set of purchasable plans.
type Catalog struct {
	plans []models.Plan
	byID  map[string]models.Plan
}

// New builds a catalog from plans, rejecting duplicates and malformed entries.
func New(plans []models.Plan) (*Catalog, error) {
	c := &Catalog{
		plans: make([]models.Plan, 0, len(plans)),
		byID:  make(map[string]models.Plan, len(plans)),
	}
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan %q: id is required", p.Name)
		}
		if !p.Type.Valid() {
			return nil, fmt.Errorf("plan %s: unknown type %q", p.ID, p.Type)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("plan %s: price must be positive", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("plan %s: duplicate id", p.ID)
		}
		c.plans = append(c.plans, p)
		c.byID[p.ID] = p
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

type planEntry struct {
	ID          string `mapstructure:"id"`
	Type        string `mapstructure:"type"`
	Name        string `mapstructure:"name"`
	Amount      string `mapstructure:"amount"`
	Price       string `mapstructure:"price"`
	Duration    string `mapstructure:"duration"`
	Popular     bool   `mapstructure:"popular"`
	Description string `mapstructure:"description"`
}

// Load reads plans from a YAML, JSON or TOML file with a top-level "plans" list.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var entries []planEntry
	if err := v.UnmarshalKey("plans", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog file %s has no plans", path)
	}

	plans := make([]models.Plan, 0, len(entries))
	for _, e := range entries {
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %s: invalid price %q: %w", e.ID, e.Price, err)
		}
		plans = append(plans, models.Plan{
			ID:          e.ID,
			Type:        models.PlanType(e.Type),
			Name:        e.Name,
			Amount:      e.Amount,
			Price:       price,
			Duration:    e.Duration,
			Popular:     e.Popular,
			Description: e.Description,
		})
	}
	return New(plans)
}

// All returns every plan in catalog order.
func (c *Catalog) All() []models.Plan {
	out := make([]models.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// ByType returns the plans of one category in catalog order.
func (c *Catalog) ByType(t models.PlanType) []models.Plan {
	var out []models.Plan
	for _, p := range c.plans {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func (c *Catalog) Find(id string) (models.Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}
