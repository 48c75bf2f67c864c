package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Setting keys.
const (
	KeyPricing  = "pricing"
	KeyCashback = "cashback"
	KeyReward   = "daily_reward"
	KeyReferral = "referral"
)

// Pricing holds checkout-wide charges applied to every order.
type Pricing struct {
	TaxBps        int64        `json:"tax_bps"`
	ServiceCharge money.Amount `json:"service_charge"`
}

// Cashback configures the credit award granted on completed orders.
// Empty eligibility lists mean every category and product earns; the
// usable lists record where credits may be spent (empty = everywhere).
type Cashback struct {
	Enabled            bool         `json:"enabled"`
	PercentBps         int64        `json:"percent_bps"`
	MinOrder           money.Amount `json:"min_order"`
	EligibleCategories []string     `json:"eligible_categories"`
	EligibleProducts   []string     `json:"eligible_products"`
	UsableCategories   []string     `json:"usable_categories"`
	UsableProducts     []string     `json:"usable_products"`
}

// Reward configures the daily check-in reward.
type Reward struct {
	Enabled    bool                 `json:"enabled"`
	BaseAmount money.Amount         `json:"base_amount"`
	Milestones map[int]money.Amount `json:"milestones"`
}

// Referral configures the two-sided referral program.
type Referral struct {
	Enabled             bool         `json:"enabled"`
	ReferredReward      money.Amount `json:"referred_reward"`
	ReferrerReward      money.Amount `json:"referrer_reward"`
	MinPurchaseRequired bool         `json:"min_purchase_required"`
	MinPurchaseAmount   money.Amount `json:"min_purchase_amount"`
}

// Defaults returns the settings used before an admin configures anything.
func Defaults() map[string]any {
	return map[string]any{
		KeyPricing: Pricing{TaxBps: 1300, ServiceCharge: money.FromRupees(0)},
		KeyCashback: Cashback{
			Enabled:            true,
			PercentBps:         200,
			MinOrder:           money.FromRupees(100),
			EligibleCategories: []string{},
			EligibleProducts:   []string{},
			UsableCategories:   []string{},
			UsableProducts:     []string{},
		},
		KeyReward: Reward{
			Enabled:    true,
			BaseAmount: money.FromRupees(10),
			Milestones: map[int]money.Amount{
				7:   money.FromRupees(50),
				30:  money.FromRupees(200),
				100: money.FromRupees(1000),
			},
		},
		KeyReferral: Referral{
			Enabled:             true,
			ReferredReward:      money.FromRupees(50),
			ReferrerReward:      money.FromRupees(100),
			MinPurchaseRequired: false,
			MinPurchaseAmount:   money.FromRupees(0),
		},
	}
}

// Store reads and writes settings documents.
type Store struct {
	DB db.DBTX
}

func (s *Store) get(ctx context.Context, key string, dest any) error {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if db.IsNoRows(err) {
		return s.loadDefault(key, dest)
	}
	if err != nil {
		return fmt.Errorf("settings: load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) loadDefault(key string, dest any) error {
	def, ok := Defaults()[key]
	if !ok {
		return fmt.Errorf("settings: unknown key %s", key)
	}
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Put upserts the given settings document.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	_, err = s.DB.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("settings: store %s: %w", key, err)
	}
	return nil
}

// GetPricing returns the pricing configuration, falling back to defaults.
func (s *Store) GetPricing(ctx context.Context) (Pricing, error) {
	var p Pricing
	err := s.get(ctx, KeyPricing, &p)
	return p, err
}

// GetCashback returns the cashback configuration.
func (s *Store) GetCashback(ctx context.Context) (Cashback, error) {
	var c Cashback
	err := s.get(ctx, KeyCashback, &c)
	return c, err
}

// GetReward returns the daily reward configuration.
func (s *Store) GetReward(ctx context.Context) (Reward, error) {
	var r Reward
	err := s.get(ctx, KeyReward, &r)
	return r, err
}

// GetReferral returns the referral program configuration.
func (s *Store) GetReferral(ctx context.Context) (Referral, error) {
	var r Referral
	err := s.get(ctx, KeyReferral, &r)
	return r, err
}
