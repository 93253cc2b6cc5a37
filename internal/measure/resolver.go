// Package measure maps measurement references from earlier releases onto the
// canonical measurement descriptions of the current reference data.
//
// Three releases identified measurements three ways: by numeric code into a
// lookup table, and by two generations of description text. A reference is
// resolved against the food's weight rows by trying, in order, an exact
// description match, an exact gram weight match, a gram weight match within
// half a gram, and a literal substring match in either direction.
package measure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gnutrition/internal/logging"
	"gnutrition/internal/persistence"
)

// Tier names the rule that produced a resolution.
type Tier string

const (
	TierExact      Tier = "exact"
	TierWeight     Tier = "weight"
	TierTolerant   Tier = "tolerant_weight"
	TierSubstring  Tier = "substring"
	TierUnresolved Tier = "unresolved"
)

var (
	// ErrUnresolved is matched by every ResolutionError.
	ErrUnresolved = errors.New("measurement unresolved")
	// ErrInvalidReference reports a Ref carrying both or neither of a
	// description and a legacy code.
	ErrInvalidReference = errors.New("measurement reference needs exactly one of description or legacy code")
	// ErrNoLegacyStore reports a legacy code lookup without a legacy store.
	ErrNoLegacyStore = errors.New("legacy code given but no legacy store configured")
)

// Ref is a measurement reference as stored by an earlier release.
type Ref struct {
	Description string
	Code        int64
	HasCode     bool
}

// Description returns a description-based reference.
func Description(desc string) Ref { return Ref{Description: desc} }

// Code returns a reference by legacy measure code.
func Code(code int64) Ref { return Ref{Code: code, HasCode: true} }

func (r Ref) String() string {
	if r.HasCode {
		return fmt.Sprintf("code %d", r.Code)
	}
	return fmt.Sprintf("%q", r.Description)
}

// ResolutionError reports that no canonical description fits a reference.
type ResolutionError struct {
	FoodID string
	Ref    Ref
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("food %s measure %s: %s", e.FoodID, e.Ref, e.Reason)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrUnresolved }

// Resolution is a successful match.
type Resolution struct {
	Description string
	Tier        Tier
}

// Candidate is one canonical measurement of a food.
type Candidate struct {
	Description string
	GramWeight  float64
}

// Metrics counts resolution outcomes. *metrics.Recorder satisfies it.
type Metrics interface {
	Resolved(tier string)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLegacy sets the store legacy measure codes are looked up in.
func WithLegacy(q persistence.Querier) Option { return func(r *Resolver) { r.legacy = q } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(r *Resolver) { r.log = logging.OrNop(l) } }

// WithMetrics sets the outcome counter.
func WithMetrics(m Metrics) Option { return func(r *Resolver) { r.metrics = m } }

// Resolver resolves references against the current store's weight table.
type Resolver struct {
	current persistence.Querier
	legacy  persistence.Querier
	log     logging.Logger
	metrics Metrics
}

// NewResolver returns a Resolver reading canonical rows from current.
func NewResolver(current persistence.Querier, opts ...Option) *Resolver {
	r := &Resolver{current: current, log: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical description for ref on food foodID. A
// reference that matches nothing yields an error matching ErrUnresolved;
// statement failures are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, foodID string, ref Ref) (Resolution, error) {
	if ref.HasCode == (ref.Description != "") {
		return Resolution{}, ErrInvalidReference
	}
	if ref.HasCode && r.legacy == nil {
		return Resolution{}, ErrNoLegacyStore
	}
	ctx = persistence.WithCaller(ctx, "resolve measure")
	candidates, err := r.candidates(ctx, foodID)
	if err != nil {
		return Resolution{}, err
	}
	if len(candidates) == 0 {
		return Resolution{}, r.unresolved(foodID, ref, "no canonical measures for food")
	}

	desc := ref.Description
	var (
		gramWeight float64
		haveWeight bool
	)
	if ref.HasCode {
		if desc, err = r.legacyDescription(ctx, ref.Code); err != nil {
			return Resolution{}, err
		}
		if gramWeight, haveWeight, err = r.legacyWeight(ctx, foodID, ref.Code); err != nil {
			return Resolution{}, err
		}
	}

	if res, ok := Match(candidates, desc, gramWeight, haveWeight); ok {
		r.count(res.Tier)
		r.log.Debug("measure resolved", "food_id", foodID, "ref", ref.String(), "tier", string(res.Tier), "description", res.Description)
		return res, nil
	}
	return Resolution{}, r.unresolved(foodID, ref, "no tier matched")
}

// Match applies the tiers to candidates. gramWeight is used only when
// haveWeight is set.
func Match(candidates []Candidate, desc string, gramWeight float64, haveWeight bool) (Resolution, bool) {
	if desc != "" {
		for _, c := range candidates {
			if c.Description == desc {
				return Resolution{Description: c.Description, Tier: TierExact}, true
			}
		}
	}
	if haveWeight {
		for _, c := range candidates {
			if c.GramWeight == gramWeight {
				return Resolution{Description: c.Description, Tier: TierWeight}, true
			}
		}
		for _, c := range candidates {
			if withinHalfGram(c.GramWeight, gramWeight) {
				return Resolution{Description: c.Description, Tier: TierTolerant}, true
			}
		}
	}
	if desc != "" {
		for _, c := range candidates {
			if c.Description == "" {
				continue
			}
			if strings.Contains(c.Description, desc) || strings.Contains(desc, c.Description) {
				return Resolution{Description: c.Description, Tier: TierSubstring}, true
			}
		}
	}
	return Resolution{}, false
}

// withinHalfGram compares rounded weights. The window is asymmetric: the
// canonical weight moves by 0.05 and the legacy weight by 0.5.
func withinHalfGram(canonical, legacy float64) bool {
	return math.Round(canonical+0.05) == math.Round(legacy+0.5) ||
		math.Round(canonical-0.05) == math.Round(legacy-0.5)
}

// Candidates returns the canonical measures of foodID in sequence order.
func (r *Resolver) Candidates(ctx context.Context, foodID string) ([]Candidate, error) {
	return r.candidates(persistence.WithCaller(ctx, "resolve measure"), foodID)
}

func (r *Resolver) candidates(ctx context.Context, foodID string) ([]Candidate, error) {
	res, err := r.current.Execute(ctx, "SELECT Msre_Desc, Gm_wgt FROM weight WHERE NDB_No = ? ORDER BY Seq", foodID)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, res.Len())
	for _, row := range res.All() {
		w, ok := persistence.AsFloat(row[1])
		if !ok {
			return nil, fmt.Errorf("weight of %s: not a number: %v", foodID, row[1])
		}
		out = append(out, Candidate{Description: persistence.AsString(row[0]), GramWeight: w})
	}
	return out, nil
}

func (r *Resolver) legacyDescription(ctx context.Context, code int64) (string, error) {
	res, err := r.legacy.Execute(ctx, "SELECT msre_desc FROM measure WHERE msre_no = ?", code)
	if err != nil {
		return "", err
	}
	v, err := res.Scalar()
	if err != nil {
		r.log.Debug("legacy measure code has no description", "code", code, "error", err)
		return "", nil
	}
	return persistence.AsString(v), nil
}

func (r *Resolver) legacyWeight(ctx context.Context, foodID string, code int64) (float64, bool, error) {
	res, err := r.legacy.Execute(ctx, "SELECT wgt_val FROM weight WHERE fd_no = ? AND msre_no = ?", legacyFoodNumber(foodID), code)
	if err != nil {
		return 0, false, err
	}
	v, err := res.Scalar()
	if err != nil {
		r.log.Debug("legacy weight unavailable", "food_id", foodID, "code", code, "error", err)
		return 0, false, nil
	}
	w, ok := persistence.AsFloat(v)
	return w, ok, nil
}

// legacyFoodNumber converts a padded food id to the integer the old schema
// stored. Ids that are not numeric are passed through.
func legacyFoodNumber(foodID string) any {
	if n, err := strconv.ParseInt(foodID, 10, 64); err == nil {
		return n
	}
	return foodID
}

func (r *Resolver) unresolved(foodID string, ref Ref, reason string) error {
	r.count(TierUnresolved)
	return &ResolutionError{FoodID: foodID, Ref: ref, Reason: reason}
}

func (r *Resolver) count(t Tier) {
	if r.metrics != nil {
		r.metrics.Resolved(string(t))
	}
}
