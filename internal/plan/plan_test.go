package plan

import (
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func TestCatalog(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("expected 6 plans, got %d", len(all))
	}

	// Weights must increase strictly with tier.
	for i := 1; i < len(all); i++ {
		if all[i].VisibilityWeight <= all[i-1].VisibilityWeight {
			t.Errorf("plan %s weight %d should exceed %s weight %d",
				all[i].Code, all[i].VisibilityWeight, all[i-1].Code, all[i-1].VisibilityWeight)
		}
	}

	if got := len(Active()); got != 4 {
		t.Errorf("expected 4 active plans, got %d", got)
	}
	for _, p := range Legacy() {
		if p.Code != CodeFree && p.Code != CodeStarter {
			t.Errorf("unexpected legacy plan %s", p.Code)
		}
	}

	elite, _ := Lookup("ELITE")
	if !elite.Unlimited() {
		t.Error("ELITE should be unlimited")
	}
	pro, _ := Lookup("PRO")
	if pro.Unlimited() {
		t.Error("PRO should not be unlimited")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	all := All()
	all[0].VisibilityWeight = 99
	if p, _ := Lookup("FREE"); p.VisibilityWeight != 0 {
		t.Error("mutating All() result must not change the catalog")
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		raw    string
		want   Code
		wantOK bool
	}{
		{"ESSENTIAL", CodeEssential, true},
		{"  growth ", CodeGrowth, true},
		{"Pro", CodePro, true},
		{"", "", false},
		{"undefined", "", false},
		{"null", "", false},
		{"NULL", "", false},
		{"PLATINUM", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeCode(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeCode(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	until := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		code       string
		stored     *Plan
		overrides  Overrides
		wantCode   Code
		wantWeight int
		wantMax    int
		wantPrice  *int
		wantPaid   bool
	}{
		{
			name:       "catalog fallback",
			code:       "GROWTH",
			wantCode:   CodeGrowth,
			wantWeight: 3,
			wantMax:    15,
			wantPrice:  intPtr(19900),
		},
		{
			name:       "stored row wins over catalog",
			code:       "PRO",
			stored:     &Plan{Code: CodePro, VisibilityWeight: 6, MaxListings: 40, PriceCents: 34900},
			wantCode:   CodePro,
			wantWeight: 6,
			wantMax:    40,
			wantPrice:  intPtr(34900),
		},
		{
			name:       "overrides win over stored row",
			code:       "PRO",
			stored:     &Plan{Code: CodePro, VisibilityWeight: 6, MaxListings: 40, PriceCents: 34900},
			overrides:  Overrides{VisibilityWeight: intPtr(9), MaxListings: intPtr(100)},
			wantCode:   CodePro,
			wantWeight: 9,
			wantMax:    100,
			wantPrice:  intPtr(34900),
		},
		{
			name:       "free is payment verified",
			code:       "free",
			wantCode:   CodeFree,
			wantWeight: 0,
			wantMax:    1,
			wantPrice:  intPtr(0),
			wantPaid:   true,
		},
		{
			name:       "unknown code uses defaults and ignores stored row",
			code:       "PLATINUM",
			stored:     &Plan{VisibilityWeight: 8, MaxListings: 8, PriceCents: 8},
			wantCode:   "",
			wantWeight: DefaultVisibilityWeight,
			wantMax:    DefaultMaxListings,
		},
		{
			name:       "absent code with override",
			code:       "undefined",
			overrides:  Overrides{VisibilityWeight: intPtr(4)},
			wantCode:   "",
			wantWeight: 4,
			wantMax:    DefaultMaxListings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Resolve(tt.code, tt.stored, tt.overrides)
			if a.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", a.Code, tt.wantCode)
			}
			if a.VisibilityWeight != tt.wantWeight {
				t.Errorf("VisibilityWeight = %d, want %d", a.VisibilityWeight, tt.wantWeight)
			}
			if a.MaxListings != tt.wantMax {
				t.Errorf("MaxListings = %d, want %d", a.MaxListings, tt.wantMax)
			}
			switch {
			case tt.wantPrice == nil && a.PriceCents != nil:
				t.Errorf("PriceCents = %d, want unset", *a.PriceCents)
			case tt.wantPrice != nil && a.PriceCents == nil:
				t.Errorf("PriceCents unset, want %d", *tt.wantPrice)
			case tt.wantPrice != nil && *a.PriceCents != *tt.wantPrice:
				t.Errorf("PriceCents = %d, want %d", *a.PriceCents, *tt.wantPrice)
			}
			if a.PaymentVerified != tt.wantPaid {
				t.Errorf("PaymentVerified = %v, want %v", a.PaymentVerified, tt.wantPaid)
			}
		})
	}

	t.Run("featured override passes through", func(t *testing.T) {
		a := Resolve("ELITE", nil, Overrides{FeaturedUntil: &until, SetFeaturedUntil: true})
		if !a.SetFeaturedUntil || a.FeaturedUntil == nil || !a.FeaturedUntil.Equal(until) {
			t.Errorf("expected featured window %v to be set, got %+v", until, a)
		}
	})

	t.Run("featured clear", func(t *testing.T) {
		a := Resolve("ELITE", nil, Overrides{SetFeaturedUntil: true})
		if !a.SetFeaturedUntil || a.FeaturedUntil != nil {
			t.Errorf("expected featured window to be cleared, got %+v", a)
		}
	})
}
