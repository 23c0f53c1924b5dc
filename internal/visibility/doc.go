// Package visibility orders marketplace listings (salons, services,
// products) by how prominently they should be shown.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	cal, err := visibility.LoadCalibration(cfg.CalibrationPath)
//	if err != nil {
//		log.Warn("using default calibration", "error", err)
//	}
//	ranker := visibility.New(cal.Options()...)
//
//	// Rank whatever the catalog returned
//	visibility.Sort(ranker, salons, func(s Salon) visibility.Input {
//		return visibility.Input{
//			VisibilityWeight: s.VisibilityWeight,
//			FeaturedUntil:    s.FeaturedUntil,
//			CreatedAt:        s.CreatedAt,
//		}
//	})
//
// Score:
//
// A listing scores its plan-tier weight plus the featured boost (10 by
// default) while its featured window is open. Missing, non-numeric or
// non-positive weights count as 1, so a malformed record sorts as an
// ordinary tier-1 listing instead of failing the page.
//
// Order:
//
// Compare sorts by descending score, then by descending creation time.
// Listings equal on both keys are left in their input order by Sort.
package visibility
