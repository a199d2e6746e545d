package dedup

import (
	"math"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

// Similarity holds the component scores for one raw/unique pairing and the
// weighted total actually compared against the threshold.
type Similarity struct {
	Characteristics float64
	Address         float64
	Photo           float64
	Text            float64
	Overall         float64
	Threshold       float64
}

// Match reports whether the pair clears the threshold that applied to it.
func (s Similarity) Match() bool {
	return s.Overall >= s.Threshold
}

// Scorer computes pairwise listing similarity. Weights and thresholds come
// from DedupConfig; two weight profiles exist because text similarity has to
// carry photo weight when either side has no photos.
type Scorer struct {
	cfg config.DedupConfig
}

func NewScorer(cfg config.DedupConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score compares a raw listing against a unique listing. A property type
// mismatch vetoes the pair outright regardless of the other components.
func (s *Scorer) Score(raw *models.RawListing, unique *models.UniqueListing) Similarity {
	if raw.PropertyType != "" && unique.PropertyType != "" && raw.PropertyType != unique.PropertyType {
		return Similarity{Threshold: 1.0}
	}

	sim := Similarity{
		Characteristics: s.characteristicsSimilarity(raw, unique),
		Address:         addressSimilarity(raw, unique),
	}

	rawHashes := raw.PhotoHashes()
	uniqueHashes := unique.PhotoHashes()
	bothHavePhotos := len(rawHashes) > 0 && len(uniqueHashes) > 0

	wChar := s.cfg.WeightCharacteristics
	wAddr := s.cfg.WeightAddress
	if bothHavePhotos {
		sim.Photo = jaccard(rawHashes, uniqueHashes)
		sim.Text = cosine(raw.TextEmbedding, unique.TextEmbedding)
		sim.Overall = wChar*sim.Characteristics + wAddr*sim.Address +
			s.cfg.WeightPhoto*sim.Photo + s.cfg.WeightText*sim.Text
		sim.Threshold = s.cfg.ThresholdWithPhotos
	} else {
		// 写真なしの場合はテキストに写真の重みを移す
		sim.Text = cosine(raw.TextEmbedding, unique.TextEmbedding)
		sim.Overall = wChar*sim.Characteristics + wAddr*sim.Address +
			(s.cfg.WeightPhoto+s.cfg.WeightText)*sim.Text
		sim.Threshold = s.cfg.ThresholdNoPhotos
	}

	return sim
}

// characteristicsSimilarity is the weighted average of per-field agreement
// over the structured attributes; area carries the most weight. Fields absent
// on both sides count as agreement; fields present on only one side count as
// disagreement. A zero weight removes the field from the comparison.
func (s *Scorer) characteristicsSimilarity(raw *models.RawListing, unique *models.UniqueListing) float64 {
	var total, matched float64

	score := func(w, v float64) {
		if w <= 0 {
			return
		}
		total += w
		matched += w * v
	}

	score(s.cfg.FieldWeightArea, floatCloseness(raw.AreaSqm, unique.AreaSqm, s.cfg.AreaTolerance))
	score(s.cfg.FieldWeightLandArea, floatCloseness(raw.LandArea, unique.LandArea, s.cfg.LandAreaTolerance))
	score(s.cfg.FieldWeightRooms, intEquality(raw.Rooms, unique.Rooms))
	score(s.cfg.FieldWeightFloor, intEquality(raw.Floor, unique.Floor))
	score(s.cfg.FieldWeightTotalFloors, intEquality(raw.TotalFloors, unique.TotalFloors))
	score(s.cfg.FieldWeightBuildingType, stringEquality(raw.BuildingType, unique.BuildingType))
	score(s.cfg.FieldWeightSeries, stringEquality(raw.Series, unique.Series))
	score(s.cfg.FieldWeightListingType, stringEquality(raw.ListingType, unique.ListingType))

	if total == 0 {
		return 0
	}
	return matched / total
}

func floatCloseness(a, b *float64, tolerance float64) float64 {
	if a == nil && b == nil {
		return 1.0
	}
	if a == nil || b == nil {
		return 0.0
	}
	if math.Abs(*a-*b) <= tolerance {
		return 1.0
	}
	return 0.0
}

func intEquality(a, b *int) float64 {
	if a == nil && b == nil {
		return 1.0
	}
	if a == nil || b == nil {
		return 0.0
	}
	if *a == *b {
		return 1.0
	}
	return 0.0
}

func stringEquality(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// addressSimilarity is the fraction of location fields that agree among the
// fields present on at least one side. Two listings with no location at all
// get zero, not full credit.
func addressSimilarity(raw *models.RawListing, unique *models.UniqueListing) float64 {
	if !raw.HasLocation() && !unique.HasLocation() {
		return 0.0
	}

	var total, matched float64
	compare := func(a, b string) {
		if a == "" && b == "" {
			return
		}
		total++
		if a == b {
			matched++
		}
	}

	compare(raw.City, unique.City)
	compare(raw.District, unique.District)
	compare(raw.Address, unique.Address)

	if total == 0 {
		return 0.0
	}
	return matched / total
}

// jaccard is intersection-over-union of two hash sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, h := range a {
		setA[h] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, h := range b {
		setB[h] = struct{}{}
	}

	intersection := 0
	for h := range setA {
		if _, ok := setB[h]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// cosine computes cosine similarity over the overlapping prefix of the two
// vectors. Missing or zero-norm vectors yield zero.
func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
