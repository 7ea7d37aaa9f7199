package match

import (
	"math"

	"github.com/sells-group/placematch/internal/config"
	"github.com/sells-group/placematch/internal/model"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distance.
const earthRadiusMeters = 6371000

// Mode selects the decision thresholds for BestMatch.
type Mode int

const (
	// Forward is the permissive mode used while paging through area search
	// results, where GPS and phone signals are usually available.
	Forward Mode = iota

	// Reverse is the strict mode used for name-based reverse lookup, where
	// few signals are available and over-merging is the bigger risk.
	Reverse
)

// Matcher scores provider records against stored candidates.
type Matcher struct {
	cfg config.MatcherConfig
}

// New creates a Matcher with the given weights and thresholds.
func New(cfg config.MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Match is a scored candidate returned by BestMatch.
type Match struct {
	Candidate model.Candidate
	Score     float64
}

// Score computes the 0..100 confidence that rec and cand describe the same
// establishment. Pure function: neither argument is mutated.
func (m *Matcher) Score(rec *model.Record, cand *model.Candidate) float64 {
	score := m.NameSimilarity(rec.Name, cand.Name) * m.cfg.NameWeight

	if rec.Address != "" && cand.Address != "" &&
		NormalizeAddress(rec.Address) == NormalizeAddress(cand.Address) {
		score += m.cfg.AddressWeight
	}

	if rec.HasGPS() && cand.Latitude != nil && cand.Longitude != nil {
		meters := haversineMeters(*rec.Latitude, *rec.Longitude, *cand.Latitude, *cand.Longitude)
		if meters < m.cfg.GPSMaxMeters {
			score += m.cfg.GPSWeight * (1 - meters/m.cfg.GPSMaxMeters)
		}
	}

	if rec.Phone != "" && cand.Phone != "" &&
		NormalizePhone(rec.Phone) == NormalizePhone(cand.Phone) {
		score += m.cfg.PhoneWeight
	}

	return score
}

// NameSimilarity returns the 0..1 LCS similarity of two normalized names.
func (m *Matcher) NameSimilarity(a, b string) float64 {
	return Similarity(NormalizeName(a), NormalizeName(b))
}

// BestMatch returns the highest-scoring candidate above the mode's threshold,
// or nil if none qualifies. Ties are broken by candidate order: a later
// candidate must score strictly higher to displace an earlier one.
func (m *Matcher) BestMatch(rec *model.Record, candidates []model.Candidate, mode Mode) *Match {
	threshold := m.cfg.ForwardThreshold
	if mode == Reverse {
		threshold = m.cfg.ReverseThreshold
	}

	var best *Match
	for i := range candidates {
		cand := &candidates[i]
		score := m.Score(rec, cand)
		if score <= threshold {
			continue
		}
		if mode == Reverse && m.NameSimilarity(rec.Name, cand.Name) < m.cfg.ReverseNameFloor {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Candidate: *cand, Score: score}
		}
	}
	return best
}

// haversineMeters is the great-circle distance between two WGS84 points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
