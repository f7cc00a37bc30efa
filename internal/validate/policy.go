package validate

import "github.com/faucetdb/schemaguard/internal/model"

// Policy is the severity policy table applied by the validators. Fractions
// are of the rows checked; a count at or above the high fraction is high,
// at or above the medium fraction is medium, and anything else is low.
type Policy struct {
	SampleSize int `yaml:"sample_size" json:"sample_size"`

	NullHighFraction   float64 `yaml:"null_high_fraction" json:"null_high_fraction"`
	NullMediumFraction float64 `yaml:"null_medium_fraction" json:"null_medium_fraction"`

	PrimaryKeyDuplicateSeverity model.Severity `yaml:"primary_key_duplicate_severity" json:"primary_key_duplicate_severity"`
	UniqueDuplicateSeverity     model.Severity `yaml:"unique_duplicate_severity" json:"unique_duplicate_severity"`

	DomainHighFraction   float64 `yaml:"domain_high_fraction" json:"domain_high_fraction"`
	DomainMediumFraction float64 `yaml:"domain_medium_fraction" json:"domain_medium_fraction"`

	MaxLengthSeverity model.Severity `yaml:"max_length_severity" json:"max_length_severity"`

	// ReferenceLookupLimit caps the distinct values read from a referenced
	// column. A domain check whose lookup hits the cap is skipped.
	ReferenceLookupLimit int `yaml:"reference_lookup_limit" json:"reference_lookup_limit"`
}

// DefaultPolicy returns the built-in severity policy.
func DefaultPolicy() Policy {
	return Policy{
		SampleSize:                  5,
		NullHighFraction:            0.5,
		NullMediumFraction:          0.05,
		PrimaryKeyDuplicateSeverity: model.SeverityHigh,
		UniqueDuplicateSeverity:     model.SeverityMedium,
		DomainHighFraction:          0.2,
		DomainMediumFraction:        0.01,
		MaxLengthSeverity:           model.SeverityMedium,
		ReferenceLookupLimit:        100000,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.SampleSize <= 0 {
		p.SampleSize = d.SampleSize
	}
	if p.NullHighFraction <= 0 {
		p.NullHighFraction = d.NullHighFraction
	}
	if p.NullMediumFraction <= 0 {
		p.NullMediumFraction = d.NullMediumFraction
	}
	if p.PrimaryKeyDuplicateSeverity == "" {
		p.PrimaryKeyDuplicateSeverity = d.PrimaryKeyDuplicateSeverity
	}
	if p.UniqueDuplicateSeverity == "" {
		p.UniqueDuplicateSeverity = d.UniqueDuplicateSeverity
	}
	if p.DomainHighFraction <= 0 {
		p.DomainHighFraction = d.DomainHighFraction
	}
	if p.DomainMediumFraction <= 0 {
		p.DomainMediumFraction = d.DomainMediumFraction
	}
	if p.MaxLengthSeverity == "" {
		p.MaxLengthSeverity = d.MaxLengthSeverity
	}
	if p.ReferenceLookupLimit <= 0 {
		p.ReferenceLookupLimit = d.ReferenceLookupLimit
	}
	return p
}

// FractionSeverity grades count out of total against the two thresholds.
func FractionSeverity(count, total int, high, medium float64) model.Severity {
	if total <= 0 || count <= 0 {
		return model.SeverityLow
	}
	frac := float64(count) / float64(total)
	switch {
	case frac >= high:
		return model.SeverityHigh
	case frac >= medium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
