package dataset

import "bayesprev/domain/core"

// ColumnType defines column types for validation
type ColumnType string

const (
	TypeBinary  ColumnType = "binary"
	TypeNumeric ColumnType = "numeric"
	TypeOutcome ColumnType = "outcome"
)

// Column is one named, typed field in the fixed observation schema
type Column struct {
	Key  core.ColumnKey
	Type ColumnType
}

// The fixed schema: 4 mutually exclusive region indicators, 5 vulnerability
// indices, 5 governance indices, and the positive prevalence outcome.
var (
	RegionColumns = []Column{
		{Key: "region_africa", Type: TypeBinary},
		{Key: "region_americas", Type: TypeBinary},
		{Key: "region_asia_pacific", Type: TypeBinary},
		{Key: "region_europe", Type: TypeBinary},
	}

	VulnerabilityColumns = []Column{
		{Key: "vuln_governance_gap", Type: TypeNumeric},
		{Key: "vuln_basic_needs", Type: TypeNumeric},
		{Key: "vuln_inequality", Type: TypeNumeric},
		{Key: "vuln_disenfranchised", Type: TypeNumeric},
		{Key: "vuln_conflict", Type: TypeNumeric},
	}

	GovernanceColumns = []Column{
		{Key: "gov_political_stability", Type: TypeNumeric},
		{Key: "gov_rule_of_law", Type: TypeNumeric},
		{Key: "gov_regulatory_quality", Type: TypeNumeric},
		{Key: "gov_effectiveness", Type: TypeNumeric},
		{Key: "gov_accountability", Type: TypeNumeric},
	}

	OutcomeColumn = Column{Key: "prevalence", Type: TypeOutcome}
)

// CovariateColumns returns the 14 predictor columns in model order:
// regions first, then vulnerability, then governance.
func CovariateColumns() []Column {
	cols := make([]Column, 0, NumCovariates)
	cols = append(cols, RegionColumns...)
	cols = append(cols, VulnerabilityColumns...)
	cols = append(cols, GovernanceColumns...)
	return cols
}

// Fixed dimensions of the observation schema
const (
	NumRegions       = 4
	NumVulnerability = 5
	NumGovernance    = 5
	NumCovariates    = NumRegions + NumVulnerability + NumGovernance
)
