package horizon

import "time"

// WarningType names the condition a Warning reports.
type WarningType string

const (
	WarnQuietDensity  WarningType = "quiet_density"
	WarnHighAnomalies WarningType = "high_anomalies"
	WarnStrengthening WarningType = "strengthening_patterns"
	WarnCollaborator  WarningType = "collaborator_failure"
)

// Warning thresholds on concurrent conditions.
const (
	maxHighAnomalies = 3
	maxStrengthening = 2
)

// Severity orders warnings for sinks that filter.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is a typed threshold alert emitted at the end of a scan.
type Warning struct {
	Type     WarningType `json:"type"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Value    float64     `json:"value"`
	At       time.Time   `json:"at"`
}
