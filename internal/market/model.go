package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quality grades a price observation. An empty Quality on an alert means
// the alert matches observations of any quality.
type Quality string

const (
	QualityPremium  Quality = "PREMIUM"
	QualityStandard Quality = "STANDARD"
	QualityEconomy  Quality = "ECONOMY"
	QualityAny      Quality = ""
)

// ObservationStatus tracks the moderation lifecycle of an observation.
// Only approved observations feed alert evaluation.
type ObservationStatus string

const (
	ObservationPending  ObservationStatus = "PENDING"
	ObservationApproved ObservationStatus = "APPROVED"
	ObservationRejected ObservationStatus = "REJECTED"
	ObservationExpired  ObservationStatus = "EXPIRED"
)

// AlertType selects the direction policy applied to a price movement.
type AlertType string

const (
	AlertPriceIncrease      AlertType = "PRICE_INCREASE"
	AlertPriceDecrease      AlertType = "PRICE_DECREASE"
	AlertPriceVolatility    AlertType = "PRICE_VOLATILITY"
	AlertRegionalDifference AlertType = "REGIONAL_DIFFERENCE"
	AlertQualityOpportunity AlertType = "QUALITY_OPPORTUNITY"
	AlertSeasonalTrend      AlertType = "SEASONAL_TREND"
)

// Frequency bounds how often one alert may re-trigger.
type Frequency string

const (
	FrequencyImmediate Frequency = "IMMEDIATE"
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
)

// NotificationStatus tracks the read lifecycle of a durable notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "PENDING"
	NotificationRead      NotificationStatus = "READ"
	NotificationDismissed NotificationStatus = "DISMISSED"
)

// Observation is one moderated price data point for a crop at a location.
type Observation struct {
	ID            uuid.UUID
	CropType      string
	PricePerUnit  decimal.Decimal
	Unit          string
	Quality       Quality
	Location      string
	Source        string
	EffectiveDate time.Time
	Status        ObservationStatus
	CreatedAt     time.Time
}

// Alert is a user-owned subscription describing when to be notified of a
// price movement. Threshold is a percentage in (0, 100].
type Alert struct {
	ID              uuid.UUID
	OwnerID         string
	CropType        string
	Location        string
	Quality         Quality
	Type            AlertType
	Frequency       Frequency
	Threshold       decimal.Decimal
	IsActive        bool
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
}

// Notification is the durable record created when an alert fires. It is
// the source of truth for clients that missed the realtime push.
type Notification struct {
	ID             uuid.UUID
	AlertID        uuid.UUID
	OwnerID        string
	Title          string
	Message        string
	AlertType      AlertType
	CropType       string
	Location       string
	OldPrice       decimal.Decimal
	NewPrice       decimal.Decimal
	PriceChangePct decimal.Decimal
	Unit           string
	ObservedAt     time.Time
	Status         NotificationStatus
	CreatedAt      time.Time
	ReadAt         *time.Time
	DismissedAt    *time.Time
}

var alertTypeLabels = map[AlertType]string{
	AlertPriceIncrease:      "Price Increase",
	AlertPriceDecrease:      "Price Decrease",
	AlertPriceVolatility:    "Price Volatility",
	AlertRegionalDifference: "Regional Difference",
	AlertQualityOpportunity: "Quality Opportunity",
	AlertSeasonalTrend:      "Seasonal Trend",
}

// Label returns the human-readable form used in notification titles.
func (t AlertType) Label() string {
	if label, ok := alertTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	_, ok := alertTypeLabels[t]
	return ok
}

// ParseAlertType normalises and validates an alert type string.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown alert type %q", s)
	}
	return t, nil
}

// Gap returns the minimum elapsed time before an alert with this
// frequency may re-trigger. IMMEDIATE alerts are always eligible.
func (f Frequency) Gap() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// ParseFrequency normalises and validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

// ParseQuality normalises and validates a quality string. An empty input
// is accepted and means "any quality".
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToUpper(strings.TrimSpace(s)))
	switch q {
	case QualityAny, QualityPremium, QualityStandard, QualityEconomy:
		return q, nil
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// ParseNotificationStatus validates a notification status filter value.
func ParseNotificationStatus(s string) (NotificationStatus, error) {
	st := NotificationStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case NotificationPending, NotificationRead, NotificationDismissed:
		return st, nil
	}
	return "", fmt.Errorf("unknown notification status %q", s)
}

// PercentChange computes (latest - previous) / previous * 100. The second
// return value is false when previous is zero, which callers must treat
// as insufficient data rather than an error.
func PercentChange(previous, latest decimal.Decimal) (decimal.Decimal, bool) {
	if previous.IsZero() {
		return decimal.Decimal{}, false
	}
	change := latest.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
	return change, true
}

// Validate performs sanity checks on a new alert subscription.
func (a Alert) Validate() error {
	if a.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if strings.TrimSpace(a.CropType) == "" {
		return fmt.Errorf("crop type is required")
	}
	if strings.TrimSpace(a.Location) == "" {
		return fmt.Errorf("location is required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown alert type %q", a.Type)
	}
	if !a.Frequency.Valid() {
		return fmt.Errorf("unknown frequency %q", a.Frequency)
	}
	if a.Threshold.LessThanOrEqual(decimal.Zero) || a.Threshold.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("threshold must be in (0, 100], got %s", a.Threshold)
	}
	return nil
}

// Validate performs sanity checks on a new observation.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.CropType) == "" {
		return fmt.Errorf("crop type is required")
	}
	if strings.TrimSpace(o.Location) == "" {
		return fmt.Errorf("location is required")
	}
	if o.PricePerUnit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price per unit must be positive, got %s", o.PricePerUnit)
	}
	if o.Quality == QualityAny {
		return fmt.Errorf("observation quality is required")
	}
	return nil
}
