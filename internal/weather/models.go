package weather

import (
	"strings"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionClear   Condition = "CLEAR"
	ConditionCloudy  Condition = "CLOUDY"
	ConditionRainy   Condition = "RAINY"
	ConditionDrizzle Condition = "DRIZZLE"
	ConditionFoggy   Condition = "FOGGY"
	ConditionSnowy   Condition = "SNOWY"
	ConditionThunder Condition = "THUNDER"
	ConditionStorm   Condition = "STORM"
	ConditionIcy     Condition = "ICY"
	ConditionOther   Condition = "OTHER"
	ConditionUnknown Condition = "UNKNOWN"
)

// LocationSource tags how the coordinates of a record were derived.
type LocationSource string

const (
	LocationGPS     LocationSource = "GPS"
	LocationNetwork LocationSource = "NETWORK"
	LocationOther   LocationSource = "OTHER"
)

// ParseLocationSource maps a positioning provider name onto a LocationSource.
// Anything not recognized is OTHER.
func ParseLocationSource(s string) LocationSource {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LocationGPS):
		return LocationGPS
	case string(LocationNetwork):
		return LocationNetwork
	default:
		return LocationOther
	}
}

// Rank orders sources by preference; lower is better.
func (s LocationSource) Rank() int {
	switch s {
	case LocationGPS:
		return 0
	case LocationNetwork:
		return 1
	default:
		return 2
	}
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Fix is a single positioning reading attributed to a source.
// Time is zero when the source does not report it.
type Fix struct {
	Coordinates
	Source LocationSource
	Time   time.Time
}

// Result is a single provider's normalized reading. Measurements the
// provider did not report are nil.
type Result struct {
	ProviderName string

	ObservedAt time.Time
	Sunrise    *time.Time
	Sunset     *time.Time

	Temperature              *float64 // degrees Celsius
	Pressure                 *float64 // hPa
	Humidity                 *float64 // percent
	Cloudiness               *float64 // percent
	PrecipitationAmount      *float64 // millimeter
	PrecipitationPeriodHours *float64
	Condition                Condition
}

// Record is the normalized weather view emitted to a Sink.
type Record struct {
	ObservedAt time.Time  `json:"observedAt"`
	QueriedAt  time.Time  `json:"queriedAt"`
	Sunrise    *time.Time `json:"sunrise"`
	Sunset     *time.Time `json:"sunset"`

	Temperature              *float64 `json:"temperature"`
	Pressure                 *float64 `json:"pressure"`
	Humidity                 *float64 `json:"humidity"`
	Cloudiness               *float64 `json:"cloudiness"`
	PrecipitationAmount      *float64 `json:"precipitation"`
	PrecipitationPeriodHours *float64 `json:"precipitationPeriod"`

	Condition      Condition      `json:"weatherCondition"`
	ProviderName   string         `json:"source"`
	LocationSource LocationSource `json:"locationSource"`
}

// NewRecord combines a provider result with query metadata. Pointer fields
// are copied so the record shares no memory with the result.
func NewRecord(r Result, queriedAt time.Time, source LocationSource) Record {
	if source == "" {
		source = LocationOther
	}
	condition := r.Condition
	if condition == "" {
		condition = ConditionUnknown
	}
	return Record{
		ObservedAt:               r.ObservedAt.UTC(),
		QueriedAt:                queriedAt.UTC(),
		Sunrise:                  copyTime(r.Sunrise),
		Sunset:                   copyTime(r.Sunset),
		Temperature:              copyFloat(r.Temperature),
		Pressure:                 copyFloat(r.Pressure),
		Humidity:                 copyFloat(r.Humidity),
		Cloudiness:               copyFloat(r.Cloudiness),
		PrecipitationAmount:      copyFloat(r.PrecipitationAmount),
		PrecipitationPeriodHours: copyFloat(r.PrecipitationPeriodHours),
		Condition:                condition,
		ProviderName:             r.ProviderName,
		LocationSource:           source,
	}
}

// ObservationKey identifies the project, participant and source a record
// belongs to.
type ObservationKey struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	SourceID  string `json:"sourceId"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to the UTC representation of t.
func Time(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}
