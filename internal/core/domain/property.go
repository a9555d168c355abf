package domain

import (
	"strings"
	"time"
)

type FactType string

const (
	FactWaterRights FactType = "water_rights"
	FactSolarLease  FactType = "solar_lease"
	FactHOA         FactType = "hoa"
	FactPricing     FactType = "pricing"
	FactPropertyTax FactType = "property_tax"
	FactGeneral     FactType = "general"
)

// ParseFactType maps the query types used by the voice platform onto the
// known fact types. Unrecognized values fall back to FactGeneral.
func ParseFactType(raw string) FactType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "water_rights", "water", "water_source":
		return FactWaterRights
	case "solar_lease", "solar":
		return FactSolarLease
	case "hoa", "hoa_rules", "hoa_fees":
		return FactHOA
	case "pricing", "price", "financing":
		return FactPricing
	case "property_tax", "tax", "taxes", "tax_info":
		return FactPropertyTax
	default:
		return FactGeneral
	}
}

type Location struct {
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	County   string `json:"county,omitempty"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Distance string `json:"distance,omitempty"`
}

type Features struct {
	Structure string       `json:"structure,omitempty"`
	Bedrooms  Field[int]   `json:"bedrooms"`
	Bathrooms Field[int]   `json:"bathrooms"`
	Sqft      Field[int64] `json:"sqft"`
	Water     string       `json:"water,omitempty"`
	Power     string       `json:"power,omitempty"`
	Access    string       `json:"access,omitempty"`
}

type WaterRights struct {
	Type        string         `json:"type,omitempty"`
	Details     string         `json:"details,omitempty"`
	AcreFeet    Field[float64] `json:"acre_feet"`
	Certificate string         `json:"adwr_certificate,omitempty"`
}

type SolarLease struct {
	Provider       string         `json:"provider,omitempty"`
	MonthlyCost    Field[float64] `json:"monthly_cost"`
	YearsRemaining Field[int]     `json:"years_remaining"`
	Transferable   Field[bool]    `json:"transferable"`
}

type HOA struct {
	Name       string         `json:"name,omitempty"`
	MonthlyFee Field[float64] `json:"monthly_fee"`
	Covers     string         `json:"covers,omitempty"`
}

// TaxInfo is the county tax record for a listing.
type TaxInfo struct {
	AnnualAmount  Field[float64] `json:"annual_amount"`
	TaxYear       Field[int]     `json:"tax_year"`
	AssessedValue Field[int64]   `json:"assessed_value"`
	ParcelNumber  string         `json:"parcel_number,omitempty"`
	County        string         `json:"county,omitempty"`
}

type Financing struct {
	OwnerFinancing Field[bool] `json:"owner_financing"`
	DownPayment    string      `json:"down_payment,omitempty"`
	InterestRate   string      `json:"interest_rate,omitempty"`
	Term           string      `json:"term,omitempty"`
}

// Property is the authoritative listing record. Optional sections are nil
// when the source has nothing on file.
type Property struct {
	ID             string         `json:"property_id"`
	Name           string         `json:"name"`
	Price          Field[int64]   `json:"price"`
	PriceFormatted string         `json:"price_formatted,omitempty"`
	Acreage        Field[float64] `json:"acreage"`
	Location       Location       `json:"location"`
	Features       Features       `json:"features"`
	Highlights     []string       `json:"highlights,omitempty"`
	WaterRights    *WaterRights   `json:"water_rights,omitempty"`
	SolarLease     *SolarLease    `json:"solar_lease,omitempty"`
	HOA            *HOA           `json:"hoa,omitempty"`
	Financing      *Financing     `json:"financing,omitempty"`
	TaxInfo        *TaxInfo       `json:"tax_info,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}

type PricingFact struct {
	Price          Field[int64] `json:"price"`
	PriceFormatted string       `json:"price_formatted,omitempty"`
	Financing      *Financing   `json:"financing,omitempty"`
}

type GeneralFact struct {
	Acreage    Field[float64] `json:"acreage"`
	Location   Location       `json:"location"`
	Features   Features       `json:"features"`
	Highlights []string       `json:"highlights,omitempty"`
	Price      Field[int64]   `json:"price"`
}

// FactAnswer is the shaped, speakable answer for one fact type. At most one
// of the typed sections is set, matching FactType.
type FactAnswer struct {
	SubjectID    string   `json:"subject_id"`
	PropertyID   string   `json:"property_id,omitempty"`
	PropertyName string   `json:"property_name,omitempty"`
	FactType     FactType `json:"fact_type"`
	Found        bool     `json:"found"`
	OnRecord     bool     `json:"on_record"`
	Text         string   `json:"text"`

	WaterRights *WaterRights `json:"water_rights,omitempty"`
	SolarLease  *SolarLease  `json:"solar_lease,omitempty"`
	HOA         *HOA         `json:"hoa,omitempty"`
	Pricing     *PricingFact `json:"pricing,omitempty"`
	Tax         *TaxInfo     `json:"tax,omitempty"`
	General     *GeneralFact `json:"general,omitempty"`

	RetrievedAt time.Time `json:"retrieved_at"`
}

type PropertyFactRequest struct {
	SubjectID string `json:"subject_id"`
	FactType  string `json:"fact_type,omitempty"`
}

type PropertyFactResponse struct {
	Data        FactAnswer `json:"data"`
	CacheHit    bool       `json:"cache_hit"`
	CacheTier   string     `json:"cache_tier,omitempty"`
	LatencyMS   float64    `json:"latency_ms"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}
