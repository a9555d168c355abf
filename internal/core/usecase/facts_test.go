package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func TestFormatDollars(t *testing.T) {
	cases := map[int64]string{
		0:       "$0",
		135:     "$135",
		4250:    "$4,250",
		425000:  "$425,000",
		1250000: "$1,250,000",
	}
	for in, want := range cases {
		if got := formatDollars(in); got != want {
			t.Fatalf("formatDollars(%d) = %q, want %q", in, got, want)
		}
	}
	if got := formatMoney(55.5); got != "$55.50" {
		t.Fatalf("formatMoney(55.5) = %q", got)
	}
}

func TestShapeFactPricing(t *testing.T) {
	p := flagstaffRanch()
	p.PriceFormatted = ""
	p.Financing = &domain.Financing{OwnerFinancing: domain.Known(true), DownPayment: "10%"}

	answer := shapeFact(&p, "AZ-FLAG-001", domain.FactPricing, time.Unix(0, 0))
	if answer.Pricing == nil || !answer.OnRecord {
		t.Fatalf("expected pricing section, got %+v", answer)
	}
	for _, want := range []string{"listed at $425,000", "Owner financing may be available.", "Down payment: 10%."} {
		if !strings.Contains(answer.Text, want) {
			t.Fatalf("expected %q in %q", want, answer.Text)
		}
	}
}

func TestShapeFactGeneralSummary(t *testing.T) {
	p := flagstaffRanch()
	answer := shapeFact(&p, "Flagstaff Ranch", domain.FactGeneral, time.Unix(0, 0))

	want := "Flagstaff Ranch: $425,000, 2.5 acres in Flagstaff. Cabin with 3 bedrooms and 2 bathrooms. Highlights: Pine views, Paved access. Would you like details on water rights, solar lease, or HOA?"
	if answer.Text != want {
		t.Fatalf("unexpected summary:\n got %q\nwant %q", answer.Text, want)
	}
	if answer.WaterRights != nil || answer.General == nil {
		t.Fatalf("expected only the general section to be set")
	}
}

func TestShapeFactUnknownFieldsAreOmittedFromText(t *testing.T) {
	p := domain.Property{
		ID:         "AZ-SED-002",
		Name:       "Sedona Lot",
		SolarLease: &domain.SolarLease{Provider: "Tesla"},
		HOA:        &domain.HOA{Covers: "road maintenance"},
	}

	solar := shapeFact(&p, p.ID, domain.FactSolarLease, time.Unix(0, 0))
	if solar.Text != "Sedona Lot has a solar lease with Tesla." {
		t.Fatalf("unexpected solar text: %q", solar.Text)
	}
	hoa := shapeFact(&p, p.ID, domain.FactHOA, time.Unix(0, 0))
	if hoa.Text != "Sedona Lot is part of an HOA. Covers: road maintenance." {
		t.Fatalf("unexpected hoa text: %q", hoa.Text)
	}
	pricing := shapeFact(&p, p.ID, domain.FactPricing, time.Unix(0, 0))
	if pricing.OnRecord || !strings.Contains(pricing.Text, "price on request") {
		t.Fatalf("unexpected pricing: %+v", pricing)
	}
}

func TestShapeFactWaterRightsDefaults(t *testing.T) {
	p := domain.Property{Name: "Prescott Acreage", WaterRights: &domain.WaterRights{AcreFeet: domain.Known(3.0), Certificate: "55-123456"}}
	answer := shapeFact(&p, "prescott acreage", domain.FactWaterRights, time.Unix(0, 0))

	want := "For Prescott Acreage: Water source is municipal. The allocation is 3 acre-feet per year. ADWR certificate 55-123456."
	if answer.Text != want {
		t.Fatalf("unexpected text:\n got %q\nwant %q", answer.Text, want)
	}

	p.WaterRights = nil
	missing := shapeFact(&p, "prescott acreage", domain.FactWaterRights, time.Unix(0, 0))
	if missing.OnRecord || !strings.Contains(missing.Text, "doesn't have specific water rights information") {
		t.Fatalf("unexpected missing-section answer: %+v", missing)
	}
}

func TestShapeFactPropertyTax(t *testing.T) {
	p := flagstaffRanch()
	p.TaxInfo = &domain.TaxInfo{
		AnnualAmount:  domain.Known(2140.0),
		TaxYear:       domain.Known(2025),
		AssessedValue: domain.Known(int64(310000)),
		ParcelNumber:  "107-22-014",
	}

	answer := shapeFact(&p, "AZ-FLAG-001", domain.ParseFactType("taxes"), time.Unix(0, 0))
	if answer.FactType != domain.FactPropertyTax || answer.Tax == nil || !answer.OnRecord {
		t.Fatalf("expected tax section, got %+v", answer)
	}
	want := "Annual property tax for Flagstaff Ranch is $2,140 for 2025. The assessed value is $310,000. Parcel number 107-22-014. Property tax information should be verified with the county assessor."
	if answer.Text != want {
		t.Fatalf("unexpected tax text:\n got %q\nwant %q", answer.Text, want)
	}

	p.TaxInfo = nil
	answer = shapeFact(&p, "AZ-FLAG-001", domain.FactPropertyTax, time.Unix(0, 0))
	if answer.OnRecord || !strings.Contains(answer.Text, "verified with the county assessor") {
		t.Fatalf("expected assessor disclosure, got %+v", answer)
	}
}
