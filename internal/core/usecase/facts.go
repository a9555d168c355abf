package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// shapeFact builds the fact-type specific answer for a found property.
func shapeFact(p *domain.Property, subjectID string, fact domain.FactType, at time.Time) domain.FactAnswer {
	answer := domain.FactAnswer{
		SubjectID:    subjectID,
		PropertyID:   p.ID,
		PropertyName: p.Name,
		FactType:     fact,
		Found:        true,
		RetrievedAt:  at,
	}
	name := displayName(p)

	switch fact {
	case domain.FactWaterRights:
		answer.WaterRights = p.WaterRights
		answer.OnRecord = p.WaterRights != nil
		answer.Text = waterRightsText(name, p.WaterRights)
	case domain.FactSolarLease:
		answer.SolarLease = p.SolarLease
		answer.OnRecord = p.SolarLease != nil
		answer.Text = solarLeaseText(name, p.SolarLease)
	case domain.FactHOA:
		answer.HOA = p.HOA
		answer.OnRecord = p.HOA != nil
		answer.Text = hoaText(name, p.HOA)
	case domain.FactPricing:
		answer.Pricing = &domain.PricingFact{
			Price:          p.Price,
			PriceFormatted: p.PriceFormatted,
			Financing:      p.Financing,
		}
		answer.OnRecord = p.Price.Known || p.PriceFormatted != ""
		answer.Text = pricingText(name, p)
	case domain.FactPropertyTax:
		answer.Tax = p.TaxInfo
		answer.OnRecord = p.TaxInfo != nil
		answer.Text = taxText(name, p.TaxInfo)
	default:
		answer.FactType = domain.FactGeneral
		answer.General = &domain.GeneralFact{
			Acreage:    p.Acreage,
			Location:   p.Location,
			Features:   p.Features,
			Highlights: p.Highlights,
			Price:      p.Price,
		}
		answer.OnRecord = true
		answer.Text = summaryText(name, p)
	}
	return answer
}

func notFoundFact(subjectID string, fact domain.FactType, at time.Time) domain.FactAnswer {
	return domain.FactAnswer{
		SubjectID:   subjectID,
		FactType:    fact,
		Text:        fmt.Sprintf("I couldn't find a property matching %q. Could you double-check the property ID or name?", subjectID),
		RetrievedAt: at,
	}
}

func fallbackFact(subjectID string, fact domain.FactType, at time.Time) domain.FactAnswer {
	return domain.FactAnswer{
		SubjectID:   subjectID,
		FactType:    fact,
		Text:        domain.FallbackVerifyAnswer,
		RetrievedAt: at,
	}
}

func displayName(p *domain.Property) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if p.ID != "" {
		return "Property " + p.ID
	}
	return "This property"
}

func waterRightsText(name string, w *domain.WaterRights) string {
	if w == nil {
		return name + " doesn't have specific water rights information on file. I'll note this question for the agent."
	}
	source := w.Type
	if source == "" {
		source = "municipal"
	}
	parts := []string{fmt.Sprintf("For %s: Water source is %s.", name, source), sentence(w.Details)}
	if af, ok := w.AcreFeet.Get(); ok {
		parts = append(parts, fmt.Sprintf("The allocation is %s acre-feet per year.", formatNumber(af)))
	}
	if w.Certificate != "" {
		parts = append(parts, fmt.Sprintf("ADWR certificate %s.", w.Certificate))
	}
	return joinSentences(parts...)
}

func solarLeaseText(name string, s *domain.SolarLease) string {
	if s == nil {
		return name + " does not have a solar panel lease on record."
	}
	provider := s.Provider
	if provider == "" {
		provider = "an unknown provider"
	}
	parts := []string{fmt.Sprintf("%s has a solar lease with %s.", name, provider)}
	if cost, ok := s.MonthlyCost.Get(); ok {
		parts = append(parts, formatMoney(cost)+"/month.")
	}
	if years, ok := s.YearsRemaining.Get(); ok {
		parts = append(parts, fmt.Sprintf("%d years remaining.", years))
	}
	if transferable, ok := s.Transferable.Get(); ok {
		if transferable {
			parts = append(parts, "It is transferable to the new owner.")
		} else {
			parts = append(parts, "It is not transferable to the new owner.")
		}
	}
	return joinSentences(parts...)
}

func hoaText(name string, h *domain.HOA) string {
	if h == nil {
		return name + " is not part of an HOA, or there are no HOA fees on record."
	}
	parts := make([]string, 0, 3)
	if fee, ok := h.MonthlyFee.Get(); ok {
		parts = append(parts, fmt.Sprintf("%s has HOA fees of %s/month.", name, formatMoney(fee)))
	} else {
		parts = append(parts, name+" is part of an HOA.")
	}
	if h.Name != "" {
		parts = append(parts, fmt.Sprintf("The association is %s.", h.Name))
	}
	if h.Covers != "" {
		parts = append(parts, "Covers: "+sentence(h.Covers))
	}
	return joinSentences(parts...)
}

func pricingText(name string, p *domain.Property) string {
	parts := []string{fmt.Sprintf("%s is listed at %s.", name, priceText(p))}
	if f := p.Financing; f != nil && f.OwnerFinancing.Or(false) {
		parts = append(parts, "Owner financing may be available.")
		if f.DownPayment != "" {
			parts = append(parts, fmt.Sprintf("Down payment: %s.", f.DownPayment))
		}
	}
	parts = append(parts, "For specific pricing negotiations, I'll connect you with the licensed agent.")
	return joinSentences(parts...)
}

func taxText(name string, t *domain.TaxInfo) string {
	const verify = "Property tax information should be verified with the county assessor."
	if t == nil {
		return name + " doesn't have property tax information on file. " + verify
	}
	parts := make([]string, 0, 4)
	if amount, ok := t.AnnualAmount.Get(); ok {
		head := fmt.Sprintf("Annual property tax for %s is %s", name, formatMoney(amount))
		if year, ok := t.TaxYear.Get(); ok {
			head += fmt.Sprintf(" for %d", year)
		}
		parts = append(parts, head+".")
	} else {
		parts = append(parts, fmt.Sprintf("%s has a tax record but no annual amount on file.", name))
	}
	if assessed, ok := t.AssessedValue.Get(); ok {
		parts = append(parts, fmt.Sprintf("The assessed value is %s.", formatDollars(assessed)))
	}
	if t.ParcelNumber != "" {
		parts = append(parts, fmt.Sprintf("Parcel number %s.", t.ParcelNumber))
	}
	parts = append(parts, verify)
	return joinSentences(parts...)
}

func summaryText(name string, p *domain.Property) string {
	head := name + ": " + priceText(p)
	if acres, ok := p.Acreage.Get(); ok {
		head += ", " + formatNumber(acres) + " acres"
	}
	if p.Location.City != "" {
		head += " in " + p.Location.City
	}
	parts := []string{head + "."}

	f := p.Features
	var layout []string
	if beds, ok := f.Bedrooms.Get(); ok {
		layout = append(layout, fmt.Sprintf("%d bedrooms", beds))
	}
	if baths, ok := f.Bathrooms.Get(); ok {
		layout = append(layout, fmt.Sprintf("%d bathrooms", baths))
	}
	switch {
	case f.Structure != "" && len(layout) > 0:
		parts = append(parts, fmt.Sprintf("%s with %s.", f.Structure, strings.Join(layout, " and ")))
	case f.Structure != "":
		parts = append(parts, sentence(f.Structure))
	case len(layout) > 0:
		parts = append(parts, sentence(strings.Join(layout, " and ")))
	}
	if len(p.Highlights) > 0 {
		parts = append(parts, "Highlights: "+sentence(strings.Join(p.Highlights, ", ")))
	}
	parts = append(parts, "Would you like details on water rights, solar lease, or HOA?")
	return joinSentences(parts...)
}

func priceText(p *domain.Property) string {
	if p.PriceFormatted != "" {
		return p.PriceFormatted
	}
	if price, ok := p.Price.Get(); ok {
		return formatDollars(price)
	}
	return "price on request"
}

// formatDollars renders whole dollars with thousands separators, e.g. $425,000.
func formatDollars(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String()
}

func formatMoney(v float64) string {
	if v == float64(int64(v)) {
		return formatDollars(int64(v))
	}
	return fmt.Sprintf("$%.2f", v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

func joinSentences(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
