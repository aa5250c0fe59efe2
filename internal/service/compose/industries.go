package compose

import "strings"

// industryDescriptions is the fixed lookup behind the [industry] token.
// Unknown classifications fall back to the generic phrase.
var industryDescriptions = map[string]string{
	"technology":    "the technology space",
	"software":      "the software business",
	"healthcare":    "the healthcare field",
	"finance":       "the financial sector",
	"insurance":     "the insurance industry",
	"retail":        "the retail market",
	"ecommerce":     "the e-commerce world",
	"education":     "the education sector",
	"real estate":   "the real estate market",
	"construction":  "the construction trade",
	"manufacturing": "the manufacturing sector",
	"automotive":    "the automotive business",
	"hospitality":   "the hospitality industry",
	"restaurant":    "the restaurant business",
	"travel":        "the travel industry",
	"legal":         "the legal profession",
	"marketing":     "the marketing world",
	"consulting":    "the consulting field",
	"nonprofit":     "the nonprofit sector",
	"fitness":       "the fitness industry",
	"media":         "the media landscape",
}

const genericIndustry = "your industry"

func industryDescription(industry string) string {
	if d, ok := industryDescriptions[strings.ToLower(strings.TrimSpace(industry))]; ok {
		return d
	}
	return genericIndustry
}
