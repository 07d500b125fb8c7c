// Package geo maps the country reported with an SOS to the broader region
// used to select the on-duty agent roster.
package geo

import "strings"

// RegionUnknown is returned for countries missing from the table. An SOS
// from an unknown country still persists; it just matches no roster.
const RegionUnknown = "Unknown"

var countryRegion = map[string]string{
	// Asia
	"indonesia":            "Asia",
	"japan":                "Asia",
	"china":                "Asia",
	"south korea":          "Asia",
	"india":                "Asia",
	"malaysia":             "Asia",
	"singapore":            "Asia",
	"thailand":             "Asia",
	"vietnam":              "Asia",
	"philippines":          "Asia",
	"taiwan":               "Asia",
	"hong kong":            "Asia",
	"saudi arabia":         "Asia",
	"united arab emirates": "Asia",
	"qatar":                "Asia",
	"turkey":               "Asia",

	// Europe
	"united kingdom": "Europe",
	"germany":        "Europe",
	"france":         "Europe",
	"netherlands":    "Europe",
	"spain":          "Europe",
	"italy":          "Europe",
	"belgium":        "Europe",
	"switzerland":    "Europe",
	"sweden":         "Europe",
	"norway":         "Europe",
	"denmark":        "Europe",
	"poland":         "Europe",
	"russia":         "Europe",

	// Americas
	"united states": "America",
	"canada":        "America",
	"mexico":        "America",
	"brazil":        "America",
	"argentina":     "America",
	"chile":         "America",
	"peru":          "America",

	// Africa
	"egypt":        "Africa",
	"nigeria":      "Africa",
	"south africa": "Africa",
	"kenya":        "Africa",
	"morocco":      "Africa",

	// Oceania
	"australia":   "Australia",
	"new zealand": "Australia",
}

// Resolve maps a country name to its region label. Matching is
// case-insensitive and tolerant of surrounding whitespace.
func Resolve(country string) string {
	if region, ok := countryRegion[strings.ToLower(strings.TrimSpace(country))]; ok {
		return region
	}
	return RegionUnknown
}
