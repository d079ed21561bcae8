package classify

// Tags route a classified message to a handling queue. The tag is a pure
// function of the category; a tag supplied by the model is ignored.
const (
	TagCS        = "cs"
	TagBot       = "bot"
	TagEscalated = "escalated"
)

// Categories the model may emit. Anything outside this set collapses to
// CategoryOthers.
const (
	CategoryKYC           = "kyc"
	CategoryAppRelated    = "app_related"
	CategoryPayment       = "payment"
	CategoryOthers        = "others"
	CategoryPriceInquiry  = "price_inquiry"
	CategoryHubInquiry    = "hub_inquiry"
	CategoryOfferInquiry  = "offer_inquiry"
	CategoryBikeInquiry   = "bike_inquiry"
	CategoryBikeNotMoving = "bike_not_moving"
	CategoryBattery       = "battery_problem"
)

var categoryTags = map[string]string{
	CategoryKYC:           TagCS,
	CategoryAppRelated:    TagCS,
	CategoryPayment:       TagCS,
	CategoryOthers:        TagCS,
	CategoryPriceInquiry:  TagBot,
	CategoryHubInquiry:    TagBot,
	CategoryOfferInquiry:  TagBot,
	CategoryBikeInquiry:   TagBot,
	CategoryBikeNotMoving: TagEscalated,
	CategoryBattery:       TagEscalated,
}

// NormalizeCategory collapses anything outside the known set to others.
func NormalizeCategory(category string) string {
	if _, ok := categoryTags[category]; ok {
		return category
	}
	return CategoryOthers
}

// TagFor derives the routing tag from a category. Unknown categories take
// the others → cs path.
func TagFor(category string) string {
	if tag, ok := categoryTags[category]; ok {
		return tag
	}
	return TagCS
}

// Languages the model may emit. Anything else becomes unknown.
var knownLanguages = map[string]bool{
	"en": true,
	"hi": true,
	"bn": true,
	"te": true,
	"ta": true,
	"mr": true,
}

// NormalizeLanguage collapses unexpected language codes to unknown.
func NormalizeLanguage(lang string) string {
	if knownLanguages[lang] {
		return lang
	}
	return "unknown"
}
