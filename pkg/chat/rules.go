package chat

import (
	"fmt"
	"strings"

	"github.com/chriscow/listing-voice-go/pkg/listing"
)

// Category names a keyword topic.
type Category string

const (
	CategoryPrice        Category = "price"
	CategoryBedrooms     Category = "bedrooms"
	CategoryNeighborhood Category = "neighborhood"
	CategorySchools      Category = "schools"
	CategoryInvestment   Category = "investment"
	CategoryPhotos       Category = "photos"
	CategoryShowing      Category = "showing"
	CategoryAgent        Category = "agent"
	CategoryFinancing    Category = "financing"
	CategoryBuyingIntent Category = "buying_intent"
	CategoryOutdoor      Category = "outdoor"
	CategoryParking      Category = "parking"
	CategoryKitchen      Category = "kitchen"
	CategoryGeneric      Category = "generic"
	CategoryHosted       Category = "hosted"
)

// Score deltas attached to keyword replies that signal buying interest.
const (
	ShowingDelta      = 15
	BuyingIntentDelta = 20
	AgentDelta        = 10
	FinancingDelta    = 10
)

// Rule maps keywords to a reply. A keyword matches a whole word or its
// plural; a keyword ending in "*" matches any word it begins. Phrases match
// the same way at their first and last word.
type Rule struct {
	Category Category
	Keywords []string
	Respond  func(p listing.Property) Reply
}

// Matches reports whether the lower-cased message contains any keyword.
func (r Rule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

func containsWord(s, kw string) bool {
	stem := strings.HasSuffix(kw, "*")
	kw = strings.TrimSuffix(kw, "*")
	if kw == "" {
		return false
	}
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if (start == 0 || !isWordByte(s[start-1])) && (stem || endsWord(s[end:])) {
			return true
		}
		i = start + 1
	}
	return false
}

// endsWord reports whether rest, the text after a keyword, starts at a word
// boundary once an optional plural suffix is skipped.
func endsWord(rest string) bool {
	for _, suffix := range []string{"", "s", "es"} {
		if !strings.HasPrefix(rest, suffix) {
			continue
		}
		if len(rest) == len(suffix) || !isWordByte(rest[len(suffix)]) {
			return true
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80
}

// DefaultRules returns the keyword rules in precedence order. The first
// matching rule wins, so a question about price and schools is a price
// question.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryPrice,
			Keywords: []string{"price*", "cost", "how much", "expensive", "afford*", "asking price"},
			Respond:  priceReply,
		},
		{
			Category: CategoryBedrooms,
			Keywords: []string{"bedroom", "bed", "room", "bath*", "square feet", "sq ft", "size"},
			Respond:  bedroomsReply,
		},
		{
			Category: CategoryNeighborhood,
			Keywords: []string{"neighborhood", "neighbourhood", "area", "location", "nearby", "communit*", "walkable"},
			Respond:  neighborhoodReply,
		},
		{
			Category: CategorySchools,
			Keywords: []string{"school", "education", "district"},
			Respond:  schoolsReply,
		},
		{
			Category: CategoryInvestment,
			Keywords: []string{"invest*", "appreciat*", "resale", "value", "roi", "rental"},
			Respond:  investmentReply,
		},
		{
			Category: CategoryPhotos,
			Keywords: []string{"photo*", "picture", "image", "virtual tour", "video"},
			Respond:  photosReply,
		},
		{
			Category: CategoryShowing,
			Keywords: []string{"showing", "visit*", "see it", "see the", "tour", "appointment", "schedul*", "open house"},
			Respond:  showingReply,
		},
		{
			Category: CategoryAgent,
			Keywords: []string{"agent", "realtor", "contact*", "call", "speak to", "talk to"},
			Respond:  agentReply,
		},
		{
			Category: CategoryFinancing,
			Keywords: []string{"financ*", "mortgage", "loan", "down payment", "interest rate", "pre-approv*", "preapprov*"},
			Respond:  financingReply,
		},
		{
			Category: CategoryBuyingIntent,
			Keywords: []string{"buy*", "offer*", "purchas*", "interested", "ready to"},
			Respond:  buyingIntentReply,
		},
		{
			Category: CategoryOutdoor,
			Keywords: []string{"yard", "garden*", "outdoor*", "patio", "deck", "pool", "backyard"},
			Respond:  outdoorReply,
		},
		{
			Category: CategoryParking,
			Keywords: []string{"parking", "garage", "driveway", "car"},
			Respond:  parkingReply,
		},
		{
			Category: CategoryKitchen,
			Keywords: []string{"kitchen", "appliance", "cook*", "countertop"},
			Respond:  kitchenReply,
		},
	}
}

// GenericPrompts are used when no rule matches. {property} is replaced with
// the property name.
var GenericPrompts = []string{
	"Great question! I can tell you about the price, bedrooms, neighborhood, schools, or set up a showing. What would you like to know?",
	"I'd be happy to help. Would you like details on the layout, the neighborhood, or financing options for {property}?",
	"Thanks for asking! Many buyers want to know about schools, parking, and outdoor space. Anything specific about {property} I can answer?",
	"I'm here to help you learn about {property}. Would you like to schedule a showing or hear more about its features?",
}

func priceReply(p listing.Property) Reply {
	text := fmt.Sprintf("%s is listed at %s.", p.Name(), orUnknown(p.FormattedPrice(), "a price the agent can confirm"))
	if p.SquareFeet > 0 && p.Price > 0 {
		text += fmt.Sprintf(" That works out to about $%d per square foot.", p.Price/int64(p.SquareFeet))
	}
	text += " Would you like to talk about financing options?"
	return Reply{Text: text, Category: CategoryPrice}
}

func bedroomsReply(p listing.Property) Reply {
	if p.Bedrooms == 0 {
		return Reply{Text: fmt.Sprintf("Ask %s for the full floor plan of %s.", p.Agent(), p.Name()), Category: CategoryBedrooms}
	}
	text := fmt.Sprintf("This home has %d bedrooms and %s bathrooms", p.Bedrooms, p.FormattedBathrooms())
	if p.SquareFeet > 0 {
		text += fmt.Sprintf(" across %d square feet", p.SquareFeet)
	}
	return Reply{Text: text + ". Would you like to see it in person?", Category: CategoryBedrooms}
}

func neighborhoodReply(p listing.Property) Reply {
	where := orUnknown(p.Neighborhood, "its neighborhood")
	return Reply{
		Text:     fmt.Sprintf("%s is in %s, with shopping, dining, and parks close by. Is there anything nearby you need to be close to?", p.Name(), where),
		Category: CategoryNeighborhood,
	}
}

func schoolsReply(p listing.Property) Reply {
	text := "The home is served by the local public school district."
	if p.SchoolRating != "" {
		text = fmt.Sprintf("Nearby schools are rated %s.", p.SchoolRating)
	}
	return Reply{Text: text + " I'd recommend confirming school boundaries with the district.", Category: CategorySchools}
}

func investmentReply(p listing.Property) Reply {
	text := "Homes in this area have held their value well."
	if p.YearBuilt > 0 {
		text = fmt.Sprintf("Built in %d, this home sits in an area where values have held up well.", p.YearBuilt)
	}
	return Reply{Text: text + fmt.Sprintf(" Ask %s for recent comparable sales.", p.Agent()), Category: CategoryInvestment}
}

func photosReply(p listing.Property) Reply {
	return Reply{
		Text:     fmt.Sprintf("You can browse all the photos of %s in the gallery above. Would you like to schedule a showing to see it in person?", p.Name()),
		Category: CategoryPhotos,
	}
}

func showingReply(p listing.Property) Reply {
	return Reply{
		Text:               fmt.Sprintf("I'd be happy to set up a showing of %s. Pick a time that works for you and %s will confirm.", p.Name(), p.Agent()),
		ScoreDelta:         delta(ShowingDelta),
		TriggerAppointment: true,
		Category:           CategoryShowing,
	}
}

func agentReply(p listing.Property) Reply {
	text := fmt.Sprintf("The listing agent for %s would be glad to help.", p.Name())
	if p.AgentName != "" {
		text = fmt.Sprintf("%s is the listing agent for %s.", p.AgentName, p.Name())
	}
	if p.AgentPhone != "" {
		text += fmt.Sprintf(" You can reach them at %s.", p.AgentPhone)
	} else {
		text += " Leave your contact details and they'll reach out."
	}
	return Reply{Text: text, ScoreDelta: delta(AgentDelta), Category: CategoryAgent}
}

func financingReply(p listing.Property) Reply {
	return Reply{
		Text:       "Getting pre-approved is the best first step. Most buyers put 10 to 20 percent down, and some loan programs allow as little as 3.5 percent. Would you like a lender recommendation?",
		ScoreDelta: delta(FinancingDelta),
		Category:   CategoryFinancing,
	}
}

func buyingIntentReply(p listing.Property) Reply {
	return Reply{
		Text:               fmt.Sprintf("That's great to hear! The next step is to see %s in person. Shall I schedule a showing with %s?", p.Name(), p.Agent()),
		ScoreDelta:         delta(BuyingIntentDelta),
		TriggerAppointment: true,
		Category:           CategoryBuyingIntent,
	}
}

func outdoorReply(p listing.Property) Reply {
	if f, ok := p.HasFeature("yard", "garden", "patio", "deck", "pool"); ok {
		return Reply{Text: fmt.Sprintf("Yes! The home features %s. It's great for relaxing or entertaining.", strings.ToLower(f)), Category: CategoryOutdoor}
	}
	text := "The outdoor space is a real highlight."
	if p.LotSize != "" {
		text = fmt.Sprintf("The home sits on a %s lot.", p.LotSize)
	}
	return Reply{Text: text + " Would you like to see it in person?", Category: CategoryOutdoor}
}

func parkingReply(p listing.Property) Reply {
	if p.Parking != "" {
		return Reply{Text: fmt.Sprintf("Parking: %s.", p.Parking), Category: CategoryParking}
	}
	if f, ok := p.HasFeature("garage", "parking", "driveway"); ok {
		return Reply{Text: fmt.Sprintf("The home has %s.", strings.ToLower(f)), Category: CategoryParking}
	}
	return Reply{Text: fmt.Sprintf("Ask %s to confirm the parking arrangements.", p.Agent()), Category: CategoryParking}
}

func kitchenReply(p listing.Property) Reply {
	if f, ok := p.HasFeature("kitchen", "appliance", "countertop"); ok {
		return Reply{Text: fmt.Sprintf("The kitchen is a standout: %s.", strings.ToLower(f)), Category: CategoryKitchen}
	}
	return Reply{Text: "The kitchen has been well kept and opens to the living area. Would you like to see it in person?", Category: CategoryKitchen}
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
