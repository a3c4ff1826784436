// Package listing holds the property data that the chat and voice assistants
// answer questions about.
package listing

import (
	"fmt"
	"strconv"
	"strings"
)

// Property is the subset of a listing the assistants talk about.
type Property struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Address      string   `json:"address"`
	Neighborhood string   `json:"neighborhood"`
	Price        int64    `json:"price"` // whole dollars
	Bedrooms     int      `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	SquareFeet   int      `json:"squareFeet"`
	YearBuilt    int      `json:"yearBuilt"`
	LotSize      string   `json:"lotSize"`
	Parking      string   `json:"parking"`
	SchoolRating string   `json:"schoolRating"`
	Features     []string `json:"features"`
	AgentName    string   `json:"agentName"`
	AgentPhone   string   `json:"agentPhone"`
	AgentEmail   string   `json:"agentEmail"`
}

// Name returns the title, falling back to the address.
func (p Property) Name() string {
	switch {
	case p.Title != "":
		return p.Title
	case p.Address != "":
		return p.Address
	default:
		return "this property"
	}
}

// FormattedPrice renders the price as $1,234,567, or "" when unknown.
func (p Property) FormattedPrice() string {
	if p.Price <= 0 {
		return ""
	}
	return "$" + groupThousands(p.Price)
}

// FormattedBathrooms renders 2 as "2" and 2.5 as "2.5".
func (p Property) FormattedBathrooms() string {
	return strconv.FormatFloat(p.Bathrooms, 'f', -1, 64)
}

// Agent returns the listing agent's name, or a generic stand-in.
func (p Property) Agent() string {
	if p.AgentName != "" {
		return p.AgentName
	}
	return "the listing agent"
}

// HasFeature reports whether any feature mentions one of the words.
func (p Property) HasFeature(words ...string) (string, bool) {
	for _, f := range p.Features {
		lf := strings.ToLower(f)
		for _, w := range words {
			if strings.Contains(lf, w) {
				return f, true
			}
		}
	}
	return "", false
}

// Summary is a one-paragraph description used to prime assistants.
func (p Property) Summary() string {
	var b strings.Builder
	b.WriteString(p.Name())
	if p.Address != "" && p.Address != p.Name() {
		fmt.Fprintf(&b, " at %s", p.Address)
	}
	b.WriteString(".")
	if price := p.FormattedPrice(); price != "" {
		fmt.Fprintf(&b, " Listed at %s.", price)
	}
	if p.Bedrooms > 0 {
		fmt.Fprintf(&b, " %d bedrooms, %s bathrooms", p.Bedrooms, p.FormattedBathrooms())
		if p.SquareFeet > 0 {
			fmt.Fprintf(&b, ", %s sq ft", groupThousands(int64(p.SquareFeet)))
		}
		b.WriteString(".")
	}
	if p.Description != "" {
		b.WriteString(" ")
		b.WriteString(p.Description)
	}
	return b.String()
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
