// Package analyze implements the first pass of two-pass generation:
// classifying structured page text into typed content sections.
package analyze

// Result is the pass-1 classification. page_type is the only required
// field; every list entry carries a position preserving source order.
type Result struct {
	PageType     string         `json:"page_type"`
	PageSummary  string         `json:"page_summary,omitempty"`
	Organization *Organization  `json:"organization,omitempty"`
	Services     []Service      `json:"services,omitempty"`
	Testimonials []Testimonial  `json:"testimonials,omitempty"`
	FAQs         []FAQ          `json:"faqs,omitempty"`
	TeamMembers  []TeamMember   `json:"team_members,omitempty"`
	Products     []Product      `json:"products,omitempty"`
	Events       []Event        `json:"events,omitempty"`
	HowToSteps   []HowToStep    `json:"how_to_steps,omitempty"`
	ContactInfo  *ContactInfo   `json:"contact_info,omitempty"`
	Statistics   []Statistic    `json:"statistics,omitempty"`
	ItemCounts   map[string]int `json:"item_counts,omitempty"`
}

type Organization struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

type Service struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
}

type Testimonial struct {
	Quote         string  `json:"quote"`
	AuthorName    string  `json:"author_name,omitempty"`
	AuthorTitle   string  `json:"author_title,omitempty"`
	AuthorCompany string  `json:"author_company,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	RatingMax     float64 `json:"rating_max,omitempty"`
	Position      int     `json:"position"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Position int    `json:"position"`
}

type TeamMember struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Position int    `json:"position"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Position    int    `json:"position"`
}

type Event struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Location  string `json:"location,omitempty"`
	Position  int    `json:"position"`
}

type HowToStep struct {
	Name     string `json:"name"`
	Text     string `json:"text,omitempty"`
	Position int    `json:"position"`
}

type ContactInfo struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Statistic struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// counts pairs each item_counts key with the actual array length for the
// advisory consistency check.
func (r *Result) counts() map[string]int {
	return map[string]int{
		"services":     len(r.Services),
		"testimonials": len(r.Testimonials),
		"faqs":         len(r.FAQs),
		"team_members": len(r.TeamMembers),
		"products":     len(r.Products),
		"events":       len(r.Events),
		"how_to_steps": len(r.HowToSteps),
		"statistics":   len(r.Statistics),
	}
}
