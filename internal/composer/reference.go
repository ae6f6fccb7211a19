package composer

import (
	"sort"
	"strings"
)

// typeFamilies maps a type hint to the bounded set of schema.org type
// definitions worth sending with the prompt. Sending the whole reference
// corpus every time would waste most of the input budget.
var typeFamilies = map[string][]string{
	"LocalBusiness": {"LocalBusiness", "Organization", "PostalAddress", "OpeningHoursSpecification", "ContactPoint", "AggregateRating", "Review", "Service"},
	"Organization":  {"Organization", "PostalAddress", "ContactPoint", "Person", "Service", "Review"},
	"Service":       {"Service", "Offer", "Organization", "AggregateRating", "Review"},
	"Product":       {"Product", "Offer", "Brand", "AggregateRating", "Review"},
	"Article":       {"Article", "Person", "Organization", "ImageObject", "BreadcrumbList"},
	"BlogPosting":   {"BlogPosting", "Person", "Organization", "ImageObject", "BreadcrumbList"},
	"FAQPage":       {"FAQPage", "Question", "Answer", "WebPage"},
	"Event":         {"Event", "Place", "Offer", "Organization", "PostalAddress"},
	"HowTo":         {"HowTo", "HowToStep", "WebPage"},
	"AboutPage":     {"AboutPage", "Organization", "Person", "WebPage"},
	"ContactPage":   {"ContactPage", "Organization", "ContactPoint", "PostalAddress"},
	"WebPage":       {"WebPage", "WebSite", "Organization", "BreadcrumbList", "FAQPage", "Service", "Review"},
}

// typeDocs holds the property-reference excerpt per schema.org type.
var typeDocs = map[string]string{
	"WebPage":                   "WebPage: name, url, description, isPartOf (WebSite @id), about, primaryImageOfPage, datePublished, dateModified, breadcrumb.",
	"WebSite":                   "WebSite: name, url, description, publisher (Organization @id).",
	"Organization":              "Organization: name, url, logo (ImageObject or URL), description, email, telephone, address (PostalAddress), sameAs (social URLs), foundingDate, contactPoint.",
	"LocalBusiness":             "LocalBusiness (subtype of Organization): name, image, address (PostalAddress), geo, telephone, email, url, openingHoursSpecification, priceRange, aggregateRating.",
	"PostalAddress":             "PostalAddress: streetAddress, addressLocality, addressRegion, postalCode, addressCountry.",
	"OpeningHoursSpecification": "OpeningHoursSpecification: dayOfWeek (Monday..Sunday or Mo..Su), opens (HH:MM), closes (HH:MM).",
	"ContactPoint":              "ContactPoint: contactType (e.g. customer service), telephone, email, areaServed, availableLanguage.",
	"Person":                    "Person: name, jobTitle, worksFor (Organization @id), description, image, sameAs.",
	"Service":                   "Service: name, description, provider (Organization @id), serviceType, areaServed, offers (Offer).",
	"Offer":                     "Offer: price, priceCurrency, availability (https://schema.org/InStock etc), url, validFrom.",
	"Product":                   "Product: name, description, image, brand (Brand), offers (Offer), aggregateRating, review.",
	"Brand":                     "Brand: name, logo.",
	"AggregateRating":           "AggregateRating: ratingValue, bestRating, ratingCount or reviewCount.",
	"Review":                    "Review: reviewBody, author (Person), reviewRating (Rating: ratingValue, bestRating), itemReviewed (@id).",
	"Article":                   "Article: headline, description, author (Person), publisher (Organization), datePublished, dateModified, image, mainEntityOfPage.",
	"BlogPosting":               "BlogPosting: same properties as Article; use for blog content.",
	"ImageObject":               "ImageObject: url, width, height, caption.",
	"BreadcrumbList":            "BreadcrumbList: itemListElement (ListItem: position, name, item URL).",
	"FAQPage":                   "FAQPage: mainEntity (array of Question).",
	"Question":                  "Question: name (the question text), acceptedAnswer (Answer).",
	"Answer":                    "Answer: text.",
	"Event":                     "Event: name, startDate (ISO 8601), endDate, location (Place), description, offers (Offer), organizer (Organization).",
	"Place":                     "Place: name, address (PostalAddress), geo.",
	"HowTo":                     "HowTo: name, description, step (array of HowToStep), totalTime.",
	"HowToStep":                 "HowToStep: position, name, text.",
	"AboutPage":                 "AboutPage: subtype of WebPage; mainEntity typically the Organization.",
	"ContactPage":               "ContactPage: subtype of WebPage; mainEntity typically ContactPoint or Organization.",
}

// pageTypeHints maps pass-1 page_type values onto reference families when
// the editor left the hint on auto.
var pageTypeHints = map[string]string{
	"homepage":  "WebPage",
	"about":     "AboutPage",
	"services":  "Service",
	"contact":   "ContactPage",
	"product":   "Product",
	"blog_post": "BlogPosting",
	"landing":   "WebPage",
}

// ReferenceFor selects the property-reference excerpt for a type hint.
// hint "auto" falls back on the detected page type, then on WebPage.
func ReferenceFor(hint, detectedPageType string) string {
	family := hint
	if family == "" || family == "auto" {
		if mapped, ok := pageTypeHints[detectedPageType]; ok {
			family = mapped
		} else {
			family = "WebPage"
		}
	}

	types, ok := typeFamilies[family]
	var requested string
	if !ok {
		// A specific but unknown hint still deserves the generic set plus
		// a line naming the requested type.
		types = append([]string{}, typeFamilies["WebPage"]...)
		requested = family + ": use the standard schema.org properties for this type."
	}

	seen := make(map[string]bool)
	var docs []string
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		if doc, ok := typeDocs[t]; ok {
			docs = append(docs, doc)
		}
	}
	sort.Strings(docs)
	if requested != "" {
		docs = append([]string{requested}, docs...)
	}
	return strings.Join(docs, "\n")
}
