package model

import "strings"

// MaxTakeaways caps the number of takeaway items kept from a reply.
const MaxTakeaways = 4

// ExpectedTakeaways is the minimum count the prompt asks for.
const ExpectedTakeaways = 3

// Digest is the plain-language summary produced from a paper.
type Digest struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Methodology string   `json:"methodology"`
	Takeaways   []string `json:"takeaways"`
}

// Complete reports whether every required field is populated.
// Takeaways may be short or empty; the slice itself must be non-nil so it persists as a present value.
func (d Digest) Complete() bool {
	return strings.TrimSpace(d.Title) != "" &&
		strings.TrimSpace(d.Summary) != "" &&
		strings.TrimSpace(d.Methodology) != "" &&
		d.Takeaways != nil
}

// Normalize trims whitespace, drops blank takeaways and caps the list.
func (d Digest) Normalize() Digest {
	out := Digest{
		Title:       strings.TrimSpace(d.Title),
		Summary:     strings.TrimSpace(d.Summary),
		Methodology: strings.TrimSpace(d.Methodology),
		Takeaways:   make([]string, 0, len(d.Takeaways)),
	}
	for _, t := range d.Takeaways {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out.Takeaways = append(out.Takeaways, t)
		if len(out.Takeaways) == MaxTakeaways {
			break
		}
	}
	return out
}
