package envelope

import (
	"iter"

	"github.com/kailas-cloud/crd/record"
)

// Page is one successful result page.
type Page struct {
	// HitNum is the total number of matching records.
	HitNum uint32 `json:"hit_num"`
	// Position is the 1-based offset of the first returned record.
	Position uint32 `json:"results_get_position"`
	// Count is the number of records returned.
	Count uint32 `json:"results_num"`
	// StatusCode is the service processing result code.
	StatusCode uint32 `json:"results_cd"`
	// Items holds the records in service order.
	Items []record.Item `json:"items"`
}

// Len returns the number of items on the page.
func (p *Page) Len() int { return len(p.Items) }

// All yields every item in order.
func (p *Page) All() iter.Seq[record.Item] {
	return func(yield func(record.Item) bool) {
		for _, it := range p.Items {
			if !yield(it) {
				return
			}
		}
	}
}

// Filter yields the items of type T in order. Each call starts a new pass.
func Filter[T record.Item](p *Page) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, it := range p.Items {
			if v, ok := it.(T); ok && !yield(v) {
				return
			}
		}
	}
}

// References yields the reference cases on the page.
func (p *Page) References() iter.Seq[*record.Reference] { return Filter[*record.Reference](p) }

// Manuals yields the research manuals on the page.
func (p *Page) Manuals() iter.Seq[*record.Manual] { return Filter[*record.Manual](p) }

// Collections yields the special collections on the page.
func (p *Page) Collections() iter.Seq[*record.Collection] { return Filter[*record.Collection](p) }

// Profiles yields the library profiles on the page.
func (p *Page) Profiles() iter.Seq[*record.Profile] { return Filter[*record.Profile](p) }

// Counts returns the number of items per kind.
func (p *Page) Counts() map[record.Kind]int {
	counts := make(map[record.Kind]int, len(record.Kinds))
	for _, it := range p.Items {
		counts[it.Kind()]++
	}
	return counts
}
