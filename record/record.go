// Package record defines the four record kinds returned by the CRD search API
// and resolves a result slot into exactly one of them.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/crd/internal/domain"
)

// Kind identifies a record kind. The string form is the XML element name.
type Kind string

const (
	// KindReference is a reference case (レファレンス事例).
	KindReference Kind = "reference"
	// KindManual is a research manual (調べ方マニュアル).
	KindManual Kind = "manual"
	// KindCollection is a special collection (特別コレクション).
	KindCollection Kind = "collection"
	// KindProfile is a participating library profile (参加館プロファイル).
	KindProfile Kind = "profile"
)

// Kinds lists every record kind in resolution priority order.
var Kinds = []Kind{KindReference, KindManual, KindCollection, KindProfile}

func (k Kind) String() string { return string(k) }

// Item is one entry of a result page: *Reference, *Manual, *Collection or *Profile.
type Item interface {
	Kind() Kind
	isItem()
}

// Reference is a reference case.
type Reference struct {
	Question string     `json:"question"`
	RegID    string     `json:"reg_id"`
	Answer   string     `json:"answer"`
	CrtDate  *time.Time `json:"crt_date,omitempty"`
	// Solution is true for resolved cases.
	Solution *bool    `json:"solution,omitempty"`
	Keyword  []string `json:"keyword,omitempty"`
	Class    []Class  `json:"class,omitempty"`
	ResType  *string  `json:"res_type,omitempty"`
	ConType  *string  `json:"con_type,omitempty"`
	Bibl     []Bibl   `json:"bibl,omitempty"`
	AnsProc  *string  `json:"ans_proc,omitempty"`
	Referral []string `json:"referral,omitempty"`
	PreRes   *string  `json:"pre_res,omitempty"`
	Note     *string  `json:"note,omitempty"`
	PtnType  *string  `json:"ptn_type,omitempty"`
	Contri   []string `json:"contri,omitempty"`
	System   System   `json:"system"`
	URL      string   `json:"url"`
}

// Kind implements Item.
func (*Reference) Kind() Kind { return KindReference }
func (*Reference) isItem()    {}

// Manual is a research manual.
type Manual struct {
	Theme   string     `json:"theme"`
	RegID   string     `json:"reg_id"`
	Guide   string     `json:"guide"`
	CrtDate *time.Time `json:"crt_date,omitempty"`
	// Completion is true for completed manuals.
	Completion *bool    `json:"completion,omitempty"`
	Keyword    []string `json:"keyword,omitempty"`
	Class      []Class  `json:"class,omitempty"`
	Bibl       []Bibl   `json:"bibl,omitempty"`
	Note       *string  `json:"note,omitempty"`
	System     System   `json:"system"`
	URL        string   `json:"url"`
}

// Kind implements Item.
func (*Manual) Kind() Kind { return KindManual }
func (*Manual) isItem()    {}

// Collection is a special collection.
type Collection struct {
	ColName     string  `json:"col_name"`
	ProKey      string  `json:"pro_key"`
	RegID       string  `json:"reg_id"`
	Outline     string  `json:"outline"`
	Origin      *string `json:"origin,omitempty"`
	Restriction *string `json:"restriction,omitempty"`
	Catalog     *string `json:"catalog,omitempty"`
	Literature  *string `json:"literature,omitempty"`
	Number      *string `json:"number,omitempty"`
	// Continue is true while the collection keeps growing.
	Continue *bool    `json:"continue,omitempty"`
	Keyword  []string `json:"keyword,omitempty"`
	Class    []Class  `json:"class,omitempty"`
	Note     *string  `json:"note,omitempty"`
	System   System   `json:"system"`
	URL      string   `json:"url"`
}

// Kind implements Item.
func (*Collection) Kind() Kind { return KindCollection }
func (*Collection) isItem()    {}

// Profile is a participating library profile.
type Profile struct {
	LibType     string    `json:"lib_type"`
	LibName     string    `json:"lib_name"`
	Abbr        string    `json:"abbr"`
	ProKey      string    `json:"pro_key"`
	ZipCode     string    `json:"zip_code"`
	AddPref     string    `json:"add_pref"`
	AddCity     string    `json:"add_city"`
	AddStreet   string    `json:"add_street"`
	Tel1        string    `json:"tel1"`
	Tel1Note    *string   `json:"tel1_note,omitempty"`
	Tel2        *string   `json:"tel2,omitempty"`
	Tel2Note    *string   `json:"tel2_note,omitempty"`
	Tel3        *string   `json:"tel3,omitempty"`
	Tel3Note    *string   `json:"tel3_note,omitempty"`
	Fax         *string   `json:"fax,omitempty"`
	EMail       *string   `json:"e_mail,omitempty"`
	LibURL      *string   `json:"lib_url,omitempty"`
	OpenInfo    *string   `json:"open_info,omitempty"`
	Restriction *string   `json:"restriction,omitempty"`
	Outline     *string   `json:"outline,omitempty"`
	Feature     *string   `json:"feature,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Access      *string   `json:"access,omitempty"`
	ISIL        *string   `json:"isil,omitempty"` // may hold several concatenated codes
	System      LibSystem `json:"system"`
	URL         string    `json:"url"`
}

// Kind implements Item.
func (*Profile) Kind() Kind { return KindProfile }
func (*Profile) isItem()    {}

// Class is a classification number (NDC).
type Class struct {
	Type    string  `json:"type"`
	Version *string `json:"version,omitempty"`
	Value   string  `json:"value"`
}

// Bibl is a bibliographic reference attached to a record.
type Bibl struct {
	Desc *string `json:"desc,omitempty"`
	ISBN *string `json:"isbn,omitempty"`
	Note *string `json:"note,omitempty"`
}

// System holds the system-managed metadata of references, manuals and collections.
type System struct {
	RegDate time.Time `json:"reg_date"`
	LstDate time.Time `json:"lst_date"`
	SysID   string    `json:"sys_id"`
	LibID   string    `json:"lib_id"`
	LibName string    `json:"lib_name"`
	FileNum uint32    `json:"file_num"`
}

// LibSystem holds the system-managed metadata of a library profile.
type LibSystem struct {
	RegDate time.Time `json:"reg_date"`
	LstDate time.Time `json:"lst_date"`
	LibID   string    `json:"lib_id"`
	LibName string    `json:"lib_name"`
	FileNum uint32    `json:"file_num"`
}

// Slots holds the four optional record slots of one result entry.
type Slots struct {
	Reference  *Reference
	Manual     *Manual
	Collection *Collection
	Profile    *Profile
}

// populated returns the filled slots in priority order.
func (s Slots) populated() []Item {
	var items []Item
	if s.Reference != nil {
		items = append(items, s.Reference)
	}
	if s.Manual != nil {
		items = append(items, s.Manual)
	}
	if s.Collection != nil {
		items = append(items, s.Collection)
	}
	if s.Profile != nil {
		items = append(items, s.Profile)
	}
	return items
}

// MalformedError reports a result entry that does not hold exactly one record.
type MalformedError struct {
	// Expected lists the kinds a slot may hold.
	Expected []Kind
	// Populated lists the kinds actually present.
	Populated []Kind
}

func (e *MalformedError) Error() string {
	if len(e.Populated) == 0 {
		return fmt.Sprintf("%s: missing field, expected one of %s",
			domain.ErrMalformedRecord.Error(), joinKinds(e.Expected))
	}
	return fmt.Sprintf("%s: expected exactly one of %s, got %s",
		domain.ErrMalformedRecord.Error(), joinKinds(e.Expected), joinKinds(e.Populated))
}

func (e *MalformedError) Unwrap() error { return domain.ErrMalformedRecord }

func joinKinds(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = "`" + string(k) + "`"
	}
	return strings.Join(parts, ", ")
}

// Resolve returns the single populated record of s. Empty slots and slots
// holding more than one record are rejected.
func Resolve(s Slots) (Item, error) {
	items := s.populated()
	switch len(items) {
	case 1:
		return items[0], nil
	case 0:
		return nil, &MalformedError{Expected: Kinds}
	default:
		kinds := make([]Kind, len(items))
		for i, it := range items {
			kinds[i] = it.Kind()
		}
		return nil, &MalformedError{Expected: Kinds, Populated: kinds}
	}
}

// ResolveLenient returns the first populated record of s in Kinds order.
// Only empty slots are rejected.
func ResolveLenient(s Slots) (Item, error) {
	items := s.populated()
	if len(items) == 0 {
		return nil, &MalformedError{Expected: Kinds}
	}
	return items[0], nil
}

// Policy selects how slots with several records are handled.
type Policy int

const (
	// Strict rejects slots with more than one record.
	Strict Policy = iota
	// Lenient keeps the first record in Kinds order.
	Lenient
)

// Resolve applies the policy to s.
func (p Policy) Resolve(s Slots) (Item, error) {
	if p == Lenient {
		return ResolveLenient(s)
	}
	return Resolve(s)
}

func (p Policy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}
