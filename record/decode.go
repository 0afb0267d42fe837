package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102150405"
	noDate         = "00000000"
)

// JST is the time zone of every date the service returns.
var JST = time.FixedZone("JST", 9*60*60)

// FieldError reports a field that violates the response schema.
type FieldError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Reason }

func (e *FieldError) Unwrap() error { return e.Err }

// XMLSlot is the wire form of one <result> element.
type XMLSlot struct {
	Reference  *xmlReference  `xml:"reference"`
	Manual     *xmlManual     `xml:"manual"`
	Collection *xmlCollection `xml:"collection"`
	Profile    *xmlProfile    `xml:"profile"`
}

// Slots converts every populated wire record into its typed form.
// path locates the slot in error messages.
func (s *XMLSlot) Slots(path string) (Slots, error) {
	var out Slots
	var err error
	if s.Reference != nil {
		if out.Reference, err = s.Reference.decode(path + ".reference"); err != nil {
			return Slots{}, err
		}
	}
	if s.Manual != nil {
		if out.Manual, err = s.Manual.decode(path + ".manual"); err != nil {
			return Slots{}, err
		}
	}
	if s.Collection != nil {
		if out.Collection, err = s.Collection.decode(path + ".collection"); err != nil {
			return Slots{}, err
		}
	}
	if s.Profile != nil {
		if out.Profile, err = s.Profile.decode(path + ".profile"); err != nil {
			return Slots{}, err
		}
	}
	return out, nil
}

// Item converts the slot and resolves it under policy p.
func (s *XMLSlot) Item(path string, p Policy) (Item, error) {
	slots, err := s.Slots(path)
	if err != nil {
		return nil, err
	}
	item, err := p.Resolve(slots)
	if err != nil {
		return nil, &FieldError{Path: path, Reason: err.Error(), Err: err}
	}
	return item, nil
}

type xmlReference struct {
	Question *string    `xml:"question"`
	RegID    *string    `xml:"reg-id"`
	Answer   *string    `xml:"answer"`
	CrtDate  *string    `xml:"crt-date"`
	Solution *string    `xml:"solution"`
	Keyword  []string   `xml:"keyword"`
	Class    []xmlClass `xml:"class"`
	ResType  *string    `xml:"res-type"`
	ConType  *string    `xml:"con-type"`
	Bibl     []xmlBibl  `xml:"bibl"`
	AnsProc  *string    `xml:"ans-proc"`
	Referral []string   `xml:"referral"`
	PreRes   *string    `xml:"pre-res"`
	Note     *string    `xml:"note"`
	PtnType  *string    `xml:"ptn-type"`
	Contri   []string   `xml:"contri"`
	System   *xmlSystem `xml:"system"`
	URL      *string    `xml:"url"`
}

func (x *xmlReference) decode(path string) (*Reference, error) {
	r := &fieldReader{path: path}
	out := &Reference{
		Question: r.required("question", x.Question),
		RegID:    r.required("reg-id", x.RegID),
		Answer:   r.required("answer", x.Answer),
		CrtDate:  r.date("crt-date", x.CrtDate),
		Solution: r.flag("solution", x.Solution, "0", "1"),
		Keyword:  x.Keyword,
		Class:    r.classes(x.Class),
		ResType:  x.ResType,
		ConType:  x.ConType,
		Bibl:     bibls(x.Bibl),
		AnsProc:  x.AnsProc,
		Referral: x.Referral,
		PreRes:   x.PreRes,
		Note:     x.Note,
		PtnType:  x.PtnType,
		Contri:   x.Contri,
		System:   r.system(x.System),
		URL:      r.required("url", x.URL),
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

type xmlManual struct {
	Theme      *string    `xml:"theme"`
	RegID      *string    `xml:"reg-id"`
	Guide      *string    `xml:"guide"`
	CrtDate    *string    `xml:"crt-date"`
	Completion *string    `xml:"completion"`
	Keyword    []string   `xml:"keyword"`
	Class      []xmlClass `xml:"class"`
	Bibl       []xmlBibl  `xml:"bibl"`
	Note       *string    `xml:"note"`
	System     *xmlSystem `xml:"system"`
	URL        *string    `xml:"url"`
}

func (x *xmlManual) decode(path string) (*Manual, error) {
	r := &fieldReader{path: path}
	out := &Manual{
		Theme:      r.required("theme", x.Theme),
		RegID:      r.required("reg-id", x.RegID),
		Guide:      r.required("guide", x.Guide),
		CrtDate:    r.date("crt-date", x.CrtDate),
		Completion: r.flag("completion", x.Completion, "1", "2"),
		Keyword:    x.Keyword,
		Class:      r.classes(x.Class),
		Bibl:       bibls(x.Bibl),
		Note:       x.Note,
		System:     r.system(x.System),
		URL:        r.required("url", x.URL),
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

type xmlCollection struct {
	ColName     *string    `xml:"col-name"`
	ProKey      *string    `xml:"pro-key"`
	RegID       *string    `xml:"reg-id"`
	Outline     *string    `xml:"outline"`
	Origin      *string    `xml:"origin"`
	Restriction *string    `xml:"restriction"`
	Catalog     *string    `xml:"catalog"`
	Literature  *string    `xml:"literature"`
	Number      *string    `xml:"number"`
	Continue    *string    `xml:"continue"`
	Keyword     []string   `xml:"keyword"`
	Class       []xmlClass `xml:"class"`
	Note        *string    `xml:"note"`
	System      *xmlSystem `xml:"system"`
	URL         *string    `xml:"url"`
}

func (x *xmlCollection) decode(path string) (*Collection, error) {
	r := &fieldReader{path: path}
	out := &Collection{
		ColName:     r.required("col-name", x.ColName),
		ProKey:      r.required("pro-key", x.ProKey),
		RegID:       r.required("reg-id", x.RegID),
		Outline:     r.required("outline", x.Outline),
		Origin:      x.Origin,
		Restriction: x.Restriction,
		Catalog:     x.Catalog,
		Literature:  x.Literature,
		Number:      x.Number,
		Continue:    r.flag("continue", x.Continue, "0", "1"),
		Keyword:     x.Keyword,
		Class:       r.classes(x.Class),
		Note:        x.Note,
		System:      r.system(x.System),
		URL:         r.required("url", x.URL),
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

type xmlProfile struct {
	LibType     *string       `xml:"lib-type"`
	LibName     *string       `xml:"lib-name"`
	Abbr        *string       `xml:"abbr"`
	ProKey      *string       `xml:"pro-key"`
	ZipCode     *string       `xml:"zip-code"`
	AddPref     *string       `xml:"add-pref"`
	AddCity     *string       `xml:"add-city"`
	AddStreet   *string       `xml:"add-street"`
	Tel1        *string       `xml:"tel1"`
	Tel1Note    *string       `xml:"tel1-note"`
	Tel2        *string       `xml:"tel2"`
	Tel2Note    *string       `xml:"tel2-note"`
	Tel3        *string       `xml:"tel3"`
	Tel3Note    *string       `xml:"tel3-note"`
	Fax         *string       `xml:"fax"`
	EMail       *string       `xml:"e-mail"`
	LibURL      *string       `xml:"lib-url"`
	OpenInfo    *string       `xml:"open-info"`
	Restriction *string       `xml:"restriction"`
	Outline     *string       `xml:"outline"`
	Feature     *string       `xml:"feature"`
	Notes       *string       `xml:"notes"`
	Access      *string       `xml:"access"`
	ISIL        *string       `xml:"isil"`
	System      *xmlLibSystem `xml:"system"`
	URL         *string       `xml:"url"`
}

func (x *xmlProfile) decode(path string) (*Profile, error) {
	r := &fieldReader{path: path}
	out := &Profile{
		LibType:     r.required("lib-type", x.LibType),
		LibName:     r.required("lib-name", x.LibName),
		Abbr:        r.required("abbr", x.Abbr),
		ProKey:      r.required("pro-key", x.ProKey),
		ZipCode:     r.required("zip-code", x.ZipCode),
		AddPref:     r.required("add-pref", x.AddPref),
		AddCity:     r.required("add-city", x.AddCity),
		AddStreet:   r.required("add-street", x.AddStreet),
		Tel1:        r.required("tel1", x.Tel1),
		Tel1Note:    x.Tel1Note,
		Tel2:        x.Tel2,
		Tel2Note:    x.Tel2Note,
		Tel3:        x.Tel3,
		Tel3Note:    x.Tel3Note,
		Fax:         x.Fax,
		EMail:       x.EMail,
		LibURL:      x.LibURL,
		OpenInfo:    x.OpenInfo,
		Restriction: x.Restriction,
		Outline:     x.Outline,
		Feature:     x.Feature,
		Notes:       x.Notes,
		Access:      x.Access,
		ISIL:        x.ISIL,
		System:      r.libSystem(x.System),
		URL:         r.required("url", x.URL),
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

type xmlClass struct {
	Type    *string `xml:"type,attr"`
	Version *string `xml:"version,attr"`
	Value   string  `xml:",chardata"`
}

type xmlBibl struct {
	Desc *string `xml:"bibl-desc"`
	ISBN *string `xml:"bibl-isbn"`
	Note *string `xml:"bibl-note"`
}

type xmlSystem struct {
	RegDate *string `xml:"reg-date"`
	LstDate *string `xml:"lst-date"`
	SysID   *string `xml:"sys-id"`
	LibID   *string `xml:"lib-id"`
	LibName *string `xml:"lib-name"`
	FileNum *string `xml:"file-num"`
}

type xmlLibSystem struct {
	RegDate *string `xml:"reg-date"`
	LstDate *string `xml:"lst-date"`
	LibID   *string `xml:"lib-id"`
	LibName *string `xml:"lib-name"`
	FileNum *string `xml:"file-num"`
}

func bibls(in []xmlBibl) []Bibl {
	if len(in) == 0 {
		return nil
	}
	out := make([]Bibl, len(in))
	for i, b := range in {
		out[i] = Bibl{Desc: b.Desc, ISBN: b.ISBN, Note: b.Note}
	}
	return out
}

// fieldReader converts wire fields and keeps the first schema violation.
type fieldReader struct {
	path string
	err  error
}

func (r *fieldReader) fail(name, reason string) {
	if r.err == nil {
		r.err = &FieldError{Path: r.path + "." + name, Reason: reason}
	}
}

func (r *fieldReader) required(name string, v *string) string {
	if v == nil {
		r.fail(name, "missing field")
		return ""
	}
	return *v
}

func (r *fieldReader) date(name string, v *string) *time.Time {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == noDate {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, s, JST)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid date %q", s))
		return nil
	}
	return &t
}

func (r *fieldReader) dateTime(name string, v *string) time.Time {
	if v == nil {
		r.fail(name, "missing field")
		return time.Time{}
	}
	s := strings.TrimSpace(*v)
	t, err := time.ParseInLocation(dateTimeLayout, s, JST)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid date-time %q", s))
		return time.Time{}
	}
	return t
}

// flag maps the service's two-valued codes to a bool.
func (r *fieldReader) flag(name string, v *string, yes, no string) *bool {
	if v == nil {
		return nil
	}
	var b bool
	switch strings.TrimSpace(*v) {
	case yes:
		b = true
	case no:
		b = false
	default:
		r.fail(name, fmt.Sprintf("failed to parse %q to bool", *v))
		return nil
	}
	return &b
}

func (r *fieldReader) uint32(name string, v *string) uint32 {
	if v == nil {
		r.fail(name, "missing field")
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(*v), 10, 32)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid unsigned integer %q", *v))
		return 0
	}
	return uint32(n)
}

func (r *fieldReader) classes(in []xmlClass) []Class {
	if len(in) == 0 {
		return nil
	}
	out := make([]Class, len(in))
	for i, c := range in {
		if c.Type == nil {
			r.fail(fmt.Sprintf("class[%d].@type", i), "missing attribute")
			continue
		}
		out[i] = Class{Type: *c.Type, Version: c.Version, Value: c.Value}
	}
	return out
}

func (r *fieldReader) system(x *xmlSystem) System {
	if x == nil {
		r.fail("system", "missing field")
		return System{}
	}
	sr := &fieldReader{path: r.path + ".system"}
	out := System{
		RegDate: sr.dateTime("reg-date", x.RegDate),
		LstDate: sr.dateTime("lst-date", x.LstDate),
		SysID:   sr.required("sys-id", x.SysID),
		LibID:   sr.required("lib-id", x.LibID),
		LibName: sr.required("lib-name", x.LibName),
		FileNum: sr.uint32("file-num", x.FileNum),
	}
	if r.err == nil {
		r.err = sr.err
	}
	return out
}

func (r *fieldReader) libSystem(x *xmlLibSystem) LibSystem {
	if x == nil {
		r.fail("system", "missing field")
		return LibSystem{}
	}
	sr := &fieldReader{path: r.path + ".system"}
	out := LibSystem{
		RegDate: sr.dateTime("reg-date", x.RegDate),
		LstDate: sr.dateTime("lst-date", x.LstDate),
		LibID:   sr.required("lib-id", x.LibID),
		LibName: sr.required("lib-name", x.LibName),
		FileNum: sr.uint32("file-num", x.FileNum),
	}
	if r.err == nil {
		r.err = sr.err
	}
	return out
}
