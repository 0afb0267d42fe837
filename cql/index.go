package cql

// Search indexes accepted by the CRD API. Availability depends on the
// requested search type; any other identifier is passed through verbatim.
const (
	// Common to every search type.
	IndexAnywhere = "anywhere"
	IndexRegID    = "reg-id"
	IndexKeyword  = "keyword"
	IndexNDC      = "ndc"
	IndexNote     = "note"
	IndexSysID    = "sys-id"
	IndexLibName  = "lib-name"

	// Reference cases.
	IndexQuestion    = "question"
	IndexAnswer      = "answer"
	IndexSolution    = "solution" // 0/resolved, 1/unresolved
	IndexResType     = "res-type"
	IndexConType     = "con-type"
	IndexBiblDesc    = "bibl-desc"
	IndexBiblISBN    = "bibl-isbn"
	IndexAnsProc     = "ans-proc"
	IndexReferral    = "referral"
	IndexPreRes      = "pre-res"
	IndexPtnType     = "ptn-type"
	IndexContributor = "contri"

	// Research manuals.
	IndexTheme      = "theme"
	IndexGuide      = "guide"
	IndexCompletion = "completion" // 0/complete, 1/incomplete

	// Special collections.
	IndexColName     = "col-name"
	IndexOutline     = "outline"
	IndexOrigin      = "origin"
	IndexRestriction = "restriction"
	IndexCatalog     = "catalog"
	IndexLiterature  = "literature"
	IndexNumber      = "number"
	IndexContinue    = "continue" // 0/continue, 1/discontinued

	// Library profiles.
	IndexLibType  = "lib-type"
	IndexAddress  = "address"
	IndexOpenInfo = "open-info"
	IndexFeature  = "feature"
	IndexNotes    = "notes"
	IndexAccess   = "access"
	IndexISIL     = "isil"
)
