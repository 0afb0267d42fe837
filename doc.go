// Package crd is a Go client for the search API of the Collaborative
// Reference Database (CRD) run by the National Diet Library of Japan.
//
// Queries are built as CQL expression trees with package cql, sent with a
// Client, and returned as pages of typed records (package record). The
// service signals failure only through the shape of its XML response;
// package envelope turns every body into exactly one of a page, a
// *ServiceError or a *ParseError.
//
// # Low-level API
//
//	client, _ := crd.New(crd.WithTimeout(10 * time.Second))
//	expr := cql.MustAny(cql.IndexQuestion, "本", "音楽").
//	    And(cql.MustEqual(cql.IndexSolution, "0"))
//	req := crd.NewRequest(expr)
//	req.Type = crd.TypeReference
//	page, err := client.Search(ctx, req)
//	for ref := range page.References() {
//	    fmt.Println(ref.Question)
//	}
//
// # Typed builder
//
//	refs, _ := crd.Find[*record.Reference](client).
//	    Where(cql.MustAny(cql.IndexQuestion, "読書")).
//	    CreatedSince(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)).
//	    Limit(50).
//	    Do(ctx)
package crd
