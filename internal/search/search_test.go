package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	meili "github.com/meilisearch/meilisearch-go"
)

func TestPgFTSSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM blog_posts p WHERE p.fts @@ plainto_tsquery\('english', \$1\) AND p.username = \$2`).
		WithArgs("gophers", "JoeSmoe").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)SELECT p.id, p.title, p.username, p.link,.*LIMIT 5 OFFSET 0`).
		WithArgs("gophers", "JoeSmoe").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "username", "link", "snippet"}).
			AddRow("post_1", "Gophers", "JoeSmoe", "/blog/gophers", "all about <b>gophers</b>"))

	results, total, err := NewPgFTS(db).Search(Query{Text: "gophers", FilterUser: "JoeSmoe", Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 || len(results) != 1 || results[0].Link != "/blog/gophers" {
		t.Fatalf("unexpected results: total=%d %+v", total, results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPgFTSSearchBlankQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	results, total, err := NewPgFTS(db).Search(Query{Text: "   "})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected empty result, got %v %d %v", results, total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT count`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT p.id`).WillReturnRows(sqlmock.NewRows([]string{"id", "title", "username", "link", "snippet"}))

	svc := NewService(nil, NewPgFTS(db))
	resp := svc.Search(Query{Text: "nothing"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Query != "nothing" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Indexing is a no-op without Meilisearch.
	svc.IndexPost(PostRecord{ID: "post_1"})
	svc.DeletePost("post_1")
	svc.ReindexAllFromPG(context.Background())
}

func TestServiceWithoutBackends(t *testing.T) {
	resp := NewService(nil, nil).Search(Query{Text: "x"})
	if resp.Results == nil || resp.Total != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	raw := func(v any) json.RawMessage {
		data, _ := json.Marshal(v)
		return data
	}
	hit := meili.Hit{
		"id":    raw("post_1"),
		"title": raw("Gophers"),
		"user":  raw("JoeSmoe"),
		"link":  raw("/blog/gophers"),
		"text":  raw("plain body"),
		"_formatted": raw(map[string]string{
			"title": "<mark>Gophers</mark>",
			"text":  "…<mark>gophers</mark> body…",
		}),
	}

	result := hitToResult(hit)
	if result.Title != "<mark>Gophers</mark>" || result.User != "JoeSmoe" || result.Link != "/blog/gophers" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Snippet != "…<mark>gophers</mark> body…" {
		t.Fatalf("snippet = %q", result.Snippet)
	}
}
