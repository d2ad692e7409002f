package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleAbstract = `1. Lancet. 2023 May 6;401(10387):1234-1245.

Metformin as first-line therapy for type 2 diabetes: an updated review.

Kim JH, Park SY, Lee MK.

Author information:
(1)Department of Endocrinology, Seoul National University Hospital.

Metformin remains the recommended first-line pharmacologic agent for type 2
diabetes. Initial dosing of 500mg twice daily with meals reduces
gastrointestinal side effects, with titration to a maximum of 2000mg per day.

DOI: 10.1000/example
PMID: 36000001`

func TestAcademicConnectorRetrieve(t *testing.T) {
	var gotSearchTerm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			gotSearchTerm = r.URL.Query().Get("term")
			json.NewEncoder(w).Encode(map[string]any{
				"esearchresult": map[string]any{
					"count":  "2",
					"idlist": []string{"36000001", "36000002"},
				},
			})
		case strings.Contains(r.URL.Path, "efetch"):
			w.Write([]byte(sampleAbstract))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	conn := NewAcademicConnector(srv.URL, "")
	results, err := conn.Retrieve(context.Background(), "type 2 diabetes metformin", 3)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if gotSearchTerm != "type 2 diabetes metformin" {
		t.Errorf("search term = %q, want query passed through", gotSearchTerm)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	first := results[0]
	if first.SourceID != IDAcademic {
		t.Errorf("SourceID = %q, want %q", first.SourceID, IDAcademic)
	}
	if first.Identifier != "PMID:36000001" {
		t.Errorf("Identifier = %q, want PMID:36000001", first.Identifier)
	}
	if first.TrustWeight != 1.0 {
		t.Errorf("TrustWeight = %v, want 1.0", first.TrustWeight)
	}
	if !strings.Contains(first.Snippet, "Metformin") {
		t.Errorf("Snippet should contain abstract body, got %q", first.Snippet)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores should decay by rank: %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestAcademicConnectorEmptyIDList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"esearchresult": map[string]any{"count": "0", "idlist": []string{}},
		})
	}))
	defer srv.Close()

	conn := NewAcademicConnector(srv.URL, "")
	results, err := conn.Retrieve(context.Background(), "nonexistent condition xyz", 3)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestAcademicConnectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	conn := NewAcademicConnector(srv.URL, "")
	_, err := conn.Retrieve(context.Background(), "query", 3)
	if err == nil {
		t.Fatal("expected error on non-200 esearch response")
	}
}

func TestParseAbstract(t *testing.T) {
	title, body := parseAbstract(sampleAbstract)
	if !strings.Contains(title, "Metformin as first-line therapy") {
		t.Errorf("title = %q, want the article title block", title)
	}
	if !strings.Contains(body, "500mg twice daily") {
		t.Errorf("body = %q, want the abstract block", body)
	}

	title, body = parseAbstract("single paragraph only")
	if title != "" || body != "single paragraph only" {
		t.Errorf("single block: title=%q body=%q", title, body)
	}

	title, body = parseAbstract("   \n\n  ")
	if title != "" || body != "" {
		t.Errorf("blank input: title=%q body=%q", title, body)
	}
}
