package scans

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	domain "github.com/bryanwahyu/viruslens/internal/domain/scans"
	"github.com/bryanwahyu/viruslens/internal/infra/providers"
)

func TestBulkSequentialWithProgress(t *testing.T) {
	repo := &memRepo{}
	svc := newService(repo, providers.MockSet())
	items := []BulkItem{
		{Input: "http://example.com"},
		{Input: ""},
		{Input: "d41d8cd98f00b204e9800998ecf8427e", Type: "hash"},
		{Input: "x", Type: "ip"},
		{Input: "hello world", Type: "hash"},
	}
	var seen []int
	res, err := svc.Bulk(context.Background(), items, func(done, total int, r BulkResult) {
		if total != len(items) {
			t.Errorf("total = %d", total)
		}
		seen = append(seen, done)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 5 || seen[0] != 1 || seen[4] != 5 {
		t.Fatalf("progress = %v", seen)
	}
	if res[0].OverallRisk != "Low" || res[0].Type != "url" {
		t.Fatalf("row0 = %+v", res[0])
	}
	if res[1].OverallRisk != RiskNotApplicable {
		t.Fatalf("empty row = %+v", res[1])
	}
	if res[2].Type != "hash" || len(res[2].Engines) != 2 {
		t.Fatalf("hash row = %+v", res[2])
	}
	if res[3].Error == "" || res[3].OverallRisk != RiskNotApplicable {
		t.Fatalf("bad type row = %+v", res[3])
	}
	if r := res[4]; r.Type != "hash" || r.OverallRisk != RiskNotApplicable || r.Error == "" || len(r.Engines) != 0 {
		t.Fatalf("non-digest hash row = %+v", r)
	}
	if len(repo.rows) != 0 {
		t.Fatal("bulk results must not be recorded")
	}
}

func TestBulkStopsOnCancel(t *testing.T) {
	svc := newService(&memRepo{}, providers.MockSet())
	ctx, cancel := context.WithCancel(context.Background())
	items := []BulkItem{{Input: "http://a.example.com"}, {Input: "http://b.example.com"}}
	res, err := svc.Bulk(ctx, items, func(done, total int, r BulkResult) { cancel() })
	if !errors.Is(err, context.Canceled) || len(res) != 1 {
		t.Fatalf("len=%d err=%v", len(res), err)
	}
}

func TestBulkLimit(t *testing.T) {
	svc := newService(&memRepo{}, providers.MockSet())
	svc.MaxBulkItems = 1
	_, err := svc.Bulk(context.Background(), []BulkItem{{Input: "a"}, {Input: "b"}}, nil)
	if !errors.Is(err, ErrTooManyItems) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseBulkCSV(t *testing.T) {
	in := "\ufeffType,Input\nurl,http://example.com\n,d41d8cd98f00b204e9800998ecf8427e\nhash\n"
	items, err := ParseBulkCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []BulkItem{
		{Input: "http://example.com", Type: "url"},
		{Input: "d41d8cd98f00b204e9800998ecf8427e"},
		{Input: "", Type: "hash"},
	}
	if len(items) != len(want) {
		t.Fatalf("items = %+v", items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("item %d = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestParseBulkCSVErrors(t *testing.T) {
	if _, err := ParseBulkCSV(strings.NewReader("ioc,type\nx,url\n")); !errors.Is(err, ErrMissingInputColumn) {
		t.Fatalf("err = %v", err)
	}
	if _, err := ParseBulkCSV(strings.NewReader("")); !errors.Is(err, ErrMissingInputColumn) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestParseBulkCSVWindows1252(t *testing.T) {
	// "café.com" with é encoded as 0xE9
	in := []byte("input\ncaf\xe9.com\n")
	items, err := ParseBulkCSV(bytes.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if items[0].Input != "café.com" {
		t.Fatalf("input = %q", items[0].Input)
	}
}

func TestParseBulkLines(t *testing.T) {
	items, err := ParseBulkLines(strings.NewReader("# list\nhttp://a.example.com\n\n  d41d8cd98f00b204e9800998ecf8427e  \n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].Input != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("items = %+v", items)
	}
}

func TestWriteBulkCSV(t *testing.T) {
	var buf bytes.Buffer
	results := []BulkResult{{
		Input: "http://example.com", Type: "url", OverallRisk: "High",
		Engines: []domain.EngineResult{{Engine: "VirusTotal", Summary: map[string]any{"malicious": 5}, Raw: map[string]any{"a": "b,c"}}},
	}}
	if err := WriteBulkCSV(&buf, results); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || strings.Join(rows[0], ",") != "input,type,overall_risk,engines" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][2] != "High" || !strings.Contains(rows[1][3], `"engine":"VirusTotal"`) {
		t.Fatalf("row = %v", rows[1])
	}
}
