// Package report turns a stored scan into the flat report layout: a metadata
// block followed by ten labelled sections.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// Field satu baris label/value
type Field struct {
	Label string `json:"label"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type Document struct {
	Metadata []Field   `json:"metadata"`
	Sections []Section `json:"sections"`
}

type row struct {
	label, key, fallback string
}

var layout = []struct {
	title string
	rows  []row
}{
	{"1. URL Reputation & Categorization", []row{
		{"Reputation", "reputation", "No reputation / categorization details available."},
		{"Category", "category", "No category information available."},
		{"Harmless/Malicious Counts", "counts", "Not available."},
	}},
	{"2. Domain & Hosting Information", []row{
		{"Domain", "domain", "No domain/hosting metadata available."},
		{"Registrar / WHOIS", "whois", "No public ownership (WHOIS) details were found."},
		{"Hosting Country", "country", "Hosting country not specified."},
		{"ASN / Network", "asn", "Network/ASN not reported."},
	}},
	{"3. DNS Records & Network Artifacts", []row{
		{"DNS Records", "dns", "No DNS records were reported for this link."},
		{"IP Address candidates", "ips", "No IP candidates available."},
	}},
	{"4. Static Content Inspection", []row{
		{"HTML Title", "html_title", "No static content inspection details available."},
		{"Detected Scripts / Links", "scripts", "No scripts/resources reported."},
		{"Embedded Resources / Tags", "resources", "No notable embedded resources."},
	}},
	{"5. Dynamic Behavioral Analysis", []row{
		{"Redirect Chain", "redirects", "Not reported."},
		{"Downloads Attempted", "downloads", "None."},
		{"Execution Behavior", "execution", "No suspicious behavior detected."},
	}},
	{"6. Connections & Relationships", []row{
		{"Linked URLs / Files", "linked", "None found."},
		{"Communicating Files", "files", "None found."},
		{"Contacted Domains", "domains", "None found."},
	}},
	{"7. SSL/TLS Certificate Information", []row{
		{"Issuer", "cert_issuer", "Not available."},
		{"Subject", "cert_subject", "Not available."},
		{"Validity", "cert_validity", "Not available."},
	}},
	{"8. Antivirus / Engine Detections", []row{
		{"Last Analysis Stats", "av_stats", "No engine detection stats available."},
		{"Malicious Engines", "av_malicious", "None reported."},
	}},
	{"9. Heuristic & Machine Learning Scoring", []row{
		{"ML/Heuristic Verdict", "ml_verdict", "No ML verdict provided."},
		{"Heuristic Tags", "ml_tags", "None"},
	}},
	{"10. Historical & Community Data", []row{
		{"Community Votes", "community", "No community votes."},
		{"First Submission Date", "first_seen", "Unknown"},
		{"Last Analysis Date", "last_seen", "Unknown"},
	}},
}

// Build maps a history entry onto the report layout. Empty detail fields get
// their section default text.
func Build(e *scans.HistoryEntry) Document {
	summary := e.Summary
	if strings.TrimSpace(summary) == "" {
		summary = "No summary available"
	}
	doc := Document{
		Metadata: []Field{
			{Label: "Scan ID", Value: strconv.FormatInt(e.ID, 10)},
			{Label: "Input", Value: e.InputValue},
			{Label: "Type", Value: e.ScanType},
			{Label: "Risk Score", Value: e.RiskScore},
			{Label: "Timestamp", Value: e.Timestamp},
			{Label: "Summary", Value: summary},
		},
		Sections: make([]Section, 0, len(layout)),
	}
	for _, s := range layout {
		sec := Section{Title: s.title, Fields: make([]Field, 0, len(s.rows))}
		for _, r := range s.rows {
			v := strings.TrimSpace(e.Detail.Get(r.key))
			if v == "" {
				v = r.fallback
			}
			sec.Fields = append(sec.Fields, Field{Label: r.label, Key: r.key, Value: v})
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc
}

// WriteText renders the document as plain text.
func WriteText(w io.Writer, d Document) error {
	var b bytes.Buffer
	b.WriteString("Metadata\n")
	b.WriteString(strings.Repeat("=", 8) + "\n")
	for _, f := range d.Metadata {
		fmt.Fprintf(&b, "%-12s %s\n", f.Label+":", f.Value)
	}
	for _, s := range d.Sections {
		fmt.Fprintf(&b, "\n%s\n%s\n", s.Title, strings.Repeat("-", len(s.Title)))
		for _, f := range s.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
		}
	}
	_, err := w.Write(b.Bytes())
	return err
}

// WriteCSV renders section,field,value rows; metadata rows use section "Metadata".
func WriteCSV(w io.Writer, d Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"section", "field", "value"}); err != nil {
		return err
	}
	for _, f := range d.Metadata {
		if err := cw.Write([]string{"Metadata", f.Label, f.Value}); err != nil {
			return err
		}
	}
	for _, s := range d.Sections {
		for _, f := range s.Fields {
			if err := cw.Write([]string{s.Title, f.Label, f.Value}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Format of a rendered report
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat defaults to text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// ContentType for HTTP responses and archive uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render builds and encodes the report for e in format f.
func Render(e *scans.HistoryEntry, f Format) ([]byte, error) {
	doc := Build(e)
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatCSV:
		err = WriteCSV(&buf, doc)
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	default:
		err = WriteText(&buf, doc)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Text is Render in text format, as a string.
func Text(e *scans.HistoryEntry) (string, error) {
	b, err := Render(e, FormatText)
	return string(b), err
}
