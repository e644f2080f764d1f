// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// EFetch PubmedArticleSet XML structures.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			Title    markupText   `xml:"ArticleTitle"`
			Abstract []markupText `xml:"Abstract>AbstractText"`
			Authors  []struct {
				LastName       string `xml:"LastName"`
				ForeName       string `xml:"ForeName"`
				Initials       string `xml:"Initials"`
				CollectiveName string `xml:"CollectiveName"`
			} `xml:"AuthorList>Author"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	ArticleIDs []struct {
		Type  string `xml:"IdType,attr"`
		Value string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

// markupText collects the character data of an element, flattening inline
// markup such as <i> or <sup>. A Label attribute is kept as a prefix.
type markupText struct {
	Label string
	Text  string
}

func (m *markupText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "Label" {
			m.Label = a.Value
		}
	}
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	m.Text = strings.Join(strings.Fields(sb.String()), " ")
	return nil
}

// parseArticleSet converts an EFetch response into records. Articles
// without a PMID or title are skipped.
func parseArticleSet(body []byte) ([]types.ArticleRecord, error) {
	var set pubmedArticleSet
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&set); err != nil {
		return nil, err
	}

	records := make([]types.ArticleRecord, 0, len(set.Articles))
	for _, pa := range set.Articles {
		c := pa.Citation
		pmid := strings.TrimSpace(c.PMID)
		title := strings.TrimSuffix(c.Article.Title.Text, ".")
		if pmid == "" || title == "" {
			continue
		}

		r := types.ArticleRecord{
			Identifier:  pmid,
			Title:       title,
			Venue:       strings.TrimSpace(c.Article.Journal.Title),
			Year:        parseYear(c.Article.Journal.PubDate.Year, c.Article.Journal.PubDate.MedlineDate),
			ArticleType: classify(c.Article.PublicationTypes),
		}

		for _, a := range c.Article.Authors {
			switch {
			case a.CollectiveName != "":
				r.Authors = append(r.Authors, strings.TrimSpace(a.CollectiveName))
			case a.LastName != "":
				name := a.LastName
				if given := firstNonEmpty(a.ForeName, a.Initials); given != "" {
					name = given + " " + name
				}
				r.Authors = append(r.Authors, name)
			}
		}

		var parts []string
		for _, p := range c.Article.Abstract {
			if p.Text == "" {
				continue
			}
			if p.Label != "" {
				parts = append(parts, p.Label+": "+p.Text)
			} else {
				parts = append(parts, p.Text)
			}
		}
		r.Abstract = strings.Join(parts, "\n")

		for _, id := range pa.ArticleIDs {
			switch id.Type {
			case "doi":
				r.DOI = strings.TrimSpace(id.Value)
			case "pmc":
				r.IsOpenAccess = strings.TrimSpace(id.Value) != ""
			}
		}

		records = append(records, r)
	}
	return records, nil
}

// parseYear reads the structured year, falling back to the leading
// four digits of a MedlineDate such as "2019 Dec-2020 Jan".
func parseYear(year, medline string) int {
	if y, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
		return y
	}
	medline = strings.TrimSpace(medline)
	if len(medline) >= 4 && strings.IndexFunc(medline[:4], func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		y, _ := strconv.Atoi(medline[:4])
		return y
	}
	return 0
}

// classify picks the most specific publication type. "Journal Article" is
// used only when nothing more specific is listed.
func classify(pubTypes []string) string {
	var fallback string
	for _, t := range pubTypes {
		t = strings.TrimSpace(t)
		switch t {
		case "":
		case "Journal Article":
			fallback = t
		default:
			return t
		}
	}
	return fallback
}
