// Package filing converts raw 13D/13G document bytes into structured
// ownership facts. Dispatch is a strategy table keyed by form type so new
// variants are additive.
package filing

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ZackGrogan/SDEA/pkg/contracts/domain"
)

// ParseError reports a document that could not be interpreted. It always
// carries the offending accession number.
type ParseError struct {
	Accession string
	Reason    string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filing %s: %s", e.Accession, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// extractFunc extracts ownership facts from the plain text of one document.
type extractFunc func(text string, ref domain.FilingReference) ([]domain.OwnershipFact, error)

// Parser extracts OwnershipFacts from RawDocuments.
type Parser struct {
	logger     *slog.Logger
	strategies map[domain.FormType]extractFunc
}

// NewParser creates a parser with the standard 13D/13G strategy table.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{logger: logger}
	// 13D and 13G cover pages share the numbered-item layout, so the base
	// extraction is shared; amendments reuse their base form's routine.
	p.strategies = map[domain.FormType]extractFunc{
		domain.Form13D:          p.extractSchedule13,
		domain.Form13G:          p.extractSchedule13,
		domain.Form13DAmendment: p.extractSchedule13,
		domain.Form13GAmendment: p.extractSchedule13,
	}
	return p
}

// Parse converts one raw document into ownership facts, one per reporting
// person block. Missing optional fields are left nil; malformed documents
// yield a ParseError carrying the accession number.
func (p *Parser) Parse(doc domain.RawDocument) ([]domain.OwnershipFact, error) {
	ref := doc.Reference

	extract, ok := p.strategies[ref.FormType]
	if !ok {
		return nil, &ParseError{
			Accession: ref.AccessionNumber,
			Reason:    fmt.Sprintf("no extraction routine for form type %q", ref.FormType),
		}
	}

	text, err := documentText(doc.Content)
	if err != nil {
		return nil, &ParseError{
			Accession: ref.AccessionNumber,
			Reason:    "could not read document markup",
			Err:       err,
		}
	}

	facts, err := extract(text, ref)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("filing_parsed",
		slog.String("accession", ref.AccessionNumber),
		slog.String("form_type", string(ref.FormType)),
		slog.Int("holder_blocks", len(facts)))
	return facts, nil
}

// documentText strips markup and normalizes whitespace. Plain-text filings
// pass through goquery unchanged.
func documentText(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		text = string(content)
	}
	return normalizeSpace(text), nil
}

var spaceRe = regexp.MustCompile(`[ \t\r\f]+`)

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

// Cover-page item patterns. The schedules label items inconsistently
// across filers ("NAMES OF REPORTING PERSONS", "Name of Reporting Person",
// with or without item numbers), so the patterns anchor on the label text
// and take the first non-empty line that follows.
var (
	reportingPersonRe = regexp.MustCompile(`(?i)Names? of Reporting Persons?[^\n]*\n+\s*([^\n]+)`)
	sharesOwnedRe     = regexp.MustCompile(`(?i)Aggregate Amount(?: of Shares)? Beneficially Owned[^\n]*\n+\s*([\d,]+)`)
	percentRe         = regexp.MustCompile(`(?i)Percent(?:age)? of Class(?: Represented by Amount in Row)?[^\n]*\n+\s*([\d.]+)\s*%?`)
	cusipRe           = regexp.MustCompile(`(?i)CUSIP (?:No\.?|Number)[:\s]*\n?\s*([0-9A-Z]{9})`)
)

// extractSchedule13 handles 13D/13G cover pages, including amendments.
// One fact is emitted per reporting person block.
func (p *Parser) extractSchedule13(text string, ref domain.FilingReference) ([]domain.OwnershipFact, error) {
	blockStarts := reportingPersonRe.FindAllStringSubmatchIndex(text, -1)
	if len(blockStarts) == 0 {
		return nil, &ParseError{
			Accession: ref.AccessionNumber,
			Reason:    "no reporting person block found",
		}
	}

	// The CUSIP usually appears once above the first cover page.
	cusip := firstMatch(cusipRe, text)

	facts := make([]domain.OwnershipFact, 0, len(blockStarts))
	for i, loc := range blockStarts {
		blockEnd := len(text)
		if i+1 < len(blockStarts) {
			blockEnd = blockStarts[i+1][0]
		}
		block := text[loc[0]:blockEnd]

		name := strings.TrimSpace(text[loc[2]:loc[3]])
		name = cleanHolderName(name)
		if name == "" {
			// A cover page without a legible holder name cannot anchor a
			// timeline; skip the block rather than failing the document.
			p.logger.Warn("holder_block_skipped",
				slog.String("accession", ref.AccessionNumber),
				slog.Int("block", i))
			continue
		}

		fact := domain.OwnershipFact{
			CIK:        ref.CIK,
			HolderID:   HolderID(name),
			HolderName: name,
			CUSIP:      cusip,
			FilingDate: ref.FilingDate,
			FormType:   ref.FormType,
			Amendment:  ref.FormType.IsAmendment(),
			Accession:  ref.AccessionNumber,
		}

		if raw := firstMatch(sharesOwnedRe, block); raw != "" {
			if shares, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64); err == nil {
				fact.SharesOwned = &shares
			}
		}
		if raw := firstMatch(percentRe, block); raw != "" {
			if pct, err := strconv.ParseFloat(raw, 64); err == nil && pct >= 0 && pct <= 100 {
				fact.PercentOfClass = &pct
			}
		}

		facts = append(facts, fact)
	}

	if len(facts) == 0 {
		return nil, &ParseError{
			Accession: ref.AccessionNumber,
			Reason:    "no usable holder block found",
		}
	}
	return facts, nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// cleanHolderName strips item numbering and filer boilerplate that filers
// place on the same line as the holder name.
func cleanHolderName(name string) string {
	name = strings.TrimLeft(name, "1234567890.:) ")
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "N/A") || strings.EqualFold(name, "None") {
		return ""
	}
	return name
}

var holderIDStripRe = regexp.MustCompile(`[^A-Z0-9]+`)

// HolderID derives a stable holder identifier from the reported name.
// Cover pages carry no holder CIK, so the normalized name is the join key
// across a holder's filings.
func HolderID(name string) string {
	id := holderIDStripRe.ReplaceAllString(strings.ToUpper(name), "-")
	return strings.Trim(id, "-")
}
