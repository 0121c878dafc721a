package filings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

const (
	tickerIndexURL = "https://www.sec.gov/files/company_tickers.json"
	submissionsURL = "https://data.sec.gov/submissions/CIK%010d.json"
	archiveURL     = "https://www.sec.gov/Archives/edgar/data/%d/%s/%s"

	cacheFileName = "10k_filing.txt"
)

// Loader supplies the text corpus backing the research tool: the latest 10-K
// filing for a ticker, cached on disk. The corpus is returned as an immutable
// string and injected into the tool at construction; there is no ambient
// global.
type Loader struct {
	dataDir  string
	identity string // contact identity the SEC requires in the User-Agent
	client   *resty.Client
	log      *logger.Logger
}

// NewLoader creates a filings loader rooted at dataDir.
func NewLoader(dataDir, identity string) *Loader {
	return &Loader{
		dataDir:  dataDir,
		identity: identity,
		client: resty.New().
			SetTimeout(60 * time.Second).
			SetHeader("User-Agent", "aegis research agent "+identity),
		log: logger.Get().With("component", "filings"),
	}
}

// Load returns the 10-K corpus for ticker. A cached copy wins; otherwise the
// filing is fetched from EDGAR and cached. Failures yield an empty corpus,
// never an error that blocks startup; the research tool reports
// unavailability instead.
func (l *Loader) Load(ctx context.Context, ticker string) string {
	ticker = strings.ToUpper(ticker)

	cachePath := filepath.Join(l.dataDir, ticker, cacheFileName)
	if content, err := os.ReadFile(cachePath); err == nil && len(content) > 0 {
		l.log.Infof("Loaded cached 10-K for %s (%d chars)", ticker, len(content))
		return string(content)
	}

	if l.identity == "" {
		l.log.Warnf("No EDGAR identity configured and no cached filing for %s; research corpus will be empty", ticker)
		return ""
	}

	content, err := l.fetch(ctx, ticker)
	if err != nil {
		l.log.Errorf("Failed to fetch 10-K for %s: %v", ticker, err)
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
		if err := os.WriteFile(cachePath, []byte(content), 0o644); err != nil {
			l.log.Warnf("Failed to cache filing: %v", err)
		}
	}

	l.log.Infof("Downloaded 10-K for %s (%d chars)", ticker, len(content))
	return content
}

// fetch walks EDGAR: ticker index, company submissions, latest 10-K document.
func (l *Loader) fetch(ctx context.Context, ticker string) (string, error) {
	cik, err := l.lookupCIK(ctx, ticker)
	if err != nil {
		return "", err
	}

	accession, document, err := l.latestTenK(ctx, cik)
	if err != nil {
		return "", err
	}

	resp, err := l.client.R().SetContext(ctx).
		Get(fmt.Sprintf(archiveURL, cik, accession, document))
	if err != nil {
		return "", errors.Wrap(err, "fetch filing document")
	}
	if resp.IsError() {
		return "", errors.Newf("filing document request returned %d", resp.StatusCode())
	}

	return stripHTML(string(resp.Body())), nil
}

func (l *Loader) lookupCIK(ctx context.Context, ticker string) (int, error) {
	resp, err := l.client.R().SetContext(ctx).Get(tickerIndexURL)
	if err != nil {
		return 0, errors.Wrap(err, "fetch ticker index")
	}
	if resp.IsError() {
		return 0, errors.Newf("ticker index request returned %d", resp.StatusCode())
	}

	var index map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(resp.Body(), &index); err != nil {
		return 0, errors.Wrap(err, "decode ticker index")
	}

	for _, entry := range index {
		if strings.EqualFold(entry.Ticker, ticker) {
			return entry.CIK, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrNotFound, "ticker %s not in EDGAR index", ticker)
}

func (l *Loader) latestTenK(ctx context.Context, cik int) (accession, document string, err error) {
	resp, err := l.client.R().SetContext(ctx).
		Get(fmt.Sprintf(submissionsURL, cik))
	if err != nil {
		return "", "", errors.Wrap(err, "fetch submissions")
	}
	if resp.IsError() {
		return "", "", errors.Newf("submissions request returned %d", resp.StatusCode())
	}

	var submissions struct {
		Filings struct {
			Recent struct {
				Form            []string `json:"form"`
				AccessionNumber []string `json:"accessionNumber"`
				PrimaryDocument []string `json:"primaryDocument"`
			} `json:"recent"`
		} `json:"filings"`
	}
	if err := json.Unmarshal(resp.Body(), &submissions); err != nil {
		return "", "", errors.Wrap(err, "decode submissions")
	}

	recent := submissions.Filings.Recent
	for i, form := range recent.Form {
		if form == "10-K" {
			// Accession numbers are dashed in the index but not in the archive path
			accession = strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
			return accession, recent.PrimaryDocument[i], nil
		}
	}
	return "", "", errors.Wrap(errors.ErrNotFound, "no 10-K filing in recent submissions")
}

// stripHTML reduces a filing document to searchable plain text.
func stripHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}

	// Collapse the whitespace runs left behind by removed markup
	return strings.Join(strings.Fields(b.String()), " ")
}
