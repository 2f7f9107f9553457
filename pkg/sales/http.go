package sales

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/demandcast/demandcast/pkg/timeseries"
)

// HTTPSource is a generic connector that pulls per-SKU sales history from
// any REST API returning JSON, using gjson path expressions to locate the
// dates and quantities in the response.
//
// It supports:
//   - Configurable HTTP method and custom headers (Bearer tokens, API keys)
//   - Template variables in URL, headers, and body: {{.SKU}} plus anything
//     in TemplateVars
//   - Flexible date parsing (RFC3339, Unix seconds, plain YYYY-MM-DD)
//
// Example:
//
//	source := &HTTPSource{
//	    URL:          "https://erp.example.com/sales?sku={{.SKU}}",
//	    DatePath:     "rows.#.date",
//	    QuantityPath: "rows.#.qty",
//	    DateFormat:   "date",
//	}
type HTTPSource struct {
	// URL is the history endpoint (required). {{.SKU}} is substituted per
	// call.
	URL string

	// Method defaults to GET.
	Method string

	// Headers are custom HTTP headers; values support template variables.
	Headers map[string]string

	// Body is the request body template for POST endpoints.
	Body string

	// DatePath and QuantityPath are gjson paths into the response. Use "#"
	// for arrays, e.g. "rows.#.date". Both must resolve to the same number
	// of elements.
	DatePath     string
	QuantityPath string

	// DateFormat selects how dates are parsed:
	//   "rfc3339" - RFC3339 strings (default)
	//   "unix"    - Unix seconds
	//   "date"    - plain YYYY-MM-DD strings
	DateFormat string

	// ListURL is the optional trainable-SKU listing endpoint. When empty,
	// ListTrainable reports the source as history-only.
	ListURL string

	// SKUPath and RecordsPath locate the SKU identifiers and record counts
	// in the listing response. NamePath is optional.
	SKUPath     string
	NamePath    string
	RecordsPath string

	// HTTPClient is optional; a default client with timeout is used when
	// nil.
	HTTPClient *http.Client

	// TemplateVars are extra variables available in URL, Headers, and Body
	// templates. Use for tokens and tenant identifiers.
	TemplateVars map[string]string
}

func newHTTPSource(config map[string]string) (*HTTPSource, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}
	datePath := config["datePath"]
	quantityPath := config["quantityPath"]
	if datePath == "" || quantityPath == "" {
		return nil, fmt.Errorf("http source requires 'datePath' and 'quantityPath' config")
	}

	return &HTTPSource{
		URL:          url,
		Method:       config["method"],
		Body:         config["body"],
		DatePath:     datePath,
		QuantityPath: quantityPath,
		DateFormat:   config["dateFormat"],
		ListURL:      config["listUrl"],
		SKUPath:      config["skuPath"],
		NamePath:     config["namePath"],
		RecordsPath:  config["recordsPath"],
	}, nil
}

func (h *HTTPSource) Name() string { return "http" }

// History calls the configured endpoint for one SKU and extracts its daily
// sales rows, ascending by date.
func (h *HTTPSource) History(ctx context.Context, sku string) ([]timeseries.Record, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}
	if h.DatePath == "" || h.QuantityPath == "" {
		return nil, errors.New("http source: DatePath and QuantityPath are required")
	}

	body, err := h.fetch(ctx, h.URL, map[string]any{"SKU": sku})
	if err != nil {
		return nil, err
	}

	dates := gjson.GetBytes(body, h.DatePath)
	quantities := gjson.GetBytes(body, h.QuantityPath)

	if !dates.Exists() {
		return nil, fmt.Errorf("date path %q not found in response", h.DatePath)
	}
	if !quantities.Exists() {
		return nil, fmt.Errorf("quantity path %q not found in response", h.QuantityPath)
	}

	dateArray := dates.Array()
	qtyArray := quantities.Array()

	if len(dateArray) != len(qtyArray) {
		return nil, fmt.Errorf("date count (%d) != quantity count (%d)", len(dateArray), len(qtyArray))
	}

	records := make([]timeseries.Record, 0, len(dateArray))
	for i := range dateArray {
		date, err := h.parseDate(dateArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse date[%d]: %w", i, err)
		}

		record := timeseries.Record{Date: date}
		if qtyArray[i].Type != gjson.Null {
			v := qtyArray[i].Float()
			record.Quantity = &v
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})

	return records, nil
}

// ListTrainable calls the listing endpoint and extracts SKU identifiers and
// record counts.
func (h *HTTPSource) ListTrainable(ctx context.Context) ([]SKUInfo, error) {
	if h.ListURL == "" {
		return nil, errors.New("http source: listing endpoint not configured")
	}
	if h.SKUPath == "" {
		return nil, errors.New("http source: SKUPath is required for listing")
	}

	body, err := h.fetch(ctx, h.ListURL, map[string]any{})
	if err != nil {
		return nil, err
	}

	skus := gjson.GetBytes(body, h.SKUPath)
	if !skus.Exists() {
		return nil, fmt.Errorf("sku path %q not found in response", h.SKUPath)
	}
	skuArray := skus.Array()

	var nameArray, recordsArray []gjson.Result
	if h.NamePath != "" {
		nameArray = gjson.GetBytes(body, h.NamePath).Array()
	}
	if h.RecordsPath != "" {
		recordsArray = gjson.GetBytes(body, h.RecordsPath).Array()
	}

	infos := make([]SKUInfo, 0, len(skuArray))
	for i, s := range skuArray {
		info := SKUInfo{SKU: s.String()}
		if i < len(nameArray) {
			info.Name = nameArray[i].String()
		}
		if i < len(recordsArray) {
			info.Records = int(recordsArray[i].Int())
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// fetch renders the templates, performs the request, and returns the
// response body on HTTP 200.
func (h *HTTPSource) fetch(ctx context.Context, rawURL string, data map[string]any) ([]byte, error) {
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	url, err := renderTemplate(rawURL, data)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(snippet))
	}

	return io.ReadAll(resp.Body)
}

// parseDate parses a date according to the configured format.
func (h *HTTPSource) parseDate(value gjson.Result) (time.Time, error) {
	format := h.DateFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "date":
		return time.Parse("2006-01-02", value.String())
	default:
		return time.Time{}, fmt.Errorf("unsupported date format: %s", format)
	}
}

// renderTemplate renders a text template with the given data. Strings
// without template markers pass through untouched.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
