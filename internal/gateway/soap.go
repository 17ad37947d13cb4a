package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/clbanning/mxj/v2"
)

const (
	metadataNamespace = "http://soap.sforce.com/2006/04/metadata"
	soapNamespace     = "http://schemas.xmlsoap.org/soap/envelope/"
	xsiNamespace      = "http://www.w3.org/2001/XMLSchema-instance"
)

func init() {
	mxj.XMLEscapeChars(true)
}

// Upsert sends an upsertMetadata call. Each item must carry its fullName.
func (c *Client) Upsert(ctx context.Context, kind string, items []Record) ([]UpsertResult, error) {
	envelope, err := upsertEnvelope(c.token, kind, items)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/services/Soap/m/%s", c.baseURL, c.apiVersion)
	status, body, err := c.send(ctx, http.MethodPost, endpoint, envelope, "text/xml; charset=UTF-8", "SOAPAction", `""`)
	if err != nil && len(body) == 0 {
		return nil, err
	}

	// Faults arrive with a 500 status; prefer their faultstring over the raw body.
	results, fault, perr := parseUpsertResponse(body)
	switch {
	case perr == nil && fault != "":
		return nil, &StatusError{Status: status, Errors: []RemoteError{{Message: fault}}, Body: fault}
	case err != nil:
		return nil, err
	case status != http.StatusOK:
		return nil, c.statusError(status, body)
	case perr != nil:
		return nil, fmt.Errorf("failed to decode upsert response: %w", perr)
	}
	return results, nil
}

// upsertEnvelope renders the SOAP request. Items are encoded with mxj under a
// <metadata xsi:type="kind"> element.
func upsertEnvelope(token, kind string, items []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<soapenv:Envelope xmlns:soapenv=%q xmlns:xsi=%q xmlns=%q>`, soapNamespace, xsiNamespace, metadataNamespace)
	buf.WriteString(`<soapenv:Header><SessionHeader><sessionId>`)
	if err := xml.EscapeText(&buf, []byte(token)); err != nil {
		return nil, err
	}
	buf.WriteString(`</sessionId></SessionHeader></soapenv:Header>`)
	buf.WriteString(`<soapenv:Body><upsertMetadata>`)

	for _, item := range items {
		m := mxj.Map{}
		for k, v := range item {
			m[k] = v
		}
		m["-xsi:type"] = kind
		data, err := m.Xml("metadata")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		buf.Write(data)
	}

	buf.WriteString(`</upsertMetadata></soapenv:Body></soapenv:Envelope>`)
	return buf.Bytes(), nil
}

// parseUpsertResponse extracts every <result> and any SOAP fault string.
func parseUpsertResponse(body []byte) ([]UpsertResult, string, error) {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, "", err
	}

	if faults, _ := m.ValuesForKey("faultstring"); len(faults) > 0 {
		return nil, text(faults[0]), nil
	}

	values, err := m.ValuesForKey("result")
	if err != nil {
		return nil, "", err
	}

	results := make([]UpsertResult, 0, len(values))
	for _, v := range values {
		r, ok := v.(map[string]any)
		if !ok {
			continue
		}
		results = append(results, UpsertResult{
			FullName: text(r["fullName"]),
			Created:  text(r["created"]) == "true",
			Success:  text(r["success"]) == "true",
			Errors:   soapErrors(r["errors"]),
		})
	}
	return results, "", nil
}

// soapErrors accepts a single <errors> element or a repeated list.
func soapErrors(v any) []RemoteError {
	var list []any
	switch e := v.(type) {
	case nil:
		return nil
	case []any:
		list = e
	default:
		list = []any{e}
	}

	errs := make([]RemoteError, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, RemoteError{Message: text(item)})
			continue
		}
		errs = append(errs, RemoteError{
			StatusCode: text(m["statusCode"]),
			Message:    text(m["message"]),
		})
	}
	return errs
}

// text returns the character data of a decoded element, which mxj yields
// either as a plain value or under "#text" when the element has attributes.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		return text(t["#text"])
	default:
		return fmt.Sprint(t)
	}
}
