package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	FormatArray    = "array"
	FormatEnvelope = "envelope"
	FormatNDJSON   = "ndjson"
	FormatObject   = "object"

	DefaultMaxRecords = 100000
)

// envelopeRecordsKey holds the records of an enveloped delivery. Every other
// top level key is inherited by each record that does not set it.
const envelopeRecordsKey = "records"

// envelopeHeader holds the correlation fields of an envelope rendered as
// text. Providers send ids as strings or numbers.
type envelopeHeader struct {
	SnapshotID string `validate:"omitempty,max=255,printascii"`
	JobID      string `validate:"omitempty,max=255,printascii"`
	Status     string `validate:"omitempty,max=64"`
}

// recordShape caps the field count of a record and requires non-empty field
// names of at most 256 bytes.
type recordShape struct {
	Fields map[string]any `validate:"max=4096,dive,keys,min=1,max=256,endkeys"`
}

// Parser turns a decoded delivery body into records. It accepts a JSON array
// of objects, an envelope object with a records array, a single object, or
// newline delimited JSON objects.
type Parser struct {
	MaxRecords int
	validate   *validator.Validate
}

func NewParser(maxRecords int) *Parser {
	return &Parser{MaxRecords: maxRecords, validate: validator.New()}
}

func (p *Parser) Parse(contentType string, body []byte) (core.ParsedPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return core.ParsedPayload{}, core.NewParseError("delivery body is empty", nil)
	}

	var (
		payload core.ParsedPayload
		err     error
	)
	switch {
	case isNDJSONContentType(contentType):
		payload, err = p.parseNDJSON(trimmed)
	case trimmed[0] == '[':
		payload, err = p.parseArray(trimmed)
	case trimmed[0] == '{':
		payload, err = p.parseObjectOrStream(trimmed)
	default:
		return core.ParsedPayload{}, core.NewParseError("delivery body must be a JSON array, object, or NDJSON stream", nil)
	}
	if err != nil {
		return core.ParsedPayload{}, err
	}
	if err := p.validateRecords(payload.Records); err != nil {
		return core.ParsedPayload{}, err
	}
	return payload, nil
}

func (p *Parser) parseArray(body []byte) (core.ParsedPayload, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return core.ParsedPayload{}, core.NewParseError("malformed JSON array", err)
	}
	records, err := p.decodeRecords(raws, nil)
	if err != nil {
		return core.ParsedPayload{}, err
	}
	return core.ParsedPayload{Format: FormatArray, Records: records}, nil
}

func (p *Parser) parseObjectOrStream(body []byte) (core.ParsedPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	var first json.RawMessage
	if err := decoder.Decode(&first); err != nil {
		return core.ParsedPayload{}, core.NewParseError("malformed JSON object", err)
	}
	if decoder.More() {
		return p.parseNDJSON(body)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return core.ParsedPayload{}, core.NewParseError("unexpected data after JSON object", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(first, &top); err != nil {
		return core.ParsedPayload{}, core.NewParseError("malformed JSON object", err)
	}
	rawRecords, enveloped := top[envelopeRecordsKey]
	if !enveloped {
		records, err := p.decodeRecords([]json.RawMessage{first}, nil)
		if err != nil {
			return core.ParsedPayload{}, err
		}
		return core.ParsedPayload{Format: FormatObject, Records: records}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(rawRecords, &raws); err != nil {
		return core.ParsedPayload{}, core.NewParseError("envelope records must be a JSON array", err)
	}

	envelope := make(map[string]any, len(top))
	for key, raw := range top {
		if key == envelopeRecordsKey {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return core.ParsedPayload{}, core.NewParseError(fmt.Sprintf("malformed envelope field %q", key), err)
		}
		envelope[key] = value
	}
	header, err := headerFrom(envelope)
	if err != nil {
		return core.ParsedPayload{}, err
	}
	if err := p.validator().Struct(header); err != nil {
		return core.ParsedPayload{}, core.NewParseError("invalid envelope header", err)
	}
	records, err := p.decodeRecords(raws, envelope)
	if err != nil {
		return core.ParsedPayload{}, err
	}
	return core.ParsedPayload{Format: FormatEnvelope, Envelope: envelope, Records: records}, nil
}

func (p *Parser) parseNDJSON(body []byte) (core.ParsedPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	var raws []json.RawMessage
	for {
		var raw json.RawMessage
		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.ParsedPayload{}, core.NewParseError(fmt.Sprintf("malformed NDJSON record %d", len(raws)), err)
		}
		raws = append(raws, raw)
		if len(raws) > p.maxRecords() {
			return core.ParsedPayload{}, p.tooManyRecords()
		}
	}
	records, err := p.decodeRecords(raws, nil)
	if err != nil {
		return core.ParsedPayload{}, err
	}
	return core.ParsedPayload{Format: FormatNDJSON, Records: records}, nil
}

func (p *Parser) decodeRecords(raws []json.RawMessage, defaults map[string]any) ([]core.ParsedRecord, error) {
	if len(raws) > p.maxRecords() {
		return nil, p.tooManyRecords()
	}
	records := make([]core.ParsedRecord, 0, len(raws))
	for index, raw := range raws {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, core.NewParseError(fmt.Sprintf("record %d must be a JSON object", index), nil)
		}
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, core.NewParseError(fmt.Sprintf("malformed record %d", index), err)
		}
		raw := append([]byte(nil), trimmed...)
		if len(defaults) > 0 {
			for key, value := range defaults {
				if _, ok := fields[key]; !ok {
					fields[key] = value
				}
			}
			// Raw is what quarantine keeps and resolution links again, so it
			// must carry the inherited fields too.
			merged, err := json.Marshal(fields)
			if err != nil {
				return nil, core.NewParseError(fmt.Sprintf("malformed record %d", index), err)
			}
			raw = merged
		}
		records = append(records, core.ParsedRecord{
			Index:  index,
			Fields: fields,
			Raw:    raw,
		})
	}
	return records, nil
}

func (p *Parser) validateRecords(records []core.ParsedRecord) error {
	validate := p.validator()
	for _, record := range records {
		if err := validate.Struct(recordShape{Fields: record.Fields}); err != nil {
			return core.NewParseError(fmt.Sprintf("record %d failed validation", record.Index), err)
		}
	}
	return nil
}

// headerFrom reads the correlation fields of an envelope. Strings and
// numbers are accepted; any other JSON type is a parse error.
func headerFrom(envelope map[string]any) (envelopeHeader, error) {
	var header envelopeHeader
	for key, target := range map[string]*string{
		"snapshot_id": &header.SnapshotID,
		"job_id":      &header.JobID,
		"status":      &header.Status,
	} {
		switch value := envelope[key].(type) {
		case nil:
		case string:
			*target = value
		case float64:
			*target = strconv.FormatFloat(value, 'f', -1, 64)
		default:
			return envelopeHeader{}, core.NewParseError(fmt.Sprintf("envelope field %q must be a string or number", key), nil)
		}
	}
	return header, nil
}

var defaultValidate = validator.New()

func (p *Parser) validator() *validator.Validate {
	if p == nil || p.validate == nil {
		return defaultValidate
	}
	return p.validate
}

func (p *Parser) maxRecords() int {
	if p != nil && p.MaxRecords > 0 {
		return p.MaxRecords
	}
	return DefaultMaxRecords
}

func (p *Parser) tooManyRecords() error {
	return core.NewParseError(fmt.Sprintf("delivery exceeds %d records", p.maxRecords()), nil)
}

func isNDJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "application/x-ndjson", "application/ndjson", "application/jsonl", "application/x-jsonlines", "application/jsonlines":
		return true
	default:
		return false
	}
}
