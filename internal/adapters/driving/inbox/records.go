// Package inbox ingests documents dropped as JSON files into a watched
// directory, and decodes the JSON ingest payload shared with the CLI.
package inbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// MaxContentBytes bounds the content of one ingested document.
const MaxContentBytes = 4 << 20

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxContentBytes
	})
}

// Record is the JSON shape of one ingested document.
type Record struct {
	KBID            string    `json:"kb_id" validate:"required,max=128"`
	DocumentID      *int      `json:"document_id" validate:"required,gte=0"`
	Owner           string    `json:"owner" validate:"required,max=256"`
	Title           string    `json:"title" validate:"max=1024"`
	Content         string    `json:"content" validate:"maxbytes"`
	SourceType      string    `json:"source_type" validate:"max=64"`
	Summary         string    `json:"summary,omitempty" validate:"maxbytes"`
	Concepts        []Concept `json:"concepts" validate:"max=500,dive"`
	ExtractionError string    `json:"extraction_error,omitempty"`
}

// Concept is the JSON shape of one extracted concept.
type Concept struct {
	Name       string  `json:"name" validate:"required,max=256"`
	Category   string  `json:"category" validate:"max=64"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Validate checks the record against its field rules.
func (r *Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describe(err))
	}
	return nil
}

// ToDomain converts a validated record.
func (r *Record) ToDomain() domain.IngestRecord {
	rec := domain.IngestRecord{
		KBID:            domain.KBID(strings.TrimSpace(r.KBID)),
		Owner:           strings.TrimSpace(r.Owner),
		Title:           r.Title,
		Content:         r.Content,
		SourceType:      r.SourceType,
		Summary:         r.Summary,
		ExtractionError: r.ExtractionError,
	}
	if r.DocumentID != nil {
		rec.DocumentID = *r.DocumentID
	}
	rec.Concepts = make([]domain.Concept, 0, len(r.Concepts))
	for _, c := range r.Concepts {
		rec.Concepts = append(rec.Concepts, domain.Concept{
			Name:       c.Name,
			Category:   c.Category,
			Confidence: c.Confidence,
			DocumentID: rec.DocumentID,
		})
	}
	return rec
}

// Decode reads one record or an array of records. Every record is
// validated; the first invalid one fails the whole payload.
func Decode(r io.Reader) ([]domain.IngestRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidInput)
	}

	var raw []Record
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode records: %w", domain.ErrInvalidInput, err)
		}
	} else {
		var one Record
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("%w: decode record: %w", domain.ErrInvalidInput, err)
		}
		raw = []Record{one}
	}

	records := make([]domain.IngestRecord, 0, len(raw))
	for i := range raw {
		if err := raw[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, raw[i].ToDomain())
	}
	return records, nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
