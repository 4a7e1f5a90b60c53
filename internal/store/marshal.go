package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/lemma/internal/ir"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanFact scans a row selected with querysql.FactColumns.
func scanFact(row scanner) (ir.Fact, error) {
	var (
		f                 ir.Fact
		s, p, o, c        string
		createdAt         int64
		deletedAt         sql.NullInt64
		inferred, deleted int
	)
	if err := row.Scan(&f.ID, &s, &p, &o, &c, &f.Creator, &createdAt, &deletedAt, &inferred, &deleted); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact: %w", err)
	}

	var err error
	if f.Subject, err = ir.DecodeNode(s); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact %s subject: %w", f.ID, err)
	}
	if f.Predicate, err = ir.DecodeNode(p); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact %s predicate: %w", f.ID, err)
	}
	if f.Object, err = ir.DecodeNode(o); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact %s object: %w", f.ID, err)
	}
	if f.Context, err = ir.DecodeNode(c); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact %s context: %w", f.ID, err)
	}

	f.CreatedAt = time.Unix(0, createdAt).UTC()
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64).UTC()
		f.DeletedAt = &t
	}
	f.Inferred = inferred != 0
	f.Deleted = deleted != 0
	return f, nil
}

// collectFacts drains rows into a slice. Returns an empty slice (not nil)
// when there are no rows.
func collectFacts(rows *sql.Rows) ([]ir.Fact, error) {
	defer rows.Close()

	facts := []ir.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

// marshalPattern converts a pattern to canonical JSON TEXT: a four element
// array of encoded fields.
func marshalPattern(p ir.Pattern) (string, error) {
	data, err := ir.MarshalCanonical(patternArray(p))
	if err != nil {
		return "", fmt.Errorf("marshal pattern: %w", err)
	}
	return string(data), nil
}

// marshalBody converts rule body patterns to canonical JSON TEXT.
func marshalBody(body []ir.Pattern) (string, error) {
	items := make([]any, len(body))
	for i, p := range body {
		items[i] = patternArray(p)
	}
	data, err := ir.MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}

func patternArray(p ir.Pattern) []any {
	enc := p.Encoded()
	return []any{enc[0], enc[1], enc[2], enc[3]}
}

func unmarshalPattern(data string) (ir.Pattern, error) {
	var enc [4]string
	if err := json.Unmarshal([]byte(data), &enc); err != nil {
		return ir.Pattern{}, fmt.Errorf("unmarshal pattern: %w", err)
	}
	return ir.DecodePattern(enc)
}

func unmarshalBody(data string) ([]ir.Pattern, error) {
	var encs [][4]string
	if err := json.Unmarshal([]byte(data), &encs); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	body := make([]ir.Pattern, len(encs))
	for i, enc := range encs {
		p, err := ir.DecodePattern(enc)
		if err != nil {
			return nil, fmt.Errorf("unmarshal body[%d]: %w", i, err)
		}
		body[i] = p
	}
	return body, nil
}

// marshalNamespaces converts a prefix table to canonical JSON TEXT.
func marshalNamespaces(ns map[string]string) (string, error) {
	obj := make(map[string]any, len(ns))
	for k, v := range ns {
		obj[k] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal namespaces: %w", err)
	}
	return string(data), nil
}

func unmarshalNamespaces(data string) (map[string]string, error) {
	ns := map[string]string{}
	if data == "" || data == "{}" {
		return ns, nil
	}
	if err := json.Unmarshal([]byte(data), &ns); err != nil {
		return nil, fmt.Errorf("unmarshal namespaces: %w", err)
	}
	return ns, nil
}
