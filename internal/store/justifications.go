package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lemma/internal/ir"
	"github.com/roach88/lemma/internal/querysql"
)

// StoreJustification records a justification.
//
// The derived triple and each support are resolved by ID when set, otherwise
// by their live quadruple. Inserts use ON CONFLICT(signature) DO NOTHING:
// storing a justification that already exists returns false and no error.
// Rules are upserted by their content-addressed id.
func (t *Tx) StoreJustification(ctx context.Context, j ir.Justification) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}

	tripleID, err := t.resolveFactID(ctx, j.Triple)
	if err != nil {
		return false, fmt.Errorf("store justification: triple: %w", err)
	}

	var supportIDs []string
	seen := make(map[ir.FactKey]bool, len(j.SupportingTriples))
	for _, f := range j.SupportingTriples {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		id, err := t.resolveFactID(ctx, f)
		if err != nil {
			return false, fmt.Errorf("store justification: support: %w", err)
		}
		supportIDs = append(supportIDs, id)
	}

	id := j.ID
	if id == "" {
		id = t.store.ids.Generate()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO justifications (id, fact_id, signature, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(signature) DO NOTHING
	`, id, tripleID, j.Signature(), t.seq)
	if err != nil {
		return false, fmt.Errorf("store justification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store justification: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for pos, sid := range supportIDs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO justification_supports (justification_id, fact_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, id, sid, pos); err != nil {
			return false, fmt.Errorf("store justification support: %w", err)
		}
	}

	for _, r := range j.SupportingRules {
		if err := t.upsertRule(ctx, r); err != nil {
			return false, fmt.Errorf("store justification: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO justification_rules (justification_id, rule_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, id, r.ID); err != nil {
			return false, fmt.Errorf("store justification rule: %w", err)
		}
	}
	return true, nil
}

// DeleteJustification removes a justification and its support links.
func (t *Tx) DeleteJustification(ctx context.Context, id string) error {
	if t.done {
		return ErrTxDone
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM justifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete justification %s: %w", id, err)
	}
	return nil
}

// DeleteAllJustifications removes every justification.
func (t *Tx) DeleteAllJustifications(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM justifications`); err != nil {
		return fmt.Errorf("delete justifications: %w", err)
	}
	return nil
}

// ListJustificationsForTriple returns the justifications deriving f.
// f is resolved by ID when set, so justifications of a row deleted in this
// transaction are still listed. Ordered by seq then id.
func (t *Tx) ListJustificationsForTriple(ctx context.Context, f ir.Fact) ([]ir.Justification, error) {
	id, err := t.resolveFactID(ctx, f)
	if errors.Is(err, ErrFactNotFound) {
		return []ir.Justification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list justifications: %w", err)
	}
	return t.queryJustifications(ctx, `
		SELECT id, fact_id FROM justifications
		WHERE fact_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, id)
}

// ListJustificationsSupportedBy returns the justifications that list f among
// their supports. Ordered by seq then id.
func (t *Tx) ListJustificationsSupportedBy(ctx context.Context, f ir.Fact) ([]ir.Justification, error) {
	id, err := t.resolveFactID(ctx, f)
	if errors.Is(err, ErrFactNotFound) {
		return []ir.Justification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list justifications: %w", err)
	}
	return t.queryJustifications(ctx, `
		SELECT j.id, j.fact_id FROM justifications j
		JOIN justification_supports s ON s.justification_id = j.id
		WHERE s.fact_id = ?
		ORDER BY j.seq ASC, j.id COLLATE BINARY ASC
	`, id)
}

func (t *Tx) queryJustifications(ctx context.Context, query string, args ...any) ([]ir.Justification, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query justifications: %w", err)
	}
	type header struct{ id, factID string }
	var headers []header
	for rows.Next() {
		var h header
		if err := rows.Scan(&h.id, &h.factID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan justification: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate justifications: %w", err)
	}
	rows.Close()

	out := make([]ir.Justification, 0, len(headers))
	for _, h := range headers {
		j, err := t.loadJustification(ctx, h.id, h.factID)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (t *Tx) loadJustification(ctx context.Context, id, factID string) (ir.Justification, error) {
	triple, err := t.GetFact(ctx, factID)
	if err != nil {
		return ir.Justification{}, fmt.Errorf("load justification %s: %w", id, err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+querysql.FactColumns+`
		FROM justification_supports s
		JOIN facts f ON f.id = s.fact_id
		WHERE s.justification_id = ?
		ORDER BY s.position ASC
	`, id)
	if err != nil {
		return ir.Justification{}, fmt.Errorf("load justification %s supports: %w", id, err)
	}
	supports, err := collectFacts(rows)
	if err != nil {
		return ir.Justification{}, fmt.Errorf("load justification %s supports: %w", id, err)
	}

	ruleRows, err := t.tx.QueryContext(ctx, `
		SELECT rule_id FROM justification_rules
		WHERE justification_id = ?
		ORDER BY rule_id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return ir.Justification{}, fmt.Errorf("load justification %s rules: %w", id, err)
	}
	var ruleIDs []string
	for ruleRows.Next() {
		var rid string
		if err := ruleRows.Scan(&rid); err != nil {
			ruleRows.Close()
			return ir.Justification{}, fmt.Errorf("scan rule id: %w", err)
		}
		ruleIDs = append(ruleIDs, rid)
	}
	ruleRows.Close()
	if err := ruleRows.Err(); err != nil {
		return ir.Justification{}, fmt.Errorf("iterate rule ids: %w", err)
	}

	rules := make([]ir.Rule, 0, len(ruleIDs))
	for _, rid := range ruleIDs {
		r, err := t.loadRule(ctx, rid)
		if err != nil {
			return ir.Justification{}, fmt.Errorf("load justification %s: %w", id, err)
		}
		rules = append(rules, r)
	}

	return ir.Justification{
		ID:                id,
		Triple:            triple,
		SupportingTriples: supports,
		SupportingRules:   rules,
	}, nil
}

// resolveFactID returns f.ID, or the id of the live row with f's quadruple.
func (t *Tx) resolveFactID(ctx context.Context, f ir.Fact) (string, error) {
	if f.ID != "" {
		return f.ID, nil
	}
	row, ok, err := t.findLive(ctx, f.Key())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFactNotFound, f)
	}
	return row.ID, nil
}

// upsertRule stores a rule by id. The description is refreshed because it is
// not part of the id.
func (t *Tx) upsertRule(ctx context.Context, r ir.Rule) error {
	head, err := marshalPattern(r.Head)
	if err != nil {
		return err
	}
	body, err := marshalBody(r.Body)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO rules (id, name, description, head, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET description = excluded.description
	`, r.ID, r.Name, r.Description, head, body); err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.Name, err)
	}
	t.rules[r.ID] = r.Clone()
	return nil
}

func (t *Tx) loadRule(ctx context.Context, id string) (ir.Rule, error) {
	if r, ok := t.rules[id]; ok {
		return r.Clone(), nil
	}
	var r ir.Rule
	var head, body string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, description, head, body FROM rules WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Description, &head, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Rule{}, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return ir.Rule{}, fmt.Errorf("load rule %s: %w", id, err)
	}
	if r.Head, err = unmarshalPattern(head); err != nil {
		return ir.Rule{}, fmt.Errorf("load rule %s: %w", id, err)
	}
	if r.Body, err = unmarshalBody(body); err != nil {
		return ir.Rule{}, fmt.Errorf("load rule %s: %w", id, err)
	}
	t.rules[id] = r
	return r.Clone(), nil
}
