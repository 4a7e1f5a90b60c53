package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lemma/internal/ir"
)

// StoreProgram persists a new program and its rules.
// Returns ErrProgramExists if a program with the same name is stored.
func (t *Tx) StoreProgram(ctx context.Context, p *ir.Program) error {
	if t.done {
		return ErrTxDone
	}
	exists, err := t.programExists(ctx, p.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrProgramExists, p.Name)
	}

	ns, err := marshalNamespaces(p.Namespaces)
	if err != nil {
		return fmt.Errorf("store program %s: %w", p.Name, err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO programs (name, id, description, namespaces, seq)
		VALUES (?, ?, ?, ?, ?)
	`, p.Name, p.ID, p.Description, ns, t.seq); err != nil {
		return fmt.Errorf("store program %s: %w", p.Name, err)
	}
	return t.writeProgramRules(ctx, p)
}

// UpdateProgram replaces a stored program.
// Returns ErrProgramNotFound if no program with that name is stored.
func (t *Tx) UpdateProgram(ctx context.Context, p *ir.Program) error {
	if t.done {
		return ErrTxDone
	}
	exists, err := t.programExists(ctx, p.Name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, p.Name)
	}

	ns, err := marshalNamespaces(p.Namespaces)
	if err != nil {
		return fmt.Errorf("update program %s: %w", p.Name, err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE programs SET id = ?, description = ?, namespaces = ?, seq = ?
		WHERE name = ?
	`, p.ID, p.Description, ns, t.seq, p.Name); err != nil {
		return fmt.Errorf("update program %s: %w", p.Name, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM program_rules WHERE program_name = ?`, p.Name); err != nil {
		return fmt.Errorf("update program %s: %w", p.Name, err)
	}
	return t.writeProgramRules(ctx, p)
}

// SaveProgram stores p, replacing any program with the same name.
func (t *Tx) SaveProgram(ctx context.Context, p *ir.Program) error {
	exists, err := t.programExists(ctx, p.Name)
	if err != nil {
		return err
	}
	if exists {
		return t.UpdateProgram(ctx, p)
	}
	return t.StoreProgram(ctx, p)
}

// LoadProgram reads a stored program by name.
// Returns ErrProgramNotFound if it does not exist.
func (t *Tx) LoadProgram(ctx context.Context, name string) (*ir.Program, error) {
	var description, nsJSON string
	err := t.tx.QueryRowContext(ctx, `
		SELECT description, namespaces FROM programs WHERE name = ?
	`, name).Scan(&description, &nsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", name, err)
	}
	ns, err := unmarshalNamespaces(nsJSON)
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", name, err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT rule_id FROM program_rules
		WHERE program_name = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("load program %s rules: %w", name, err)
	}
	var ruleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan program rule: %w", err)
		}
		ruleIDs = append(ruleIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate program rules: %w", err)
	}

	rules := make([]ir.Rule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		r, err := t.loadRule(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load program %s: %w", name, err)
		}
		rules = append(rules, r)
	}
	return ir.NewProgram(name, description, ns, rules...), nil
}

// ListPrograms returns stored program names, oldest first.
func (t *Tx) ListPrograms(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT name FROM programs ORDER BY seq ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan program name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return names, nil
}

// DeleteProgram removes a stored program. Rules referenced by
// justifications are kept.
func (t *Tx) DeleteProgram(ctx context.Context, name string) error {
	if t.done {
		return ErrTxDone
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM programs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete program %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete program %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return nil
}

func (t *Tx) programExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check program %s: %w", name, err)
	}
	return n > 0, nil
}

func (t *Tx) writeProgramRules(ctx context.Context, p *ir.Program) error {
	for pos, r := range p.Rules {
		if err := t.upsertRule(ctx, r); err != nil {
			return fmt.Errorf("program %s: %w", p.Name, err)
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO program_rules (program_name, position, rule_id)
			VALUES (?, ?, ?)
		`, p.Name, pos, r.ID); err != nil {
			return fmt.Errorf("program %s rule %s: %w", p.Name, r.Name, err)
		}
	}
	return nil
}
