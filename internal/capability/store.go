package capability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/log"
)

// Sources recorded alongside a stored decision.
const (
	SourcePrompt   = "prompt"
	SourceOperator = "operator"
)

// Grant is one persisted decision.
type Grant struct {
	Capability alert.Capability `json:"capability"`
	Decision   Decision         `json:"decision"`
	Source     string           `json:"source"`
	DecidedAt  time.Time        `json:"decided_at"`
}

// Store is a Gate backed by the capability_grants table. Answers given at a
// prompt are remembered. A denial set by an operator is final and is never
// re-prompted.
type Store struct {
	db       *sql.DB
	prompter Prompter
	now      func() time.Time
}

func NewStore(db *sql.DB, prompter Prompter) *Store {
	if prompter == nil {
		prompter = DenyPrompter{}
	}
	return &Store{db: db, prompter: prompter, now: time.Now}
}

func (s *Store) Check(c alert.Capability) Decision {
	g, err := s.Get(context.Background(), c)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.WithComponent("capability").Warn("grant lookup failed", "capability", c, "error", err)
		}
		return Denied
	}
	return g.Decision
}

func (s *Store) Request(ctx context.Context, c alert.Capability) (Decision, error) {
	if g, err := s.Get(ctx, c); err == nil && g.Decision == Denied && g.Source == SourceOperator {
		return Denied, nil
	}

	ok, err := s.prompter.Ask(ctx, c)
	if err != nil {
		return Denied, fmt.Errorf("prompt for %s: %w", c, err)
	}
	d := Denied
	if ok {
		d = Granted
	}
	if err := s.Set(ctx, c, d, SourcePrompt); err != nil {
		return d, err
	}
	return d, nil
}

// Get returns the stored grant or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, c alert.Capability) (Grant, error) {
	var (
		g         Grant
		name      string
		decision  string
		decidedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT capability, decision, source, decided_at FROM capability_grants WHERE capability = ?;`,
		string(c),
	).Scan(&name, &decision, &g.Source, &decidedAt)
	if err != nil {
		return Grant{}, err
	}
	g.Capability = alert.Capability(name)
	g.Decision = Decision(decision)
	g.DecidedAt, _ = time.Parse(time.RFC3339Nano, decidedAt)
	return g, nil
}

// Set records a decision, replacing any earlier one.
func (s *Store) Set(ctx context.Context, c alert.Capability, d Decision, source string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO capability_grants(capability, decision, source, decided_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(capability) DO UPDATE SET
  decision = excluded.decision,
  source = excluded.source,
  decided_at = excluded.decided_at;`,
		string(c), string(d), source, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store grant %s: %w", c, err)
	}
	return nil
}

// Reset forgets the decision so the next attempt prompts again.
func (s *Store) Reset(ctx context.Context, c alert.Capability) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM capability_grants WHERE capability = ?;`, string(c)); err != nil {
		return fmt.Errorf("reset grant %s: %w", c, err)
	}
	return nil
}

// List returns every stored grant ordered by capability.
func (s *Store) List(ctx context.Context) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT capability, decision, source, decided_at FROM capability_grants ORDER BY capability;`)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var (
			g         Grant
			name      string
			decision  string
			decidedAt string
		)
		if err := rows.Scan(&name, &decision, &g.Source, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.Capability = alert.Capability(name)
		g.Decision = Decision(decision)
		g.DecidedAt, _ = time.Parse(time.RFC3339Nano, decidedAt)
		out = append(out, g)
	}
	return out, rows.Err()
}
