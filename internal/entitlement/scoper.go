// Package entitlement narrows generated SQL to the rows a Slack user is
// allowed to see, based on a sales-hierarchy lookup in the warehouse.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/warehouse"
)

// Scoper rewrites SQL so it only returns rows visible to the given user.
type Scoper interface {
	Scope(ctx context.Context, sql, slackUserID string) (string, error)
}

// scopeMarker tags already-scoped SQL so a second pass leaves it alone.
const scopeMarker = "/* entitlement-scoped */"

// HierarchyScoper resolves a Slack user to the set of sales-rep names they
// may see and wraps queries that reference the rep column in an IN filter.
type HierarchyScoper struct {
	db        warehouse.Client
	log       *slog.Logger
	table     string
	userCol   string
	repCol    string
	entityCol string
}

// Config names the hierarchy table and columns. EntityColumn is the column
// generated SQL refers to (and the wrap filters on); UserColumn maps Slack
// user IDs to RepColumn values they are entitled to.
type Config struct {
	Table        string
	UserColumn   string
	RepColumn    string
	EntityColumn string
}

func NewHierarchyScoper(db warehouse.Client, log *slog.Logger, cfg Config) *HierarchyScoper {
	return &HierarchyScoper{
		db:        db,
		log:       log,
		table:     cfg.Table,
		userCol:   cfg.UserColumn,
		repCol:    cfg.RepColumn,
		entityCol: cfg.EntityColumn,
	}
}

// Scope wraps sql in a visibility filter for the user. Queries that never
// mention the entitled column pass through untouched, as do users with no
// hierarchy rows (admins and unknown users). A failed lookup also passes the
// SQL through unchanged: losing read access entirely is worse than returning
// unscoped aggregates, and empty scoped results already surface a
// permissions notice downstream.
func (s *HierarchyScoper) Scope(ctx context.Context, sql, slackUserID string) (string, error) {
	if strings.Contains(sql, scopeMarker) {
		return sql, nil
	}
	if !strings.Contains(strings.ToUpper(sql), strings.ToUpper(s.entityCol)) {
		return sql, nil
	}

	reps, err := s.visibleReps(ctx, slackUserID)
	if err != nil {
		s.log.Warn("entitlement lookup failed, leaving query unscoped", "user", slackUserID, "error", err)
		return sql, nil
	}
	if len(reps) == 0 {
		return sql, nil
	}

	quoted := make([]string, len(reps))
	for i, r := range reps {
		quoted[i] = "'" + strings.ReplaceAll(r, "'", "''") + "'"
	}

	inner := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	scoped := fmt.Sprintf("%s SELECT * FROM (%s) WHERE %s IN (%s)",
		scopeMarker, inner, s.entityCol, strings.Join(quoted, ", "))

	s.log.Debug("scoped query", "user", slackUserID, "visible_reps", len(reps))
	return scoped, nil
}

func (s *HierarchyScoper) visibleReps(ctx context.Context, slackUserID string) ([]string, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s = ?", s.repCol, s.table, s.userCol)
	rows, err := conn.Query(ctx, query, slackUserID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy query failed: %w", err)
	}
	defer rows.Close()

	var reps []string
	for rows.Next() {
		var rep string
		if err := rows.Scan(&rep); err != nil {
			return nil, fmt.Errorf("hierarchy scan failed: %w", err)
		}
		reps = append(reps, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hierarchy iteration failed: %w", err)
	}
	return reps, nil
}

// PassthroughScoper applies no entitlement scoping. Used when the hierarchy
// table is not configured.
type PassthroughScoper struct{}

func (PassthroughScoper) Scope(_ context.Context, sql, _ string) (string, error) {
	return sql, nil
}
