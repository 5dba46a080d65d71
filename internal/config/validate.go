package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalid is returned by Check when any issue is an error.
var ErrInvalid = errors.New("config: invalid job")

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the job
// file, e.g. "graph.edge_type[0].src_tag".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownStorage lists the backends wired by storage/all.
var knownStorage = map[string]struct{}{
	"postgres": {},
	"mssql":    {},
	"sqlite":   {},
	"mysql":    {},
}

// ValidateJob lints j without touching the network. Checks that need the
// graph schema (edge bindings against actual edge types, columns against
// declared fields) happen again when a partition starts.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(j.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and logs")
	}
	mode := j.ModeOrDefault()
	if mode != ModeWrite && mode != ModeRead {
		add(SeverityError, "mode", "unknown mode %q; want %q or %q", j.Mode, ModeWrite, ModeRead)
	}

	issues = append(issues, validateGraph(j.Graph, mode)...)
	issues = append(issues, validateStorage(j, mode)...)

	if j.Runtime.MaxParallel < 0 {
		add(SeverityError, "runtime.max_parallel", "must be >= 0")
	}
	if j.Runtime.ChannelBuffer < 0 {
		add(SeverityError, "runtime.channel_buffer", "must be >= 0")
	}
	if j.Runtime.TrimStrings && !j.Runtime.NormalizeStrings {
		add(SeverityWarning, "runtime.trim_strings", "has no effect unless normalize_strings is set")
	}
	if j.Dirty.Path != "" && mode == ModeRead {
		add(SeverityWarning, "dirty.path", "read mode produces no dirty records")
	}
	return issues
}

func validateGraph(g Graph, mode string) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if len(g.Addresses) == 0 {
		add(SeverityError, "graph.addresses", "at least one graphd address is required")
	}
	for i, a := range g.Addresses {
		if _, _, err := net.SplitHostPort(a); err != nil {
			add(SeverityError, fmt.Sprintf("graph.addresses[%d]", i), "%q is not host:port", a)
		}
	}
	if g.Username == "" {
		add(SeverityError, "graph.username", "must not be empty")
	}
	if g.Password == "" {
		add(SeverityError, "graph.password", "must not be empty")
	}
	if g.Space == "" {
		add(SeverityError, "graph.space", "must not be empty")
	}
	if g.BatchSize < 0 {
		add(SeverityError, "graph.batch_size", "must be >= 0; 0 means %d", DefaultBatchSize)
	}
	if g.TimeoutMS < 0 {
		add(SeverityError, "graph.timeout_ms", "must be >= 0")
	}

	switch mode {
	case ModeWrite:
		if len(g.Table) == 0 {
			add(SeverityError, "graph.table", "write mode needs at least one tag or edge type")
		}
		if len(g.Column) == 0 {
			add(SeverityError, "graph.column", "write mode needs the column order of incoming rows")
		}
		if len(g.QuerySQL) > 0 {
			add(SeverityWarning, "graph.query_sql", "ignored in write mode")
		}
		if g.Where != "" {
			add(SeverityWarning, "graph.where", "ignored in write mode")
		}
	case ModeRead:
		if len(g.Table) == 0 && len(g.QuerySQL) == 0 {
			add(SeverityError, "graph.table", "either table or query_sql must be set")
		}
		if len(g.QuerySQL) == 0 && len(g.Column) == 0 {
			add(SeverityError, "graph.column", "synthesized lookups need the properties to yield")
		}
		if len(g.QuerySQL) > 0 && g.Where != "" {
			add(SeverityWarning, "graph.where", "ignored when query_sql is set")
		}
		if len(g.EdgeType) > 0 {
			add(SeverityWarning, "graph.edge_type", "ignored in read mode")
		}
	}

	for i, e := range g.EdgeType {
		base := fmt.Sprintf("graph.edge_type[%d]", i)
		for _, f := range []struct{ name, v string }{
			{"src_tag", e.SrcTag}, {"src_primary_key", e.SrcPrimaryKey},
			{"dst_tag", e.DstTag}, {"dst_primary_key", e.DstPrimaryKey},
		} {
			if f.v == "" {
				add(SeverityError, base+"."+f.name, "must not be empty")
			}
		}
	}
	if mode == ModeWrite && len(g.EdgeType) > len(g.Table) {
		add(SeverityWarning, "graph.edge_type", "%d bindings for %d tables; extra bindings are ignored",
			len(g.EdgeType), len(g.Table))
	}
	return issues
}

func validateStorage(j Job, mode string) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	s := j.Storage
	if strings.TrimSpace(s.Kind) == "" {
		add(SeverityError, "storage.kind", "must not be empty")
	} else if _, ok := knownStorage[s.Kind]; !ok {
		add(SeverityError, "storage.kind", "unknown storage kind %q", s.Kind)
	}
	if s.DB.DSN == "" {
		add(SeverityError, "storage.db.dsn", "must not be empty")
	}

	switch mode {
	case ModeWrite:
		if s.DB.Table == "" && len(s.DB.Queries) == 0 {
			add(SeverityError, "storage.db.table", "write mode reads from table or queries; both are empty")
		}
		if len(s.DB.Columns) > 0 && len(s.DB.Columns) != len(j.Graph.Column) {
			add(SeverityError, "storage.db.columns", "%d columns but graph.column has %d",
				len(s.DB.Columns), len(j.Graph.Column))
		}
		if len(s.DB.PreSQL) > 0 {
			add(SeverityWarning, "storage.db.pre_sql", "only runs in read mode")
		}
		if s.DB.CreateTable {
			add(SeverityWarning, "storage.db.create_table", "only applies in read mode")
		}
	case ModeRead:
		if s.DB.Table == "" {
			add(SeverityError, "storage.db.table", "read mode loads into a table; it is empty")
		}
		if len(s.DB.Queries) > 0 {
			add(SeverityWarning, "storage.db.queries", "ignored in read mode")
		}
		if len(j.SQLColumns()) == 0 {
			add(SeverityError, "storage.db.columns", "read mode needs the insert column list")
		}
	}
	return issues
}

// Check validates j and returns an error wrapping ErrInvalid when any issue
// is an error, together with all issues.
func Check(j Job) ([]Issue, error) {
	issues := ValidateJob(j)
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) == 0 {
		return issues, nil
	}
	return issues, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
