package graph

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	nebula "github.com/vesoft-inc/nebula-go/v3"
)

// Options configures a NebulaSession.
type Options struct {
	Addresses       []string // host:port of graphd instances
	Username        string
	Password        string
	Space           string
	Timeout         time.Duration
	MaxConnPoolSize int
}

// NebulaSession is a Session backed by one nebula-go session bound to a
// graph space. It is not safe for concurrent use; each partition opens its
// own.
type NebulaSession struct {
	pool    *nebula.ConnectionPool
	session *nebula.Session
	space   string
}

// OpenNebula connects to graphd, authenticates and switches to opts.Space.
func OpenNebula(ctx context.Context, opts Options) (*NebulaSession, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("nebula: at least one address is required")
	}
	if strings.TrimSpace(opts.Space) == "" {
		return nil, fmt.Errorf("nebula: space is required")
	}

	hosts, err := parseAddresses(opts.Addresses)
	if err != nil {
		return nil, err
	}

	conf := nebula.GetDefaultConf()
	if opts.Timeout > 0 {
		conf.TimeOut = opts.Timeout
	}
	conf.MaxConnPoolSize = 1
	if opts.MaxConnPoolSize > 0 {
		conf.MaxConnPoolSize = opts.MaxConnPoolSize
	}
	if conf.MinConnPoolSize > conf.MaxConnPoolSize {
		conf.MinConnPoolSize = conf.MaxConnPoolSize
	}

	pool, err := nebula.NewConnectionPool(hosts, conf, nebulaLogger{})
	if err != nil {
		return nil, fmt.Errorf("nebula: connection pool: %w: %w", ErrConnection, err)
	}
	session, err := pool.GetSession(opts.Username, opts.Password)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("nebula: session for user %q: %w: %w", opts.Username, ErrConnection, err)
	}

	s := &NebulaSession{pool: pool, session: session, space: opts.Space}
	if _, err := s.execute(ctx, "USE "+opts.Space); err != nil {
		s.Close()
		return nil, fmt.Errorf("nebula: use space %s: %w", opts.Space, err)
	}
	log.Printf("graph: session opened addresses=%v space=%s", opts.Addresses, opts.Space)
	return s, nil
}

// ExecuteMutation implements Mutator. NebulaGraph does not report rows
// affected for INSERT, so a successful mutation returns -1.
func (s *NebulaSession) ExecuteMutation(ctx context.Context, stmt string) (int64, error) {
	if _, err := s.execute(ctx, stmt); err != nil {
		return 0, err
	}
	return -1, nil
}

// ExecuteQuery implements Querier.
func (s *NebulaSession) ExecuteQuery(ctx context.Context, stmt string) (Result, error) {
	rs, err := s.execute(ctx, stmt)
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: rs.GetColNames()}
	n := rs.GetRowSize()
	res.Rows = make([][]Value, 0, n)
	for i := 0; i < n; i++ {
		rec, err := rs.GetRowValuesByIndex(i)
		if err != nil {
			return Result{}, fmt.Errorf("nebula: row %d: %w", i, err)
		}
		row := make([]Value, len(res.Columns))
		for j := range res.Columns {
			vw, err := rec.GetValueByIndex(j)
			if err != nil {
				return Result{}, fmt.Errorf("nebula: row %d col %d: %w", i, j, err)
			}
			v, err := convertValue(vw)
			if err != nil {
				return Result{}, fmt.Errorf("nebula: row %d col %s: %w", i, res.Columns[j], err)
			}
			row[j] = v
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// Close releases the session and the pool.
func (s *NebulaSession) Close() error {
	if s.session != nil {
		s.session.Release()
		s.session = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *NebulaSession) execute(ctx context.Context, stmt string) (*nebula.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, err := s.session.Execute(stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if !rs.IsSucceed() {
		return nil, fmt.Errorf("%w: code=%d: %s", ErrStatement, rs.GetErrorCode(), rs.GetErrorMsg())
	}
	return rs, nil
}

func convertValue(vw *nebula.ValueWrapper) (Value, error) {
	switch {
	case vw.IsNull():
		return NullValue(), nil
	case vw.IsBool():
		b, err := vw.AsBool()
		return BoolValue(b), err
	case vw.IsInt():
		n, err := vw.AsInt()
		return IntValue(n), err
	case vw.IsFloat():
		f, err := vw.AsFloat()
		return FloatValue(f), err
	case vw.IsString():
		s, err := vw.AsString()
		return StringValue(s), err
	case vw.IsDate():
		d, err := vw.AsDate()
		if err != nil {
			return Value{}, err
		}
		return DateValue(int(d.Year), int(d.Month), int(d.Day)), nil
	case vw.IsTime():
		return TimeValue(vw.String()), nil
	case vw.IsDateTime():
		return DateTimeValue(vw.String()), nil
	case vw.IsDuration():
		return DurationValue(vw.String()), nil
	default:
		return OtherValue(vw.String()), nil
	}
}

func parseAddresses(addrs []string) ([]nebula.HostAddress, error) {
	out := make([]nebula.HostAddress, 0, len(addrs))
	for _, a := range addrs {
		host, portStr, err := net.SplitHostPort(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("nebula: address %q: %w", a, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("nebula: address %q: invalid port", a)
		}
		out = append(out, nebula.HostAddress{Host: host, Port: port})
	}
	return out, nil
}

// nebulaLogger routes nebula-go's client logs into the standard logger.
type nebulaLogger struct{}

func (nebulaLogger) Info(msg string)  { log.Printf("nebula: %s", msg) }
func (nebulaLogger) Warn(msg string)  { log.Printf("nebula: WARN %s", msg) }
func (nebulaLogger) Error(msg string) { log.Printf("nebula: ERROR %s", msg) }
func (nebulaLogger) Fatal(msg string) { log.Fatalf("nebula: FATAL %s", msg) }
