package dbexec

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/denisenkom/go-mssqldb/msdsn"
	"github.com/golang-sql/sqlexp"
)

// messageLog drains the driver's message queue while the cursor reads the
// token stream. go-mssqldb reports row counts and SQL errors only as
// messages once a ReturnMessage is passed to Query.
type messageLog struct {
	ret      *sqlexp.ReturnMessage
	done     chan struct{}
	affected int64
	err      error
}

// streamEnd is queued after the cursor is closed and stops the drain.
type streamEnd struct{}

func newMessageLog() *messageLog {
	return &messageLog{
		ret:      &sqlexp.ReturnMessage{},
		done:     make(chan struct{}),
		affected: -1,
	}
}

// start drains messages until streamEnd. Call it after Query returns, the
// driver initializes the queue while binding arguments.
func (m *messageLog) start() {
	go func() {
		defer close(m.done)
		for {
			switch msg := m.ret.Message(context.Background()).(type) {
			case streamEnd:
				return
			case sqlexp.MsgRowsAffected:
				if m.affected < 0 {
					m.affected = 0
				}
				m.affected += msg.Count
			case sqlexp.MsgError:
				if m.err == nil {
					m.err = msg.Error
				}
			}
		}
	}()
}

// finish stops the drain and returns the summed row count, -1 when none
// was reported, and the first SQL error. The rows must be closed first.
func (m *messageLog) finish() (int64, error) {
	_ = sqlexp.ReturnMessageEnqueue(context.Background(), m.ret, streamEnd{})
	<-m.done
	return m.affected, m.err
}

// withRowCounts sets the LogRows flag on a go-mssqldb connection string.
// Without it the driver drops the counts of statements run inside
// sp_executesql, which is how every parameterized statement is sent.
// Other log flags already present are kept.
func withRowCounts(dsn string) (string, error) {
	cfg, _, err := msdsn.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid sqlserver connection string: %w", err)
	}
	if cfg.LogFlags&msdsn.LogRows != 0 {
		return dsn, nil
	}
	flags := strconv.FormatUint(uint64(cfg.LogFlags|msdsn.LogRows), 10)

	switch {
	case strings.HasPrefix(dsn, "sqlserver://"):
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid sqlserver connection string: %w", err)
		}
		q := u.Query()
		q.Set("log", flags)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		// Later keys override earlier ones in ADO and ODBC strings.
		sep := ";"
		if strings.HasSuffix(strings.TrimSpace(dsn), ";") {
			sep = ""
		}
		return dsn + sep + "log=" + flags, nil
	}
}
