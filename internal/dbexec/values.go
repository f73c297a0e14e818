package dbexec

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeSQLValue turns driver-specific scan results into values the
// JSON encoder can emit faithfully. Binary data stays []byte.
func normalizeSQLValue(driver Driver, dbType string, v any) any {
	if driver != DriverSQLServer {
		return v
	}
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch dbType {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		// Decimal text keeps full precision and is emitted as a JSON number.
		return json.Number(strings.TrimSpace(string(b)))
	case "UNIQUEIDENTIFIER":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return v
		}
		return u.String()
	}
	return v
}

// normalizePgxValue converts pgx decoded values into JSON-safe values.
func normalizePgxValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(val).String()
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		seconds := us / 1_000_000
		us -= seconds * 1_000_000
		if us > 0 {
			return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		switch {
		case val.NaN:
			return "NaN"
		case val.InfinityModifier == pgtype.Infinity:
			return "+Inf"
		case val.InfinityModifier == pgtype.NegativeInfinity:
			return "-Inf"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return json.Number(b)
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		var sb strings.Builder
		for i := int32(0); i < val.Len; i++ {
			if val.Bytes[i/8]&(0x80>>(i%8)) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		return sb.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizePgxValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizePgxValue(item)
		}
		return out
	default:
		return v
	}
}

func formatInterval(val pgtype.Interval) string {
	parts := []string{}
	if val.Months != 0 {
		years := val.Months / 12
		months := val.Months % 12
		if years != 0 {
			parts = append(parts, fmt.Sprintf("%d year(s)", years))
		}
		if months != 0 {
			parts = append(parts, fmt.Sprintf("%d mon(s)", months))
		}
	}
	if val.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
	}
	if val.Microseconds != 0 {
		dur := time.Duration(val.Microseconds) * time.Microsecond
		parts = append(parts, dur.String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}
