package store

import (
	"fmt"
	"strconv"
	"time"
)

// dialect holds what differs between the two supported databases.
type dialect struct {
	sqlDriver string // database/sql driver name
	schema    string
	now       string // SQL expression for the current local time
	numbered  bool   // placeholders are $1, $2, ... instead of ?
	// timeArg converts a Go time into a bind argument comparable with
	// stored timestamps.
	timeArg func(time.Time) any
}

const localNow = "datetime('now','localtime')"

var dialects = map[string]dialect{
	"sqlite": {
		sqlDriver: "sqlite",
		schema:    schemaSQLite,
		now:       localNow,
		timeArg:   func(t time.Time) any { return t.Format(sqliteTimeLayout) },
	},
	"postgres": {
		sqlDriver: "pgx",
		schema:    schemaPostgres,
		now:       "NOW()",
		numbered:  true,
		timeArg:   func(t time.Time) any { return t },
	},
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999-07:00",
}

// timeCol scans a timestamp column. SQLite stores text in local time,
// Postgres hands back time.Time.
type timeCol struct{ dst *time.Time }

func (c timeCol) Scan(v any) error {
	t, err := parseTime(v)
	*c.dst = t
	return err
}

// nullTimeCol scans a nullable timestamp column.
type nullTimeCol struct{ dst **time.Time }

func (c nullTimeCol) Scan(v any) error {
	if v == nil {
		*c.dst = nil
		return nil
	}
	t, err := parseTime(v)
	if err != nil {
		return err
	}
	*c.dst = &t
	return nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.ParseInLocation(layout, t, time.Local); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("store: unrecognized timestamp %q", t)
	}
	return time.Time{}, fmt.Errorf("store: cannot scan %T as timestamp", v)
}

// Rebind rewrites ? placeholders to $1, $2, ... leaving quoted literals alone.
func Rebind(query string) string {
	out := make([]byte, 0, len(query)+8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case c == '?' && !quoted:
			n++
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(n), 10)
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
