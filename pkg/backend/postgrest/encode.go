package postgrest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
)

// encodeQuery renders a backend.Query as the row endpoint's query string:
// one "column=op.value" pair per filter plus select/order/limit/offset.
func encodeQuery(q backend.Query) url.Values {
	vals := url.Values{}

	if q.Columns != "" {
		vals.Set("select", q.Columns)
	}

	for _, f := range q.Filters {
		vals.Add(f.Column, encodeFilter(f))
	}

	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			if o.Desc {
				parts = append(parts, o.Column+".desc")
			} else {
				parts = append(parts, o.Column+".asc")
			}
		}
		vals.Set("order", strings.Join(parts, ","))
	}

	if q.LimitN > 0 {
		vals.Set("limit", strconv.Itoa(q.LimitN))
	}
	if q.OffsetN > 0 {
		vals.Set("offset", strconv.Itoa(q.OffsetN))
	}

	return vals
}

func encodeFilter(f backend.Filter) string {
	switch f.Op {
	case backend.OpIs:
		return "is.null"
	case backend.OpIn:
		values, _ := f.Value.([]any)
		quoted := make([]string, 0, len(values))
		for _, v := range values {
			quoted = append(quoted, quoteListValue(encodeValue(v)))
		}
		return fmt.Sprintf("in.(%s)", strings.Join(quoted, ","))
	default:
		return string(f.Op) + "." + encodeValue(f.Value)
	}
}

// encodeValue renders a filter value in the API's literal syntax.
func encodeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// quoteListValue wraps an in-list member in double quotes so values
// containing commas or parentheses survive the list syntax.
func quoteListValue(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
