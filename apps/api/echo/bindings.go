package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
	"github.com/trezcool/sala/core/attendance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryInt returns an integer query param, 0 when missing.
func queryInt(ctx echo.Context, name string) (int, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(core.NormalizeDigits(val))
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a number"})
	}
	return n, nil
}

// queryBool returns a boolean query param, nil when missing.
func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be true or false"})
	}
	return &b, nil
}

// queryDate returns a date query param, the zero time when missing.
func queryDate(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseDate(val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "invalid date"})
	}
	return t, nil
}

// queryList returns the values of a repeated or comma separated query param.
func queryList(ctx echo.Context, name string) []string {
	var out []string
	for _, val := range ctx.QueryParams()[name] {
		for _, v := range strings.Split(val, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// bindPage reads the `page` and `limit` query params.
func bindPage(ctx echo.Context) (core.Page, error) {
	var page core.Page
	var err error
	if page.Number, err = queryInt(ctx, "page"); err != nil {
		return page, err
	}
	if page.Size, err = queryInt(ctx, "limit"); err != nil {
		return page, err
	}
	page.Clean()
	return page, nil
}

// PeriodRequest selects a month. Month is a Khmer name, an english name or a number.
type PeriodRequest struct {
	Month string `json:"month" query:"month"`
	Year  int    `json:"year" query:"year"`
}

func (pr PeriodRequest) Period() (attendance.Period, error) {
	year := pr.Year
	if year == 0 {
		year = time.Now().Year()
	}
	return attendance.ParsePeriod(pr.Month, year)
}

// bindPeriod reads the `month` and `year` query params. The year defaults to the current year.
func bindPeriod(ctx echo.Context) (attendance.Period, error) {
	year, err := queryInt(ctx, "year")
	if err != nil {
		return attendance.Period{}, err
	}
	p, err := PeriodRequest{Month: ctx.QueryParam("month"), Year: year}.Period()
	return p, errors.Wrap(err, "parsing period")
}
