package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fioncat/csync/pkg/models"
)

// defaultLimit is applied when a list request carries no limit
// parameter. An explicit limit=0 lifts the cap.
const defaultLimit = 10

// queryUint parses an optional base-10 unsigned query parameter.
// ok is false when the parameter is absent.
func queryUint(r *http.Request, name string) (value uint64, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q: expected an unsigned integer", name, raw)
	}
	return value, true, nil
}

// queryBool parses an optional bool query parameter. Absent parameters
// return nil.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: expected a bool", name, raw)
	}
	return &value, nil
}

// queryID parses the id parameter required by single-blob operations.
func queryID(r *http.Request) (int64, error) {
	value, ok, err := queryUint(r, "id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("id is required")
	}
	return int64(value), nil
}

// parseQuery decodes the pagination and filter parameters shared by the
// list endpoints. Unknown parameters are ignored.
func parseQuery(r *http.Request) (models.Query, error) {
	q := models.Query{Limit: defaultLimit}

	offset, _, err := queryUint(r, "offset")
	if err != nil {
		return q, err
	}
	q.Offset = offset

	limit, ok, err := queryUint(r, "limit")
	if err != nil {
		return q, err
	}
	if ok {
		q.Limit = limit
	}

	q.Search = r.URL.Query().Get("search")

	after, _, err := queryUint(r, "update_after")
	if err != nil {
		return q, err
	}
	q.UpdateAfter = int64(after)

	before, _, err := queryUint(r, "update_before")
	if err != nil {
		return q, err
	}
	q.UpdateBefore = int64(before)

	return q, nil
}
