package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/store"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrValidation, name, c.Param(name))
	}
	return id, nil
}

func pageRequest(c *gin.Context) (store.PageRequest, error) {
	var page store.PageRequest
	var err error
	if raw := c.Query("page"); raw != "" {
		if page.Page, err = strconv.Atoi(raw); err != nil {
			return page, fmt.Errorf("%w: page must be a number", models.ErrValidation)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if page.Limit, err = strconv.Atoi(raw); err != nil {
			return page, fmt.Errorf("%w: limit must be a number", models.ErrValidation)
		}
	}
	return page.Normalize(), nil
}

// orderFilter reads status, from, to and search. status may repeat or be comma separated.
func orderFilter(c *gin.Context) (store.OrderFilter, error) {
	var filter store.OrderFilter

	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := models.ParseOrderStatus(part)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.CreatedFrom, err = parseTime(c.Query("from"), false); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime(c.Query("to"), true); err != nil {
		return filter, err
	}
	if !filter.CreatedFrom.IsZero() && !filter.CreatedTo.IsZero() && !filter.CreatedFrom.Before(filter.CreatedTo) {
		return filter, fmt.Errorf("%w: from must be before to", models.ErrValidation)
	}

	filter.Search = strings.TrimSpace(c.Query("search"))
	return filter, nil
}

// parseTime accepts RFC3339 or a plain date. A plain upper bound covers the whole day.
func parseTime(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither RFC3339 nor YYYY-MM-DD", models.ErrValidation, raw)
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
