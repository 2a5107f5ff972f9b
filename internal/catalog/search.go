package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/filter"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// nullSymbol marks where NULLs sort in an order token: "!rating" puts them
// first, "rating!" last
const nullSymbol = "!"

// Query selects images. Every set field narrows the result.
type Query struct {
	Filter filter.Comparison
	// Tagged keeps images with (true) or without (false) any tag
	Tagged *bool
	// AnyTags keeps images carrying at least one of the tags or a descendant
	AnyTags []string
	// AllTags keeps images carrying every tag (or a descendant of each)
	AllTags []string
	// NoTags drops images carrying any of the tags or a descendant
	NoTags []string
	// Order tokens are column names, optionally prefixed with "-" for
	// descending order, plus the null markers, or "random"
	Order  []string
	Limit  int
	Offset int
	// Reachable keeps images whose location root currently exists (true)
	// or doesn't (false)
	Reachable *bool
}

// CountImages counts the images matching q. Order, Limit and Offset are ignored.
func (c *Catalog) CountImages(ctx context.Context, q Query) (int64, error) {
	var count int64
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		values := map[string]any{}
		where, err := c.buildWhere(ctx, tx, q, values)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, "SELECT COUNT(id) FROM images"+where, c.dialect.Args(values)...).Scan(&count)
		return dbError(err, "count_images")
	})
	return count, err
}

// GetImageIDs returns the ids of the images matching q
func (c *Catalog) GetImageIDs(ctx context.Context, q Query) ([]int64, error) {
	var ids []int64
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		rows, err := c.queryImages(ctx, tx, "SELECT id FROM images", q)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return dbError(err, "get_image_ids")
			}
			ids = append(ids, id)
		}
		return dbError(rows.Err(), "get_image_ids")
	})
	return ids, err
}

// SearchImages returns the images matching q with their tags loaded
func (c *Catalog) SearchImages(ctx context.Context, q Query) ([]*Image, error) {
	var images []*Image
	err := c.tx(ctx, metrics.OpSearchImages, func(tx *sql.Tx) error {
		rows, err := c.queryImages(ctx, tx, imageSelect, q)
		if err != nil {
			return err
		}
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				rows.Close()
				return dbError(err, "search_images")
			}
			images = append(images, img)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError(err, "search_images")
		}

		type root struct {
			path string
			ok   bool
		}
		roots := map[int64]root{}
		for _, img := range images {
			r, seen := roots[img.Location]
			if !seen {
				path, err := c.root(ctx, tx, img.Location)
				r = root{path: path, ok: err == nil}
				roots[img.Location] = r
			}
			img.withRoot(r.path, r.ok)
			if img.Tags, err = c.fetchTags(ctx, tx, img.ID); err != nil {
				return err
			}
		}
		return nil
	})
	c.metrics.RecordSearchResults(len(images))
	return images, err
}

func (c *Catalog) queryImages(ctx context.Context, tx *sql.Tx, selection string, q Query) (*sql.Rows, error) {
	values := map[string]any{}
	where, err := c.buildWhere(ctx, tx, q, values)
	if err != nil {
		return nil, err
	}
	ordering, err := c.buildOrdering(ImageColumns, q.Order, q.Limit, q.Offset, values)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, selection+where+ordering, c.dialect.Args(values)...)
	if err != nil {
		return nil, dbError(err, "search_images")
	}
	return rows, nil
}

func (c *Catalog) buildWhere(ctx context.Context, tx *sql.Tx, q Query, values map[string]any) (string, error) {
	comparison, err := c.filterReachable(ctx, tx, q.Filter, q.Reachable)
	if err != nil {
		return "", err
	}
	tagCheck, err := c.tagComparison(ctx, tx, q, values)
	if err != nil {
		return "", err
	}
	return c.buildFilter(ImageColumns, comparison, values, tagCheck)
}

// buildFilter validates and renders a comparison plus any extra
// conditions as " WHERE ...", or "" when there is nothing to check
func (c *Catalog) buildFilter(columns map[string]dialect.Type, comparison filter.Comparison, values map[string]any, extra ...string) (string, error) {
	var conditions []string
	if comparison != nil {
		if err := comparison.Validate(columns); err != nil {
			return "", err
		}
		rendered, err := comparison.Prepare(c.dialect, values, "")
		if err != nil {
			return "", err
		}
		conditions = append(conditions, rendered)
	}
	for _, condition := range extra {
		if condition != "" {
			conditions = append(conditions, condition)
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + dialect.Join(" AND ", conditions), nil
}

// buildOrdering renders ORDER BY, LIMIT and OFFSET. Offset only applies with
// a limit.
func (c *Catalog) buildOrdering(columns map[string]dialect.Type, order []string, limit, offset int, values map[string]any) (string, error) {
	var b strings.Builder

	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for i, token := range order {
			if token == "random" {
				if i != len(order)-1 {
					return "", invalidInput("random must be the last ordering")
				}
				parts = append(parts, "random()")
				continue
			}

			column, descending := strings.CutPrefix(token, "-")
			nulls := ""
			if trimmed, ok := strings.CutPrefix(column, nullSymbol); ok {
				column, nulls = trimmed, " NULLS FIRST"
			}
			if trimmed, ok := strings.CutSuffix(column, nullSymbol); ok {
				if nulls != "" {
					return "", invalidInput("conflicting null ordering: %s", token)
				}
				column, nulls = trimmed, " NULLS LAST"
			}

			if _, ok := columns[column]; !ok {
				return "", invalidInput("unknown property: %s", column)
			}
			ident, err := c.dialect.Identifier(column)
			if err != nil {
				return "", err
			}
			if descending {
				ident += " DESC"
			}
			parts = append(parts, ident+nulls)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(dialect.Join(", ", parts))
	}

	if limit > 0 {
		values["limit"] = limit
		placeholder, err := c.dialect.Placeholder("limit")
		if err != nil {
			return "", err
		}
		b.WriteString(" LIMIT " + placeholder)

		if offset > 0 {
			values["offset"] = offset
			placeholder, err := c.dialect.Placeholder("offset")
			if err != nil {
				return "", err
			}
			b.WriteString(" OFFSET " + placeholder)
		}
	}

	return b.String(), nil
}

// filterReachable narrows comparison to locations whose root does (or
// doesn't) exist right now
func (c *Catalog) filterReachable(ctx context.Context, tx *sql.Tx, comparison filter.Comparison, reachable *bool) (filter.Comparison, error) {
	if reachable == nil {
		return comparison, nil
	}

	locations, err := c.listLocations(ctx, tx)
	if err != nil {
		return nil, err
	}
	matching := []int64{}
	for _, location := range locations {
		root, ok := location.Root()
		if *reachable == (ok && isDir(root)) {
			matching = append(matching, location.ID)
		}
	}

	locationFilter := filter.Number{Column: "location", Comparator: filter.Equals, Value: matching}
	if comparison == nil {
		return locationFilter, nil
	}
	return filter.And(comparison, locationFilter), nil
}

// tagComparison renders the tag conditions of q. Each named tag stands for
// itself and all of its descendants.
func (c *Catalog) tagComparison(ctx context.Context, tx *sql.Tx, q Query, values map[string]any) (string, error) {
	var parts []string

	if q.Tagged != nil {
		op := "IN"
		if !*q.Tagged {
			op = "NOT IN"
		}
		parts = append(parts, "id "+op+" (SELECT DISTINCT image FROM image_tags)")
	}

	subquery := func(op string, tags []string) error {
		ids := []int64{}
		for _, tag := range tags {
			related, err := c.relatedTags(ctx, tx, tag)
			if err != nil {
				return err
			}
			ids = append(ids, related...)
		}
		condition, err := filter.Number{Column: "tag", Comparator: filter.Equals, Value: ids}.
			Prepare(c.dialect, values, "")
		if err != nil {
			return err
		}
		parts = append(parts, dialect.Format("id {} (SELECT image FROM image_tags WHERE {})", op, condition))
		return nil
	}

	if len(q.AnyTags) > 0 {
		if err := subquery("IN", q.AnyTags); err != nil {
			return "", err
		}
	}
	if len(q.NoTags) > 0 {
		if err := subquery("NOT IN", q.NoTags); err != nil {
			return "", err
		}
	}
	// one condition per tag: a single grouped count would accept an image
	// carrying two descendants of the same requested tag
	for _, tag := range q.AllTags {
		if err := subquery("IN", []string{tag}); err != nil {
			return "", err
		}
	}

	return dialect.Join(" AND ", parts), nil
}
