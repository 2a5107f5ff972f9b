package catalog

import (
	"context"
	"database/sql"
	"regexp"
	"slices"
	"strings"

	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/filter"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

var tagPattern = regexp.MustCompile(`^([^/]+)(/[^/]+)*$`)

// serializeTag wraps a tag so that LIKE on a prefix only ever matches whole
// path elements: "a/b" is stored as "//a/b/".
func serializeTag(tag string) string {
	return "//" + tag + "/"
}

func deserializeTag(serialized string) string {
	if len(serialized) < 3 {
		return ""
	}
	return serialized[2 : len(serialized)-1]
}

func tagDepth(tag string) int {
	return strings.Count(tag, "/") + 1
}

func validateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return invalidInput("illegal tag name: %q", tag)
	}
	return nil
}

// likeTag is the LIKE pattern matching a tag and its descendants
func (c *Catalog) likeTag(tag string) string {
	return dialect.EscapeLike(serializeTag(tag), c.dialect.Escape()) + "%"
}

// likeClause is "name LIKE ? ESCAPE '#'"
func (c *Catalog) likeClause(column string) string {
	return column + " LIKE ? ESCAPE " + c.dialect.Literal(c.dialect.Escape())
}

// AddTag creates a tag if needed and returns its id. A supplied description
// (including a cleared one) overwrites the current description.
func (c *Catalog) AddTag(ctx context.Context, name string, description Optional[string]) (int64, error) {
	var id int64
	err := c.tx(ctx, metrics.OpAddTag, func(tx *sql.Tx) error {
		var err error
		id, err = c.addTag(ctx, tx, name, description)
		return err
	})
	return id, err
}

func (c *Catalog) addTag(ctx context.Context, tx *sql.Tx, name string, description Optional[string]) (int64, error) {
	if err := validateTag(name); err != nil {
		return 0, err
	}

	onConflict := "DO NOTHING"
	if description.Supplied() {
		onConflict = "(name) DO UPDATE SET description = excluded.description"
	}

	serialized := serializeTag(name)
	var id int64
	err := tx.QueryRowContext(ctx, c.q(`INSERT INTO tags (name, escaped_name, depth, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT `+onConflict+`
		RETURNING id`),
		serialized, dialect.EscapeLike(serialized, c.dialect.Escape()), tagDepth(name), description.arg(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, c.q("SELECT id FROM tags WHERE name = ?"), serialized).Scan(&id)
	}
	if err != nil {
		return 0, dbError(err, "add_tag")
	}
	return id, nil
}

// tagIDs adds every tag and returns their ids in order
func (c *Catalog) tagIDs(ctx context.Context, tx *sql.Tx, tags []string) ([]int64, error) {
	ids := make([]int64, 0, len(tags))
	for _, tag := range tags {
		id, err := c.addTag(ctx, tx, tag, Unset[string]())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MoveTag renames a tag. With cascade its descendants move too. Moving onto
// an existing tag merges the two, keeping each image tagged once. It
// returns how many tags were moved.
func (c *Catalog) MoveTag(ctx context.Context, current, target string, cascade bool) (int, error) {
	if err := validateTag(current); err != nil {
		return 0, err
	}
	if err := validateTag(target); err != nil {
		return 0, err
	}

	count := 0
	err := c.tx(ctx, metrics.OpMoveTag, func(tx *sql.Tx) error {
		query, arg := "SELECT name, id FROM tags WHERE name = ?", serializeTag(current)
		if cascade {
			// moving deeper renames the deepest tags first so no rename
			// lands on a name still waiting to be moved
			direction := "ASC"
			if tagDepth(current) < tagDepth(target) {
				direction = "DESC"
			}
			query = "SELECT name, id FROM tags WHERE " + c.likeClause("name") + " ORDER BY depth " + direction
			arg = c.likeTag(current)
		}

		type row struct {
			name string
			id   int64
		}
		var matched []row
		rows, err := tx.QueryContext(ctx, c.q(query), arg)
		if err != nil {
			return dbError(err, "move_tag")
		}
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.name, &r.id); err != nil {
				rows.Close()
				return dbError(err, "move_tag")
			}
			matched = append(matched, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError(err, "move_tag")
		}

		for _, r := range matched {
			renamed := serializeTag(target + deserializeTag(r.name)[len(current):])

			var existing int64
			err := tx.QueryRowContext(ctx, c.q("SELECT id FROM tags WHERE name = ?"), renamed).Scan(&existing)
			switch {
			case err == nil && existing == r.id:
				// already named that
				continue
			case err == nil:
				_, err = tx.ExecContext(ctx, c.q(`UPDATE image_tags SET tag = ?
					WHERE tag = ? AND image NOT IN (SELECT image FROM image_tags WHERE tag = ?)`),
					existing, r.id, existing)
				if err == nil {
					_, err = tx.ExecContext(ctx, c.q("DELETE FROM tags WHERE id = ?"), r.id)
				}
			case errors.Is(err, sql.ErrNoRows):
				_, err = tx.ExecContext(ctx, c.q("UPDATE tags SET name = ?, escaped_name = ? WHERE id = ?"),
					renamed, dialect.EscapeLike(renamed, c.dialect.Escape()), r.id)
			}
			if err != nil {
				return dbError(err, "move_tag")
			}
			count++
		}
		return nil
	})
	return count, err
}

// RemoveTag deletes a tag, and with cascade every descendant. Images lose
// the tag but are otherwise untouched.
func (c *Catalog) RemoveTag(ctx context.Context, tag string, cascade bool) error {
	return c.tx(ctx, metrics.OpRemoveTag, func(tx *sql.Tx) error {
		query, arg := "DELETE FROM tags WHERE name = ?", serializeTag(tag)
		if cascade {
			query, arg = "DELETE FROM tags WHERE "+c.likeClause("name"), c.likeTag(tag)
		}
		if _, err := tx.ExecContext(ctx, c.q(query), arg); err != nil {
			return dbError(err, "remove_tag")
		}
		return nil
	})
}

// GetTag returns a tag's description and, when asked, the names of its
// immediate children. A tag that doesn't exist has no description.
func (c *Catalog) GetTag(ctx context.Context, tag string, children bool) (*Tag, error) {
	result := &Tag{Name: tag, Children: []string{}}
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		serialized := serializeTag(tag)
		err := tx.QueryRowContext(ctx, c.q("SELECT description FROM tags WHERE name = ?"), serialized).
			Scan(&result.Description)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return dbError(err, "get_tag")
		}
		if !children {
			return nil
		}

		pattern := dialect.EscapeLike(serialized, c.dialect.Escape()) + "_%"
		rows, err := tx.QueryContext(ctx, c.q("SELECT name FROM tags WHERE "+c.likeClause("name")), pattern)
		if err != nil {
			return dbError(err, "get_tag")
		}
		defer rows.Close()

		skip := len(tag) + 1
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return dbError(err, "get_tag")
			}
			child, _, _ := strings.Cut(deserializeTag(name)[skip:], "/")
			if !slices.Contains(result.Children, child) {
				result.Children = append(result.Children, child)
			}
		}
		slices.Sort(result.Children)
		return dbError(rows.Err(), "get_tag")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllTagNames returns every tag name, sorted
func (c *Catalog) AllTagNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.eachTag(ctx, func(name string, _ *string) {
		names = append(names, name)
	})
	slices.Sort(names)
	return names, err
}

// AllTags returns the tag tree. Parents that were never created themselves
// appear with no description.
func (c *Catalog) AllTags(ctx context.Context) (map[string]*TagNode, error) {
	tree := map[string]*TagNode{}
	err := c.eachTag(ctx, func(name string, description *string) {
		current := tree
		parts := strings.Split(name, "/")
		for _, part := range parts[:len(parts)-1] {
			node, ok := current[part]
			if !ok {
				node = &TagNode{Children: map[string]*TagNode{}}
				current[part] = node
			}
			current = node.Children
		}

		leaf := parts[len(parts)-1]
		if node, ok := current[leaf]; ok {
			node.Description = description
		} else {
			current[leaf] = &TagNode{Description: description, Children: map[string]*TagNode{}}
		}
	})
	return tree, err
}

func (c *Catalog) eachTag(ctx context.Context, fn func(name string, description *string)) error {
	return c.tx(ctx, "", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT name, description FROM tags")
		if err != nil {
			return dbError(err, "all_tags")
		}
		defer rows.Close()

		for rows.Next() {
			var (
				name        string
				description *string
			)
			if err := rows.Scan(&name, &description); err != nil {
				return dbError(err, "all_tags")
			}
			fn(deserializeTag(name), description)
		}
		return dbError(rows.Err(), "all_tags")
	})
}

// TagCount is a tag and how many of the requested images carry it
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// GetTagSet counts the tags on a set of images, most common first. Tags on
// fewer than minimum images are left out.
func (c *Catalog) GetTagSet(ctx context.Context, imageIDs []int64, minimum int) ([]TagCount, error) {
	if imageIDs == nil {
		imageIDs = []int64{}
	}
	var counts []TagCount
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		values := map[string]any{"minimum": minimum}
		condition, err := filter.Number{Column: "image", Comparator: filter.Equals, Value: imageIDs}.
			Prepare(c.dialect, values, "")
		if err != nil {
			return err
		}
		placeholder, err := c.dialect.Placeholder("minimum")
		if err != nil {
			return err
		}

		query := dialect.Format(`SELECT tags.name, COUNT(image_tags.image)
			FROM image_tags JOIN tags ON tags.id = image_tags.tag
			WHERE {}
			GROUP BY tags.name
			HAVING COUNT(image_tags.image) >= {}
			ORDER BY COUNT(image_tags.image) DESC, tags.name ASC`, condition, placeholder)

		rows, err := tx.QueryContext(ctx, query, c.dialect.Args(values)...)
		if err != nil {
			return dbError(err, "get_tag_set")
		}
		defer rows.Close()

		for rows.Next() {
			var (
				name  string
				count int64
			)
			if err := rows.Scan(&name, &count); err != nil {
				return dbError(err, "get_tag_set")
			}
			counts = append(counts, TagCount{Tag: deserializeTag(name), Count: count})
		}
		return dbError(rows.Err(), "get_tag_set")
	})
	return counts, err
}

// relatedTags returns the ids of a tag and all of its descendants
func (c *Catalog) relatedTags(ctx context.Context, tx *sql.Tx, tag string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, c.q("SELECT id FROM tags WHERE "+c.likeClause("name")), c.likeTag(tag))
	if err != nil {
		return nil, dbError(err, "related_tags")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbError(err, "related_tags")
		}
		ids = append(ids, id)
	}
	return ids, dbError(rows.Err(), "related_tags")
}
