package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
	"github.com/picpocket/picpocket/internal/pathmatch"
)

// TaskSpec defines a task
type TaskSpec struct {
	Name          string
	Source        Ref
	Destination   Ref
	Description   *string
	Configuration TaskConfiguration
}

// RunOptions control a task run
type RunOptions struct {
	// Since overrides the stored last run time
	Since *time.Time
	// Full ignores any last run time and considers every file
	Full bool
	// Tags are applied to copied images on top of the task's own tags
	Tags []string
}

const taskSelect = `SELECT tasks.name, tasks.source, tasks.destination, tasks.description,
tasks.configuration, task_invocations.last_ran
FROM tasks LEFT JOIN task_invocations ON task_invocations.task = tasks.name`

// AddTask stores a task. Replacing an existing task requires force. Either
// way the task's last run time is cleared so its next run is a full one.
func (c *Catalog) AddTask(ctx context.Context, spec TaskSpec, force bool) error {
	return c.tx(ctx, metrics.OpAddTask, func(tx *sql.Tx) error {
		return c.addTask(ctx, tx, spec, force)
	})
}

func (c *Catalog) addTask(ctx context.Context, tx *sql.Tx, spec TaskSpec, force bool) error {
	if strings.TrimSpace(spec.Name) == "" {
		return invalidInput("a task needs a name")
	}

	cfg := spec.Configuration
	if cfg.Source != "" {
		if _, err := pathmatch.Load(cfg.Source); err != nil {
			return err
		}
	}
	if cfg.Destination != "" {
		if err := pathmatch.ValidateFormat(cfg.Destination); err != nil {
			return err
		}
	}
	cfg.Formats = imageinfo.NormalizeFormats(cfg.Formats)
	for _, tag := range cfg.Tags {
		if err := validateTag(tag); err != nil {
			return err
		}
	}

	source, err := c.getLocation(ctx, tx, spec.Source)
	if err != nil {
		return err
	}
	if source == nil {
		return notFound("source", spec.Source.String())
	}
	destination, err := c.getLocation(ctx, tx, spec.Destination)
	if err != nil {
		return err
	}
	if destination == nil {
		return notFound("destination", spec.Destination.String())
	}

	configuration, err := jsonArg(cfg)
	if err != nil {
		return invalidInput("unencodable task configuration: %v", err)
	}

	onConflict := "DO NOTHING"
	if force {
		onConflict = `(name) DO UPDATE SET source = excluded.source, destination = excluded.destination,
			description = excluded.description, configuration = excluded.configuration`
	}

	var name string
	err = tx.QueryRowContext(ctx, c.q(`INSERT INTO tasks (name, source, destination, description, configuration)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT `+onConflict+`
		RETURNING name`),
		spec.Name, source.ID, destination.ID, spec.Description, configuration,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return conflict("failed to create task %s: if you're trying to edit a task, pass force", spec.Name)
	}
	if err != nil {
		return dbError(err, "add_task")
	}

	_, err = tx.ExecContext(ctx, c.q("UPDATE task_invocations SET last_ran = NULL WHERE task = ?"), spec.Name)
	return dbError(err, "add_task")
}

// RemoveTask deletes a task and its run history
func (c *Catalog) RemoveTask(ctx context.Context, name string) error {
	return c.tx(ctx, metrics.OpRemoveTask, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.q("DELETE FROM tasks WHERE name = ?"), name)
		return dbError(err, "remove_task")
	})
}

// GetTask returns a task or nil when there is none
func (c *Catalog) GetTask(ctx context.Context, name string) (*Task, error) {
	var task *Task
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var err error
		task, err = c.getTask(ctx, tx, name)
		return err
	})
	return task, err
}

func (c *Catalog) getTask(ctx context.Context, tx *sql.Tx, name string) (*Task, error) {
	task, err := scanTask(tx.QueryRowContext(ctx, c.q(taskSelect+" WHERE tasks.name = ?"), name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "get_task")
	}
	return task, nil
}

// ListTasks returns every task ordered by name
func (c *Catalog) ListTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, taskSelect+" ORDER BY tasks.name")
		if err != nil {
			return dbError(err, "list_tasks")
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return dbError(err, "list_tasks")
			}
			tasks = append(tasks, task)
		}
		return dbError(rows.Err(), "list_tasks")
	})
	return tasks, err
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task          Task
		configuration []byte
		lastRan       dbTime
	)
	err := row.Scan(&task.Name, &task.Source, &task.Destination, &task.Description, &configuration, &lastRan)
	if err != nil {
		return nil, err
	}
	if len(configuration) > 0 {
		if err := json.Unmarshal(configuration, &task.Configuration); err != nil {
			return nil, err
		}
	}
	task.LastRan = lastRan.time
	return &task, nil
}

// pendingDirectory is a directory still to be walked and the pattern
// segments its descendants must match
type pendingDirectory struct {
	path     string
	segments []pathmatch.Segment
	params   pathmatch.Params
}

// RunTask copies every new file from the task's source to its destination
// and records the run. Files last modified before the previous run (or
// opts.Since) are skipped unless opts.Full is set. It returns the ids of
// the copied images.
func (c *Catalog) RunTask(ctx context.Context, name string, opts RunOptions) ([]int64, error) {
	now := time.Now().Truncate(time.Second)

	var added []int64
	err := c.tx(ctx, metrics.OpRunTask, func(tx *sql.Tx) error {
		task, err := c.getTask(ctx, tx, name)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task", name)
		}

		var cutoff *time.Time
		switch {
		case opts.Full:
		case opts.Since != nil:
			cutoff = opts.Since
		default:
			cutoff = task.LastRan
		}

		sourceRoot, err := c.root(ctx, tx, task.Source)
		if err != nil {
			return invalidPath("", "source not mounted")
		}
		destinationRoot, err := c.root(ctx, tx, task.Destination)
		if err != nil {
			return invalidPath("", "destination not mounted")
		}

		cfg := task.Configuration
		tags, err := c.tagIDs(ctx, tx, append(append([]string(nil), opts.Tags...), cfg.Tags...))
		if err != nil {
			return err
		}

		segments, err := pathmatch.Load(cfg.Source)
		if err != nil {
			return err
		}
		var format *pathmatch.Format
		if cfg.Destination != "" {
			if format, err = pathmatch.ParseFormat(cfg.Destination); err != nil {
				return err
			}
		}
		formats := imageinfo.NormalizeFormats(cfg.Formats)
		if len(formats) == 0 {
			formats = c.formats
		}

		var fields ImageFields
		if cfg.Creator != "" {
			fields.Creator = &cfg.Creator
		}

		log := c.log.With(logger.String("task", name))
		index := 1
		queue := []pendingDirectory{{path: sourceRoot, segments: segments, params: pathmatch.NewParams(cutoff)}}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			entries, err := os.ReadDir(current.path)
			if err != nil {
				return fileError(err, current.path)
			}
			for _, entry := range entries {
				path := filepath.Join(current.path, entry.Name())

				if entry.IsDir() {
					if len(current.segments) == 0 {
						queue = append(queue, pendingDirectory{path: path, params: current.params})
						continue
					}
					params, ok := current.segments[0].Match(entry.Name(), current.params)
					if ok {
						queue = append(queue, pendingDirectory{path: path, segments: current.segments[1:], params: params})
					}
					continue
				}

				if !entry.Type().IsRegular() || len(current.segments) > 0 || !imageinfo.HasFormat(path, formats) {
					continue
				}
				stat, err := entry.Info()
				if err != nil {
					return fileError(err, path)
				}
				if cutoff != nil && stat.ModTime().Before(*cutoff) {
					continue
				}

				relative, err := filepath.Rel(sourceRoot, path)
				if err != nil {
					return fileError(err, path)
				}
				if format != nil {
					args, err := formatArgs(relative, path, stat, index, format)
					if err != nil {
						return err
					}
					index++
					if relative, err = format.Render(args); err != nil {
						return err
					}
				}

				target := filepath.Join(destinationRoot, relative)
				id, err := c.addImageCopy(ctx, tx, task.Destination, destinationRoot, path, target, fields, tags)
				if err != nil {
					return err
				}
				if id == 0 {
					log.Info("skipping file, image already exists",
						logger.String("source", path),
						logger.String("destination", target))
					continue
				}
				added = append(added, id)
			}
		}

		_, err = tx.ExecContext(ctx, c.q(`INSERT INTO task_invocations (task, last_ran) VALUES (?, ?)
			ON CONFLICT (task) DO UPDATE SET last_ran = excluded.last_ran`), name, c.timeArg(&now))
		if err != nil {
			return dbError(err, "run_task")
		}
		log.Info("task ran", logger.Int("copied", len(added)))
		return nil
	})

	c.metrics.RecordTaskRun(err)
	if err == nil {
		c.metrics.RecordImported(metrics.SourceTask, len(added))
	}
	return added, err
}

func formatArgs(relative, path string, stat os.FileInfo, index int, format *pathmatch.Format) (pathmatch.FormatArgs, error) {
	file := filepath.Base(path)
	ext := filepath.Ext(file)
	args := pathmatch.FormatArgs{
		Path:      filepath.ToSlash(relative),
		Directory: filepath.ToSlash(filepath.Dir(relative)),
		File:      file,
		Name:      strings.TrimSuffix(file, ext),
		Extension: strings.TrimPrefix(ext, "."),
		UUID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Index:     index,
	}
	if format.NeedsDate() {
		args.Date = stat.ModTime()
	}
	if format.NeedsHash() {
		hash, err := imageinfo.Hash(path)
		if err != nil {
			return args, err
		}
		args.Hash = hash
	}
	return args, nil
}
