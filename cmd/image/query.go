package image

import (
	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
	"github.com/picpocket/picpocket/internal/filter"
)

// queryFlags are the selection flags search and count share
type queryFlags struct {
	filters   []string
	tagged    bool
	reachable bool
	anyTags   []string
	allTags   []string
	noTags    []string
	order     []string
	limit     int
	offset    int
}

func (q *queryFlags) register(cmd *cobra.Command, paging bool) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&q.filters, "filter", "f", nil, `Column comparison such as "rating>=3", "creator=null" or "!title=%beach"; repeated filters must all match`)
	flags.BoolVar(&q.tagged, "tagged", false, "Only images with (true) or without (false) any tag")
	flags.BoolVar(&q.reachable, "reachable", false, "Only images whose location is (true) or isn't (false) available")
	flags.StringSliceVar(&q.anyTags, "any", nil, "Images with at least one of these tags")
	flags.StringSliceVar(&q.allTags, "all", nil, "Images with all of these tags")
	flags.StringSliceVar(&q.noTags, "none", nil, "Images with none of these tags")
	if paging {
		flags.StringSliceVar(&q.order, "order", nil, `Sort columns; prefix "-" for descending, "!" to place nulls, "random" last`)
		flags.IntVar(&q.limit, "limit", 0, "Maximum number of images")
		flags.IntVar(&q.offset, "offset", 0, "Images to skip (needs --limit)")
	}
}

func (q *queryFlags) build(cmd *cobra.Command) (catalog.Query, error) {
	query := catalog.Query{
		AnyTags: cli.SplitList(q.anyTags),
		AllTags: cli.SplitList(q.allTags),
		NoTags:  cli.SplitList(q.noTags),
		Order:   cli.SplitList(q.order),
		Limit:   q.limit,
		Offset:  q.offset,
	}
	if cmd.Flags().Changed("tagged") {
		query.Tagged = &q.tagged
	}
	if cmd.Flags().Changed("reachable") {
		query.Reachable = &q.reachable
	}

	comparisons := make([]filter.Comparison, 0, len(q.filters))
	for _, expr := range q.filters {
		c, err := filter.ParseExpression(expr, catalog.ImageColumns)
		if err != nil {
			return query, err
		}
		comparisons = append(comparisons, c)
	}
	switch len(comparisons) {
	case 0:
	case 1:
		query.Filter = comparisons[0]
	default:
		query.Filter = filter.And(comparisons[0], comparisons[1], comparisons[2:]...)
	}
	return query, nil
}
