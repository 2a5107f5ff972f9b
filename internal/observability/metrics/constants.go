// Package metrics provides the Prometheus collectors PicPocket exports.
package metrics

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation labels recorded by the catalog
const (
	OpAddLocation      = "add_location"
	OpEditLocation     = "edit_location"
	OpRemoveLocation   = "remove_location"
	OpImportLocation   = "import_location"
	OpAddImageCopy     = "add_image_copy"
	OpEditImage        = "edit_image"
	OpMoveImage        = "move_image"
	OpRemoveImage      = "remove_image"
	OpSearchImages     = "search_images"
	OpVerifyImageFiles = "verify_image_files"
	OpAddTag           = "add_tag"
	OpMoveTag          = "move_tag"
	OpRemoveTag        = "remove_tag"
	OpAddTask          = "add_task"
	OpRunTask          = "run_task"
	OpRemoveTask       = "remove_task"
	OpImportData       = "import_data"
	OpExportData       = "export_data"
	OpPruneSessions    = "prune_sessions"
)

// Import source labels
const (
	SourceImport   = "import"
	SourceCopy     = "copy"
	SourceTask     = "task"
	SourceSnapshot = "snapshot"
)

// Histogram bucket parameters
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100B is the starting bucket for response sizes.
	BucketStart100B = 100
	// BucketFactor2 is the common exponential growth factor.
	BucketFactor2 = 2
	// BucketFactor10 grows buckets by orders of magnitude.
	BucketFactor10 = 10
	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
