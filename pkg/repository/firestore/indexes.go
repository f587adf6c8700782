// indexes.go declares the composite indexes the C11 Firestore backend's
// queries need, using github.com/m-mizutani/fireconf the same way the
// teacher's pkg/cli migrate.go declares indexes for its own collections.
// pkg/cli's migrate subcommand applies this config; it is otherwise unused
// at request time since Firestore rejects unindexed composite queries
// up front rather than needing a runtime check here.
package firestore

import "github.com/m-mizutani/fireconf"

// IndexConfig returns the composite indexes for the mappings, projects and
// queue_items queries in this package, prefixed to match prefix (see
// WithCollectionPrefix; pass "" for the default, unprefixed collection
// names). The corrections ListUnprocessed query (UserID, Processed, ordered
// by CreatedAt) and the audit_events ListByUser query (UserID, ordered by
// At descending) have no entry here.
func IndexConfig(prefix string) *fireconf.Config {
	coll := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "_" + name
	}

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				// ListByProject (mapping.go) filters UserID == x, ProjectID == y.
				Name: coll("mappings"),
				Indexes: []fireconf.Index{
					{
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "ProjectID", Order: fireconf.OrderAscending},
						},
					},
					{
						// ListByThread.
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "ThreadID", Order: fireconf.OrderAscending},
						},
					},
					{
						// ListReflectionPending.
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "Active", Order: fireconf.OrderAscending},
							{Path: "ReflectionPending", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				// List filters UserID == x and optionally Status == y;
				// ListActive filters UserID == x, Status != archived, which
				// Firestore also serves off a UserID+Status index.
				Name: coll("projects"),
				Indexes: []fireconf.Index{
					{
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "Status", Order: fireconf.OrderAscending},
						},
					},
					{
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "NormalizedName", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				// Reserve filters Queue == x, Status == pending, ordered by
				// Priority then CreatedAt (queue.go's FIFO-within-priority
				// dequeue order); ListDead filters Queue and Status only.
				Name: coll("queue_items"),
				Indexes: []fireconf.Index{
					{
						Fields: []fireconf.IndexField{
							{Path: "Queue", Order: fireconf.OrderAscending},
							{Path: "Status", Order: fireconf.OrderAscending},
							{Path: "Priority", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
					{
						// Dedup lookup by (Queue, UserID, DedupKey).
						Fields: []fireconf.IndexField{
							{Path: "Queue", Order: fireconf.OrderAscending},
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "DedupKey", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
