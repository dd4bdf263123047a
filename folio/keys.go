package folio

// Storage layout within one logical namespace of the remote store.
const (
	// KeyAll is the set of ids of every non-destroyed record.
	KeyAll = "idx:all"
	// KeyVersion is the persisted version counter (decimal string, >= 1).
	KeyVersion = "meta:version"

	// recFieldTrio is the hash field holding the full record encoding.
	recFieldTrio = "trio"
	// recFieldMod is the redundant copy of the mod stamp (epoch ms).
	recFieldMod = "mod"
)

// RecKey returns the primary hash key of a record.
func RecKey(id string) string { return "rec:" + id }

// TagKey returns the tag index set key for a tag name.
func TagKey(name string) string { return "idx:tag:" + name }

// HisKey returns the sorted set key of a record's time series.
func HisKey(id string) string { return "his:" + id }
