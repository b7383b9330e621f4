package part

import (
	"path"
	"strings"
	"time"

	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/utils"
)

// MetadataFile is the dataset level footer sidecar name.
const MetadataFile = "_metadata"

type (
	// Fragment is one parquet file written in phase 1 of a dataset write.
	Fragment struct {
		ID      string
		Dataset string
		// Partition is the partition path, "" when unpartitioned.
		//
		// Ex: `y=2022/m=12`
		Partition string
		// Path is relative to the dataset root; it is what the merged footer
		// records as each row group's file_path.
		Path      string
		Alive     bool
		CreatedAt time.Time
		RowCount  int64
		RowGroups int
		Footer    footer.Blob
	}
)

// NewFragment names a fresh fragment file. IDs are k-sorted so a listing of
// a partition is in write order.
func NewFragment(dataset, partition string) Fragment {
	id := utils.GenKSortedID("")
	return Fragment{
		ID:        id,
		Dataset:   dataset,
		Partition: partition,
		Path:      path.Join(partition, id+".parquet"),
		Alive:     true,
		CreatedAt: time.Now().UTC(),
	}
}

// Key is the store key of the fragment file.
func (f Fragment) Key() string {
	return path.Join(f.Dataset, f.Path)
}

// MetadataKey is the store key of a dataset's merged footer.
func MetadataKey(dataset string) string {
	return path.Join(dataset, MetadataFile)
}

// IsFragmentKey reports whether a store key names a fragment file.
func IsFragmentKey(key string) bool {
	return strings.HasSuffix(key, ".parquet") && !strings.HasPrefix(path.Base(key), ".")
}
