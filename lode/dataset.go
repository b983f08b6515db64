package lode

import (
	"context"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// openDataset opens dataset with the layout and codec every archive uses.
func openDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDataset opens an archive for reading. An empty name selects
// DefaultDataset.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return openDataset(dataset, factory)
}

// NewReadDatasetFS opens an archive rooted at a local directory.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return openDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 opens an archive stored in S3.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := s3cfg.StoreFactory(ctx)
	if err != nil {
		return nil, err
	}
	return openDataset(dataset, factory)
}

// partition is one key=value directory of the Hive layout. An empty value
// matches any path.
type partition struct {
	key, value string
}

// contains reports whether path has the exact key=value segment, so
// run_id=run-1 never matches run_id=run-10.
func (p partition) contains(path string) bool {
	if p.value == "" {
		return true
	}
	want := p.key + "=" + p.value
	for segment := range strings.SplitSeq(path, "/") {
		if segment == want {
			return true
		}
	}
	return false
}

// covers reports whether some file of snap lies under p.
func (p partition) covers(snap *lode.DatasetSnapshot) bool {
	if p.value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if p.contains(f.Path) {
			return true
		}
	}
	return false
}
