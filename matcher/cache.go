package matcher

import (
	"encoding/gob"
	"fmt"
	"os"
)

// indexGob is the on-disk form of an Index.
type indexGob struct {
	Dim      int
	Vectors  [][]float32
	Owners   []string
	FeatIdxs []int32
	Trees    []*Node
}

func saveIndex(path string, idx *Index) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	enc := gob.NewEncoder(file)
	err = enc.Encode(indexGob{
		Dim:      idx.dim,
		Vectors:  idx.vectors,
		Owners:   idx.owners,
		FeatIdxs: idx.featIdxs,
		Trees:    idx.trees,
	})
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move index file into place: %w", err)
	}
	return nil
}

func loadIndex(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var g indexGob
	if err := gob.NewDecoder(file).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode index file '%s': %w", path, err)
	}
	return &Index{
		dim:      g.Dim,
		vectors:  g.Vectors,
		owners:   g.Owners,
		featIdxs: g.FeatIdxs,
		trees:    g.Trees,
	}, nil
}
