package services

import (
	"database/sql"
	"fmt"
	"image/png"
	"log"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/media"
)

// ArtifactService computes and caches derived artifacts (chips and feature
// sets) for annotations. Every artifact is keyed by the annotation plus the
// configuration that produced it, so changing parameters yields fresh rows
// instead of overwriting old ones.
type ArtifactService struct {
	DB        *sql.DB
	Store     *media.Store
	Reader    *media.MetadataReader
	Renderer  media.ChipRenderer
	Extractor media.FeatureExtractor

	ChipConfigUID    int64
	FeatureConfigUID int64

	chipGroup    singleflight.Group
	featureGroup singleflight.Group
}

// NewArtifactService resolves (or creates) the configuration rows for the
// given parameter strings and returns a service bound to them.
func NewArtifactService(db *sql.DB, store *media.Store, reader *media.MetadataReader, renderer media.ChipRenderer, extractor media.FeatureExtractor, chipConfig, featureConfig string) (*ArtifactService, error) {
	chipUID, err := database.AddConfig(db, chipConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chip config: %w", err)
	}
	featureUID, err := database.AddConfig(db, featureConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feature config: %w", err)
	}

	return &ArtifactService{
		DB:               db,
		Store:            store,
		Reader:           reader,
		Renderer:         renderer,
		Extractor:        extractor,
		ChipConfigUID:    chipUID,
		FeatureConfigUID: featureUID,
	}, nil
}

func chipFilename(annotUUID string, configUID int64) string {
	return fmt.Sprintf("%s_%d.png", annotUUID, configUID)
}

// ChipFilename returns the cache filename for an annotation's chip under the
// service's chip configuration.
func (s *ArtifactService) ChipFilename(annotUUID string) string {
	return chipFilename(annotUUID, s.ChipConfigUID)
}

// EnsureChips returns chip IDs for the given annotations, computing and
// caching any that are missing. The result has one entry per input; entries
// whose computation failed are nil and the failure is logged rather than
// aborting the batch. Concurrent requests for the same annotation share a
// single computation.
func (s *ArtifactService) EnsureChips(annotUUIDs []string) ([]*int64, error) {
	chipIDs, err := database.GetAnnotationChipIDs(s.DB, s.ChipConfigUID, annotUUIDs)
	if err != nil {
		return nil, err
	}

	for i, uuid := range annotUUIDs {
		if chipIDs[i] != nil {
			continue
		}
		_, computeErr, _ := s.chipGroup.Do(fmt.Sprintf("%s:%d", uuid, s.ChipConfigUID), func() (interface{}, error) {
			return nil, s.computeChip(uuid)
		})
		if computeErr != nil {
			log.Printf("chips: failed to compute chip for annotation %s: %v", uuid, computeErr)
		}
	}

	return database.GetAnnotationChipIDs(s.DB, s.ChipConfigUID, annotUUIDs)
}

func (s *ArtifactService) computeChip(annotUUID string) error {
	annot, err := database.GetAnnotationInfo(s.DB, annotUUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("unknown annotation %s", annotUUID)
		}
		return fmt.Errorf("failed to load annotation: %w", err)
	}

	uris, err := database.GetImageURIs(s.DB, []string{annot.ImageUUID})
	if err != nil {
		return fmt.Errorf("failed to load source image uri: %w", err)
	}
	if uris[0] == nil {
		return fmt.Errorf("annotation %s references missing image %s", annotUUID, annot.ImageUUID)
	}

	imagePath := s.Reader.ResolvePath(*uris[0])
	chip, err := s.Renderer.RenderChip(imagePath, annot.BBox, annot.Theta)
	if err != nil {
		return fmt.Errorf("failed to render chip: %w", err)
	}

	chipPath, err := s.Store.FilePath(media.AssetTypeChip, s.ChipFilename(annotUUID))
	if err != nil {
		return err
	}
	file, err := os.Create(chipPath)
	if err != nil {
		return fmt.Errorf("failed to create chip file: %w", err)
	}
	if err := png.Encode(file, chip); err != nil {
		file.Close()
		os.Remove(chipPath)
		return fmt.Errorf("failed to encode chip: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write chip file: %w", err)
	}

	bounds := chip.Bounds()
	if _, err := database.AddChip(s.DB, annotUUID, s.ChipConfigUID, bounds.Dx(), bounds.Dy()); err != nil {
		return fmt.Errorf("failed to record chip: %w", err)
	}
	return nil
}

// EnsureFeatureSets returns feature set IDs for the given chips, computing
// and caching any that are missing. Same per-element semantics as
// EnsureChips.
func (s *ArtifactService) EnsureFeatureSets(chipIDs []int64) ([]*int64, error) {
	featureIDs, err := database.GetChipFeatureIDs(s.DB, s.FeatureConfigUID, chipIDs)
	if err != nil {
		return nil, err
	}

	for i, chipID := range chipIDs {
		if featureIDs[i] != nil {
			continue
		}
		key := fmt.Sprintf("%d:%d", chipID, s.FeatureConfigUID)
		id := chipID
		_, computeErr, _ := s.featureGroup.Do(key, func() (interface{}, error) {
			return nil, s.computeFeatureSet(id)
		})
		if computeErr != nil {
			log.Printf("features: failed to compute features for chip %d: %v", chipID, computeErr)
		}
	}

	return database.GetChipFeatureIDs(s.DB, s.FeatureConfigUID, chipIDs)
}

func (s *ArtifactService) computeFeatureSet(chipID int64) error {
	annotUUIDs, err := database.GetChipAnnotUUIDs(s.DB, []int64{chipID})
	if err != nil {
		return fmt.Errorf("failed to load chip owner: %w", err)
	}
	if annotUUIDs[0] == nil {
		return fmt.Errorf("unknown chip %d", chipID)
	}

	chipPath, err := s.Store.FilePath(media.AssetTypeChip, s.ChipFilename(*annotUUIDs[0]))
	if err != nil {
		return err
	}

	keypoints, descriptors, err := s.Extractor.Extract(chipPath)
	if err != nil {
		return fmt.Errorf("failed to extract features: %w", err)
	}

	keypointData := media.EncodeKeypoints(keypoints)
	descriptorData, err := media.EncodeDescriptors(descriptors)
	if err != nil {
		return fmt.Errorf("failed to encode descriptors: %w", err)
	}

	dim := 0
	if len(descriptors) > 0 {
		dim = len(descriptors[0])
	}

	if _, err := database.AddFeatureSet(s.DB, chipID, s.FeatureConfigUID, len(keypoints), dim, keypointData, descriptorData); err != nil {
		return fmt.Errorf("failed to record feature set: %w", err)
	}
	return nil
}

// AnnotationDescriptors returns the decoded descriptor matrix for each
// annotation, computing missing chips and feature sets along the way. Entries
// for annotations whose artifacts could not be produced are nil.
func (s *ArtifactService) AnnotationDescriptors(annotUUIDs []string) ([][][]float32, error) {
	chipIDs, err := s.EnsureChips(annotUUIDs)
	if err != nil {
		return nil, err
	}

	presentChipIDs := make([]int64, 0, len(chipIDs))
	for _, id := range chipIDs {
		if id != nil {
			presentChipIDs = append(presentChipIDs, *id)
		}
	}
	if _, err := s.EnsureFeatureSets(presentChipIDs); err != nil {
		return nil, err
	}

	result := make([][][]float32, len(annotUUIDs))
	for i, chipID := range chipIDs {
		if chipID == nil {
			continue
		}
		featureIDs, err := database.GetChipFeatureIDs(s.DB, s.FeatureConfigUID, []int64{*chipID})
		if err != nil {
			return nil, err
		}
		if featureIDs[0] == nil {
			continue
		}
		sets, err := database.GetFeatureSets(s.DB, []int64{*featureIDs[0]})
		if err != nil {
			return nil, err
		}
		if sets[0] == nil {
			continue
		}
		descriptors, err := media.DecodeDescriptors(sets[0].DescData, sets[0].DescriptorDim)
		if err != nil {
			log.Printf("features: failed to decode descriptors for annotation %s: %v", annotUUIDs[i], err)
			continue
		}
		result[i] = descriptors
	}
	return result, nil
}
