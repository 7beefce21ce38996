package core

// ArtifactStore defines the interface for artifact persistence backing
// opaque FileBlock references. Implementations should be thread-safe and
// scope artifacts by run identifier. Short method names (Save/Get/List/
// Delete) mirror other store interfaces for consistency.
type ArtifactStore interface {
	Save(runID, artifactID string, data []byte) error
	Get(runID, artifactID string) ([]byte, error)
	List(runID string) ([]string, error)
	Delete(runID, artifactID string) error
}
