package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/semdex/core"
)

// EnvelopeVersion is the embedding metadata format version.
const EnvelopeVersion = "1.0"

// Envelope is the persisted unit for one entity.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Embedding *Embedding      `json:"embedding,omitempty"`
}

// Embedding is a vector derived from an entity's canonical text.
type Embedding struct {
	Vector   []float32         `json:"vector"`
	Metadata EmbeddingMetadata `json:"metadata"`
}

// EmbeddingMetadata records how and from what an Embedding was produced.
type EmbeddingMetadata struct {
	ModelID     string    `json:"modelId"`
	Dimensions  int       `json:"dimensions"`
	ContentHash string    `json:"contentHash"`
	GeneratedAt time.Time `json:"generatedAt"`
	ServiceID   string    `json:"serviceId,omitempty"`
	Version     string    `json:"version"`
}

// ContentHash returns the recorded content hash, if any.
func (e *Envelope) ContentHash() (string, bool) {
	if e == nil || e.Embedding == nil || e.Embedding.Metadata.ContentHash == "" {
		return "", false
	}
	return e.Embedding.Metadata.ContentHash, true
}

// EncodeEnvelope serializes entity and emb into envelope bytes.
func EncodeEnvelope(s *Serializer, entity core.Entity, emb *Embedding) ([]byte, error) {
	data, err := s.MarshalCompact(entity)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", entity.Ref(), err)
	}
	return s.Marshal(&Envelope{Data: data, Embedding: emb})
}

// DecodeEnvelope parses envelope bytes.
func DecodeEnvelope(s *Serializer, data []byte) (*Envelope, error) {
	var env Envelope
	if err := s.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: envelope has no data", ErrSerialization)
	}
	return &env, nil
}

// DecodeEntity parses envelope bytes into an entity of type t.
func DecodeEntity(s *Serializer, t core.EntityType, data []byte) (core.Entity, *Envelope, error) {
	env, err := DecodeEnvelope(s, data)
	if err != nil {
		return nil, nil, err
	}
	entity, err := core.NewEntity(t)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Unmarshal(env.Data, entity); err != nil {
		return nil, nil, err
	}
	return entity, env, nil
}

// Manifest lists a model's entities and where they live.
type Manifest struct {
	Name             string          `json:"name"`
	Source           string          `json:"source,omitempty"`
	Description      string          `json:"description,omitempty"`
	Tables           []ManifestEntry `json:"tables"`
	Views            []ManifestEntry `json:"views"`
	StoredProcedures []ManifestEntry `json:"storedProcedures"`
}

// ManifestEntry locates one entity relative to the model path.
type ManifestEntry struct {
	Schema       string `json:"schema"`
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
}

// ManifestRef pairs an entity identity with its location.
type ManifestRef struct {
	Ref          core.EntityRef
	RelativePath string
}

// BuildManifest describes model's current entity set.
func BuildManifest(model *core.SemanticModel, entities []core.Entity) *Manifest {
	m := &Manifest{
		Name:             model.Name,
		Source:           model.Source,
		Description:      model.Description,
		Tables:           []ManifestEntry{},
		Views:            []ManifestEntry{},
		StoredProcedures: []ManifestEntry{},
	}
	for _, e := range entities {
		ref := e.Ref()
		entry := ManifestEntry{Schema: ref.Schema, Name: ref.Name, RelativePath: EntityPath(ref)}
		switch ref.Type {
		case core.EntityTypeTable:
			m.Tables = append(m.Tables, entry)
		case core.EntityTypeView:
			m.Views = append(m.Views, entry)
		case core.EntityTypeStoredProcedure:
			m.StoredProcedures = append(m.StoredProcedures, entry)
		}
	}
	return m
}

// Refs returns every entity in the manifest, tables first.
func (m *Manifest) Refs() []ManifestRef {
	var out []ManifestRef
	add := func(t core.EntityType, entries []ManifestEntry) {
		for _, e := range entries {
			rel := e.RelativePath
			ref := core.EntityRef{Type: t, Schema: e.Schema, Name: e.Name}
			if rel == "" {
				rel = EntityPath(ref)
			}
			out = append(out, ManifestRef{Ref: ref, RelativePath: rel})
		}
	}
	add(core.EntityTypeTable, m.Tables)
	add(core.EntityTypeView, m.Views)
	add(core.EntityTypeStoredProcedure, m.StoredProcedures)
	return out
}

// NewModel creates an empty model carrying the manifest's model fields.
func (m *Manifest) NewModel() *core.SemanticModel {
	return core.NewSemanticModel(m.Name, m.Source, m.Description)
}

// StubEntity returns an entity carrying only the identity in ref.
func StubEntity(ref core.EntityRef) (core.Entity, error) {
	e, err := core.NewEntity(ref.Type)
	if err != nil {
		return nil, err
	}
	e.Common().Schema = ref.Schema
	e.Common().Name = ref.Name
	return e, nil
}
