package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/poiesic/semdex/core"
)

// ManifestFile is the manifest's name within a model directory.
const ManifestFile = "manifest.json"

const entityExt = ".json"

// EntityPath returns "{folder}/{schema}.{name}.json" for ref.
func EntityPath(ref core.EntityRef) string {
	return path.Join(ref.Type.Folder(), ref.Schema+"."+ref.Name+entityExt)
}

// ParseEntityPath is the inverse of EntityPath. The schema ends at the first dot.
func ParseEntityPath(rel string) (core.EntityRef, error) {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, `\`, "/")), "/")
	dir, file := path.Split(rel)
	t, err := core.ParseEntityType(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return core.EntityRef{}, err
	}
	if !strings.HasSuffix(file, entityExt) {
		return core.EntityRef{}, fmt.Errorf("%w: %q is not an entity file", core.ErrInvalidEntity, rel)
	}
	schema, name, ok := strings.Cut(strings.TrimSuffix(file, entityExt), ".")
	if !ok || schema == "" || name == "" {
		return core.EntityRef{}, fmt.Errorf("%w: %q is not schema.name", core.ErrInvalidEntity, file)
	}
	return core.EntityRef{Type: t, Schema: schema, Name: name}, nil
}

// JoinPath joins a model path and a relative entity path with slashes.
func JoinPath(modelPath, rel string) string {
	return path.Join(strings.ReplaceAll(modelPath, `\`, "/"), rel)
}
