package badger

import (
	"fmt"
	"path"
	"strings"

	"github.com/poiesic/semdex/core"
)

// Key prefixes for different document types
const (
	documentPrefix = "doc"
	modelDocID     = "model"
)

// partitionFor returns the partition key for a model path: the model name,
// which is the path's last segment.
func partitionFor(modelPath string) string {
	return path.Base(path.Clean(strings.ReplaceAll(modelPath, `\`, "/")))
}

// entityDocID returns the document id for an entity.
// Format: model_type_schema_name
func entityDocID(model string, ref core.EntityRef) string {
	return fmt.Sprintf("%s_%s_%s_%s", model, ref.Type, ref.Schema, ref.Name)
}

// makeDocKey generates the key for a document in a partition.
// Format: doc:partition:id
func makeDocKey(partition, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", documentPrefix, partition, id))
}

// makePartitionPrefix generates the prefix shared by a partition's documents.
// Format: doc:partition:
func makePartitionPrefix(partition string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", documentPrefix, partition))
}
