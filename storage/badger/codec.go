package badger

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
)

// Documents are stored in mus binary form. Times keep microsecond precision.

var (
	modelDocumentMUS  = modelDocumentSer{}
	entityDocumentMUS = entityDocumentSer{}
)

func encodeModelDoc(doc modelDocument) []byte {
	bs := make([]byte, modelDocumentMUS.Size(doc))
	modelDocumentMUS.Marshal(doc, bs)
	return bs
}

func decodeModelDoc(bs []byte) (modelDocument, error) {
	doc, n, err := modelDocumentMUS.Unmarshal(bs)
	return doc, decodeErr(bs, n, err)
}

func encodeEntityDoc(doc entityDocument) []byte {
	bs := make([]byte, entityDocumentMUS.Size(doc))
	entityDocumentMUS.Marshal(doc, bs)
	return bs
}

func decodeEntityDoc(bs []byte) (entityDocument, error) {
	doc, n, err := entityDocumentMUS.Unmarshal(bs)
	return doc, decodeErr(bs, n, err)
}

func decodeErr(bs []byte, n int, err error) error {
	if err == nil && n != len(bs) {
		err = fmt.Errorf("%d trailing bytes", len(bs)-n)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSerialization, err)
	}
	return nil
}

type modelDocumentSer struct{}

func (modelDocumentSer) Marshal(v modelDocument, bs []byte) (n int) {
	n = marshalStrings(bs, v.ID, v.PartitionKey, v.DocumentType, v.Name, v.Source, v.Description)
	n += varint.Int.Marshal(len(v.Entities), bs[n:])
	for _, p := range v.Entities {
		n += marshalStrings(bs[n:], string(p.Type), p.Schema, p.Name, p.DocumentID)
	}
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (modelDocumentSer) Unmarshal(bs []byte) (v modelDocument, n int, err error) {
	n, err = unmarshalStrings(bs, &v.ID, &v.PartitionKey, &v.DocumentType, &v.Name, &v.Source, &v.Description)
	if err != nil {
		return
	}
	count, n1, err := unmarshalLen(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Entities = make([]entityPointer, count)
	for i := range v.Entities {
		p := &v.Entities[i]
		var typ string
		n1, err = unmarshalStrings(bs[n:], &typ, &p.Schema, &p.Name, &p.DocumentID)
		n += n1
		if err != nil {
			return
		}
		p.Type = core.EntityType(typ)
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (modelDocumentSer) Size(v modelDocument) (size int) {
	size = sizeStrings(v.ID, v.PartitionKey, v.DocumentType, v.Name, v.Source, v.Description)
	size += varint.Int.Size(len(v.Entities))
	for _, p := range v.Entities {
		size += sizeStrings(string(p.Type), p.Schema, p.Name, p.DocumentID)
	}
	return size + sizeTime(v.UpdatedAt)
}

type entityDocumentSer struct{}

func (entityDocumentSer) Marshal(v entityDocument, bs []byte) (n int) {
	n = marshalStrings(bs, v.ID, v.PartitionKey, v.DocumentType, string(v.EntityType), v.Schema, v.Name, string(v.Data))
	n += ord.Bool.Marshal(v.Embedding != nil, bs[n:])
	if v.Embedding != nil {
		n += marshalEmbedding(v.Embedding, bs[n:])
	}
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (entityDocumentSer) Unmarshal(bs []byte) (v entityDocument, n int, err error) {
	var typ, data string
	n, err = unmarshalStrings(bs, &v.ID, &v.PartitionKey, &v.DocumentType, &typ, &v.Schema, &v.Name, &data)
	if err != nil {
		return
	}
	v.EntityType = core.EntityType(typ)
	v.Data = json.RawMessage(data)
	hasEmbedding, n1, err := ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if hasEmbedding {
		v.Embedding, n1, err = unmarshalEmbedding(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (entityDocumentSer) Size(v entityDocument) (size int) {
	size = sizeStrings(v.ID, v.PartitionKey, v.DocumentType, string(v.EntityType), v.Schema, v.Name, string(v.Data))
	size += ord.Bool.Size(v.Embedding != nil)
	if v.Embedding != nil {
		size += sizeEmbedding(v.Embedding)
	}
	return size + sizeTime(v.UpdatedAt)
}

func marshalEmbedding(e *storage.Embedding, bs []byte) (n int) {
	n = varint.Int.Marshal(len(e.Vector), bs)
	for _, f := range e.Vector {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	m := e.Metadata
	n += marshalStrings(bs[n:], m.ModelID, m.ContentHash, m.ServiceID, m.Version)
	n += varint.Int.Marshal(m.Dimensions, bs[n:])
	n += marshalTime(m.GeneratedAt, bs[n:])
	return
}

func unmarshalEmbedding(bs []byte) (e *storage.Embedding, n int, err error) {
	count, n, err := unmarshalLen(bs)
	if err != nil {
		return
	}
	e = &storage.Embedding{Vector: make([]float32, count)}
	var (
		bits uint32
		n1   int
	)
	for i := range e.Vector {
		bits, n1, err = varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		e.Vector[i] = math.Float32frombits(bits)
	}
	m := &e.Metadata
	n1, err = unmarshalStrings(bs[n:], &m.ModelID, &m.ContentHash, &m.ServiceID, &m.Version)
	n += n1
	if err != nil {
		return
	}
	m.Dimensions, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.GeneratedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func sizeEmbedding(e *storage.Embedding) (size int) {
	size = varint.Int.Size(len(e.Vector))
	for _, f := range e.Vector {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	m := e.Metadata
	size += sizeStrings(m.ModelID, m.ContentHash, m.ServiceID, m.Version)
	size += varint.Int.Size(m.Dimensions)
	return size + sizeTime(m.GeneratedAt)
}

func marshalStrings(bs []byte, vals ...string) (n int) {
	for _, s := range vals {
		n += ord.String.Marshal(s, bs[n:])
	}
	return
}

func unmarshalStrings(bs []byte, dst ...*string) (n int, err error) {
	var n1 int
	for _, d := range dst {
		*d, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func sizeStrings(vals ...string) (size int) {
	for _, s := range vals {
		size += ord.String.Size(s)
	}
	return
}

// unmarshalLen reads a collection length and rejects one the remaining bytes
// cannot hold.
func unmarshalLen(bs []byte) (l, n int, err error) {
	l, n, err = varint.Int.Unmarshal(bs)
	if err == nil && (l < 0 || l > len(bs)-n) {
		err = fmt.Errorf("invalid length %d", l)
	}
	return
}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	return time.UnixMicro(us).UTC(), n, err
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}
