package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// namespace for all content-derived IDs. Re-ingesting identical input must
// produce identical IDs, which is what makes pipeline re-runs idempotent.
var idNamespace = uuid.MustParse("9c1adf20-41a7-5b6f-9f33-f63e0a784d11")

// ContentHash returns the hex SHA-256 of raw document bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DeriveID builds a deterministic UUIDv5 from the given parts.
func DeriveID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x1f")))
}

// DataID derives the ID of a Data record from its tenant and content hash,
// so the same bytes ingested twice resolve to one record.
func DataID(tenantID uuid.UUID, contentHash string) uuid.UUID {
	return DeriveID("data", tenantID.String(), contentHash)
}

// ChunkID derives a chunk ID from its owning data record, position and text.
func ChunkID(dataID uuid.UUID, chunkIndex int, text string) uuid.UUID {
	return DeriveID("chunk", dataID.String(), fmt.Sprintf("%d", chunkIndex), ContentHash([]byte(text)))
}

// EntityID derives an entity ID from its tenant, normalized name and type.
func EntityID(tenantID uuid.UUID, normalizedName, entityType string) uuid.UUID {
	return DeriveID("entity", tenantID.String(), normalizedName, strings.ToLower(entityType))
}

// RelationKey identifies an edge by its (source, target, type) triple.
func RelationKey(sourceID, targetID uuid.UUID, relType string) string {
	return sourceID.String() + "|" + targetID.String() + "|" + strings.ToLower(relType)
}

// VectorRecordID derives the vector-store key for one indexed field of a node.
func VectorRecordID(nodeID uuid.UUID, field string) uuid.UUID {
	return DeriveID("vector", nodeID.String(), field)
}
