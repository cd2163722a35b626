package kg

import "github.com/google/uuid"

// NewChunkID returns a time-ordered 128-bit chunk id (UUID v7).
func NewChunkID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}

// EntityVectorID derives the deterministic vector-store id for an
// entity (UUID v5 over projectID + ":" + name). Re-ingesting the same
// entity in the same project always maps to the same row. An empty
// projectID falls back to the literal "global" namespace.
func EntityVectorID(projectID, name string) string {
	if projectID == "" {
		projectID = "global"
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(projectID+":"+name)).String()
}
