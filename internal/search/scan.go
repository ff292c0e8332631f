package search

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/nox-hq/skillforge/internal/skill"
)

// scanSkillRow scans a single skills row from a *sql.Rows cursor whose
// column list matches the SELECT in hydrate. Kept local to this package
// rather than shared with internal/store to avoid a needless dependency
// between the two: both scan the same table shape, each for its own
// narrow purpose.
func scanSkillRow(rows *sql.Rows) (skill.Skill, error) {
	var (
		idStr, tags, category, trustTier, sourceID, metaJSON string
		createdAt, updatedAt                                 string
		lastScanAt                                           sql.NullString
		sk                                                    skill.Skill
	)
	if err := rows.Scan(&idStr, &sk.ContentHash, &sk.Description, &tags, &category, &trustTier,
		&sk.QualityScore, &sk.RiskScore, &sk.SecurityPassed, &sourceID, &sk.RawBody, &metaJSON,
		&createdAt, &updatedAt, &lastScanAt); err != nil {
		return skill.Skill{}, err
	}
	sk.ID = skill.ID(idStr)
	sk.Category = skill.Category(category)
	sk.TrustTier = skill.TrustTier(trustTier)
	sk.SourceID = sourceID
	if tags != "" {
		sk.Tags = strings.Split(tags, ",")
	}
	sk.ParsedMetadata = make(skill.ParsedMetadata)
	_ = json.Unmarshal([]byte(metaJSON), &sk.ParsedMetadata)
	sk.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sk.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastScanAt.Valid {
		sk.LastScanAt, _ = time.Parse(time.RFC3339Nano, lastScanAt.String)
	}
	return sk, nil
}
