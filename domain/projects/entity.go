package projects

import (
	"time"

	"github.com/uptrace/bun"
)

// Project mirrors an upstream project in the projects table.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ProjectID string            `bun:"project_id,pk"`
	Name      string            `bun:"name,notnull"`
	Metadata  map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt time.Time         `bun:"created_at,notnull,default:now()"`
	UpdatedAt time.Time         `bun:"updated_at,notnull,default:now()"`
}
